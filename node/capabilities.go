package node

import "github.com/matbeedotcom/remotemedia-sdk-sub006/runtimedata"

// AudioCapability narrows the accepted audio shape beyond the bare
// DataTypeAudio tag. An empty slice on any field means "accepts any".
type AudioCapability struct {
	Formats     []runtimedata.AudioFormat
	SampleRates []int
	Channels    []int
}

// Accepts reports whether the given audio payload satisfies the capability.
func (ac *AudioCapability) Accepts(audio *runtimedata.AudioPayload) bool {
	if ac == nil || audio == nil {
		return true
	}
	return ac.acceptsFormat(audio.Format) &&
		ac.acceptsSampleRate(audio.SampleRate) &&
		ac.acceptsChannels(audio.Channels)
}

func (ac *AudioCapability) acceptsFormat(f runtimedata.AudioFormat) bool {
	if len(ac.Formats) == 0 {
		return true
	}
	for _, want := range ac.Formats {
		if want == f {
			return true
		}
	}
	return false
}

func (ac *AudioCapability) acceptsSampleRate(rate int) bool {
	if len(ac.SampleRates) == 0 {
		return true
	}
	for _, want := range ac.SampleRates {
		if want == rate {
			return true
		}
	}
	return false
}

func (ac *AudioCapability) acceptsChannels(channels int) bool {
	if len(ac.Channels) == 0 {
		return true
	}
	for _, want := range ac.Channels {
		if want == channels {
			return true
		}
	}
	return false
}

// Capabilities describes what a node accepts or produces beyond the bare
// DataType tag set carried on Descriptor.
type Capabilities struct {
	Audio *AudioCapability
}
