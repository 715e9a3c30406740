// Package runtimedata defines the tagged payload union that flows between
// pipeline nodes and across process boundaries, along with the DataPacket
// envelope and the binary wire format used by the multiprocess IPC bridge.
package runtimedata

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	pkgerrors "github.com/matbeedotcom/remotemedia-sdk-sub006/pkg/errors"
)

// DataType enumerates the RuntimeData variant tags.
type DataType int

const (
	// DataTypeEmpty carries no payload.
	DataTypeEmpty DataType = iota
	// DataTypeAudio carries packed 32-bit float samples.
	DataTypeAudio
	// DataTypeVideo carries a single pixel-format video frame.
	DataTypeVideo
	// DataTypeTensor carries raw tensor bytes with a shape and dtype.
	DataTypeTensor
	// DataTypeJSON carries a parsed structured value.
	DataTypeJSON
	// DataTypeText carries UTF-8 text.
	DataTypeText
	// DataTypeBinary carries opaque bytes with a MIME type.
	DataTypeBinary
)

// String returns the wire-stable name of the data type.
func (t DataType) String() string {
	switch t {
	case DataTypeEmpty:
		return "empty"
	case DataTypeAudio:
		return "audio"
	case DataTypeVideo:
		return "video"
	case DataTypeTensor:
		return "tensor"
	case DataTypeJSON:
		return "json"
	case DataTypeText:
		return "text"
	case DataTypeBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// AudioFormat enumerates supported sample encodings.
type AudioFormat int

const (
	// AudioFormatF32 is packed little-endian 32-bit float samples.
	AudioFormatF32 AudioFormat = iota
	// AudioFormatS16 is packed little-endian 16-bit signed integer samples.
	AudioFormatS16
)

// PixelFormat enumerates supported video pixel layouts.
type PixelFormat int

const (
	// PixelFormatRGB24 is 3 bytes per pixel, no alpha.
	PixelFormatRGB24 PixelFormat = iota
	// PixelFormatRGBA32 is 4 bytes per pixel with alpha.
	PixelFormatRGBA32
	// PixelFormatYUV420P is planar YUV 4:2:0.
	PixelFormatYUV420P
	// PixelFormatGRAY8 is single-channel 8-bit grayscale.
	PixelFormatGRAY8
)

// BytesPerPixel returns the bytes-per-pixel factor used by the Video length
// invariant. YUV420P is a planar format where the "bytes per pixel" factor
// is 1.5 (Y plane plus quarter-resolution U and V planes); the invariant
// check below special-cases it rather than returning a fractional value.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatRGB24:
		return 3
	case PixelFormatRGBA32:
		return 4
	case PixelFormatGRAY8:
		return 1
	case PixelFormatYUV420P:
		return 1 // planar; see expectedVideoLength
	default:
		return 0
	}
}

// DType enumerates supported tensor element types.
type DType int

const (
	// DTypeF32 is 32-bit float.
	DTypeF32 DType = iota
	// DTypeF16 is 16-bit float.
	DTypeF16
	// DTypeI32 is 32-bit signed integer.
	DTypeI32
	// DTypeI8 is 8-bit signed integer.
	DTypeI8
	// DTypeU8 is 8-bit unsigned integer.
	DTypeU8
)

// SizeOf returns the byte width of a single element of the dtype.
func (d DType) SizeOf() int {
	switch d {
	case DTypeF32, DTypeI32:
		return 4
	case DTypeF16:
		return 2
	case DTypeI8, DTypeU8:
		return 1
	default:
		return 0
	}
}

// AudioPayload is the Audio variant of RuntimeData.
type AudioPayload struct {
	Samples    []float32
	SampleRate int
	Channels   int
	Format     AudioFormat
}

// VideoPayload is the Video variant of RuntimeData.
type VideoPayload struct {
	Pixels      []byte
	Width       int
	Height      int
	Format      PixelFormat
	TimestampUs uint64
}

// TensorPayload is the Tensor variant of RuntimeData.
type TensorPayload struct {
	Bytes []byte
	Shape []int
	DType DType
}

// RuntimeData is the closed discriminated union transported between nodes.
// Exactly one of the typed fields is populated according to Type.
type RuntimeData struct {
	Type DataType

	Audio *AudioPayload
	Video *VideoPayload
	Tensor *TensorPayload
	JSON  any
	Text  string
	Lang  string // optional BCP-47 language tag for Text
	Bytes []byte
	MIME  string
}

// Empty returns the Empty variant.
func Empty() RuntimeData { return RuntimeData{Type: DataTypeEmpty} }

// NewAudio constructs and validates an Audio variant.
func NewAudio(samples []float32, sampleRate, channels int, format AudioFormat) (RuntimeData, error) {
	d := RuntimeData{Type: DataTypeAudio, Audio: &AudioPayload{
		Samples: samples, SampleRate: sampleRate, Channels: channels, Format: format,
	}}
	if err := d.Validate(); err != nil {
		return RuntimeData{}, err
	}
	return d, nil
}

// NewVideo constructs and validates a Video variant.
func NewVideo(pixels []byte, width, height int, format PixelFormat, timestampUs uint64) (RuntimeData, error) {
	d := RuntimeData{Type: DataTypeVideo, Video: &VideoPayload{
		Pixels: pixels, Width: width, Height: height, Format: format, TimestampUs: timestampUs,
	}}
	if err := d.Validate(); err != nil {
		return RuntimeData{}, err
	}
	return d, nil
}

// NewTensor constructs and validates a Tensor variant.
func NewTensor(bytes []byte, shape []int, dtype DType) (RuntimeData, error) {
	d := RuntimeData{Type: DataTypeTensor, Tensor: &TensorPayload{Bytes: bytes, Shape: shape, DType: dtype}}
	if err := d.Validate(); err != nil {
		return RuntimeData{}, err
	}
	return d, nil
}

// NewJSON constructs a JSON variant.
func NewJSON(value any) RuntimeData {
	return RuntimeData{Type: DataTypeJSON, JSON: value}
}

// NewText constructs and validates a Text variant.
func NewText(text, lang string) (RuntimeData, error) {
	d := RuntimeData{Type: DataTypeText, Text: text, Lang: lang}
	if err := d.Validate(); err != nil {
		return RuntimeData{}, err
	}
	return d, nil
}

// NewBinary constructs a Binary variant.
func NewBinary(bytes []byte, mime string) RuntimeData {
	return RuntimeData{Type: DataTypeBinary, Bytes: bytes, MIME: mime}
}

func expectedVideoLength(v *VideoPayload) int {
	if v.Format == PixelFormatYUV420P {
		return v.Width*v.Height + 2*((v.Width+1)/2)*((v.Height+1)/2)
	}
	return v.Width * v.Height * v.Format.BytesPerPixel()
}

// Validate enforces the shape invariants for the populated variant.
func (d RuntimeData) Validate() error {
	switch d.Type {
	case DataTypeAudio:
		if d.Audio == nil {
			return invalidInput("audio payload is nil", nil)
		}
		if d.Audio.Channels < 1 {
			return invalidInput("audio channels must be >= 1", map[string]any{
				"channels": d.Audio.Channels,
			})
		}
		if d.Audio.SampleRate <= 0 {
			return invalidInput("audio sample_rate must be positive", map[string]any{
				"sample_rate": d.Audio.SampleRate,
			})
		}
	case DataTypeVideo:
		if d.Video == nil {
			return invalidInput("video payload is nil", nil)
		}
		want := expectedVideoLength(d.Video)
		if len(d.Video.Pixels) != want {
			return invalidInput("video pixel length mismatch", map[string]any{
				"width":    d.Video.Width,
				"height":   d.Video.Height,
				"format":   d.Video.Format.String(),
				"expected": want,
				"observed": len(d.Video.Pixels),
			})
		}
	case DataTypeTensor:
		if d.Tensor == nil {
			return invalidInput("tensor payload is nil", nil)
		}
		elems := 1
		for _, s := range d.Tensor.Shape {
			if s <= 0 {
				return invalidInput("tensor shape entries must be positive", map[string]any{
					"shape": d.Tensor.Shape,
				})
			}
			elems *= s
		}
		want := elems * d.Tensor.DType.SizeOf()
		if len(d.Tensor.Bytes) != want {
			return invalidInput("tensor byte length mismatch", map[string]any{
				"shape":    d.Tensor.Shape,
				"dtype":    d.Tensor.DType,
				"expected": want,
				"observed": len(d.Tensor.Bytes),
			})
		}
	case DataTypeText:
		if !utf8.ValidString(d.Text) {
			offset := firstInvalidUTF8Offset(d.Text)
			return invalidInput("text is not valid utf-8", map[string]any{
				"byte_offset": offset,
			})
		}
	case DataTypeJSON, DataTypeBinary, DataTypeEmpty:
		// no structural invariants beyond the discriminant itself
	}
	return nil
}

func firstInvalidUTF8Offset(s string) int {
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return -1
}

func invalidInput(msg string, details map[string]any) error {
	return pkgerrors.New("runtimedata", "validate", pkgerrors.ErrInvalidInput).
		WithDetails(mergeDetails(msg, details))
}

func mergeDetails(msg string, details map[string]any) map[string]any {
	out := map[string]any{"message": msg}
	for k, v := range details {
		out[k] = v
	}
	return out
}

// DataTypeOf returns the variant discriminant.
func (d RuntimeData) DataTypeOf() DataType { return d.Type }

// ItemCount returns samples, pixels, tensor elements, UTF-8 rune count, or
// byte count, depending on the variant.
func (d RuntimeData) ItemCount() int {
	switch d.Type {
	case DataTypeAudio:
		if d.Audio == nil {
			return 0
		}
		return len(d.Audio.Samples)
	case DataTypeVideo:
		if d.Video == nil {
			return 0
		}
		return d.Video.Width * d.Video.Height
	case DataTypeTensor:
		if d.Tensor == nil {
			return 0
		}
		elems := 1
		for _, s := range d.Tensor.Shape {
			elems *= s
		}
		return elems
	case DataTypeText:
		return utf8.RuneCountInString(d.Text)
	case DataTypeBinary:
		return len(d.Bytes)
	default:
		return 0
	}
}

// SizeBytes returns the in-memory payload size in bytes.
func (d RuntimeData) SizeBytes() int {
	switch d.Type {
	case DataTypeAudio:
		if d.Audio == nil {
			return 0
		}
		return len(d.Audio.Samples) * 4
	case DataTypeVideo:
		if d.Video == nil {
			return 0
		}
		return len(d.Video.Pixels)
	case DataTypeTensor:
		if d.Tensor == nil {
			return 0
		}
		return len(d.Tensor.Bytes)
	case DataTypeText:
		return len(d.Text)
	case DataTypeBinary:
		return len(d.Bytes)
	default:
		return 0
	}
}

// Clone returns a shallow, header-only copy safe to fan out across multiple
// outgoing edges concurrently. Backing byte slices are shared, not copied;
// nodes must treat a received RuntimeData's bytes as immutable.
func (d RuntimeData) Clone() RuntimeData {
	out := d
	if d.Audio != nil {
		a := *d.Audio
		out.Audio = &a
	}
	if d.Video != nil {
		v := *d.Video
		out.Video = &v
	}
	if d.Tensor != nil {
		tp := *d.Tensor
		out.Tensor = &tp
	}
	return out
}

// audioTrailerLen is sample_rate(4) + channels(4) + format(4).
const audioTrailerLen = 12

// EncodeAudioTrailer packs the audio trailer fields into their wire layout.
func EncodeAudioTrailer(sampleRate, channels int, format AudioFormat) []byte {
	buf := make([]byte, audioTrailerLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(channels))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(format))
	return buf
}

// DecodeAudioTrailer unpacks the audio trailer fields from their wire layout.
func DecodeAudioTrailer(buf []byte) (sampleRate, channels int, format AudioFormat, err error) {
	if len(buf) != audioTrailerLen {
		return 0, 0, 0, fmt.Errorf("audio trailer must be %d bytes, got %d", audioTrailerLen, len(buf))
	}
	sampleRate = int(binary.LittleEndian.Uint32(buf[0:4]))
	channels = int(binary.LittleEndian.Uint32(buf[4:8]))
	format = AudioFormat(binary.LittleEndian.Uint32(buf[8:12]))
	return sampleRate, channels, format, nil
}
