package runtimedata

import (
	"encoding/binary"
	"fmt"
	"math"
)

// wireTypeTag maps a DataType to the single-byte type_tag used on the wire.
// Stable across versions: never renumber an existing entry.
func wireTypeTag(t DataType) byte {
	switch t {
	case DataTypeEmpty:
		return 0
	case DataTypeAudio:
		return 1
	case DataTypeVideo:
		return 2
	case DataTypeTensor:
		return 3
	case DataTypeJSON:
		return 4
	case DataTypeText:
		return 5
	case DataTypeBinary:
		return 6
	default:
		return 0xFF
	}
}

func wireDataType(tag byte) (DataType, error) {
	switch tag {
	case 0:
		return DataTypeEmpty, nil
	case 1:
		return DataTypeAudio, nil
	case 2:
		return DataTypeVideo, nil
	case 3:
		return DataTypeTensor, nil
	case 4:
		return DataTypeJSON, nil
	case 5:
		return DataTypeText, nil
	case 6:
		return DataTypeBinary, nil
	default:
		return 0, fmt.Errorf("unknown wire type_tag %d", tag)
	}
}

// EncodeWire serializes a DataPacket's RuntimeData into the fixed
// little-endian layout:
//
//	type_tag(1) | session_len(2) | session_id(session_len) |
//	timestamp_us(8) | payload_len(4) | payload(payload_len)
//
// For Audio, payload is packed f32 samples followed by the 12-byte trailer
// (sample_rate u32, channels u32, format u32).
func EncodeWire(sessionID string, timestampUs uint64, data RuntimeData) ([]byte, error) {
	payload, err := encodePayload(data)
	if err != nil {
		return nil, err
	}

	if len(sessionID) > 0xFFFF {
		return nil, fmt.Errorf("session_id too long: %d bytes", len(sessionID))
	}

	buf := make([]byte, 0, 1+2+len(sessionID)+8+4+len(payload))
	buf = append(buf, wireTypeTag(data.Type))

	sessLen := make([]byte, 2)
	binary.LittleEndian.PutUint16(sessLen, uint16(len(sessionID)))
	buf = append(buf, sessLen...)
	buf = append(buf, sessionID...)

	ts := make([]byte, 8)
	binary.LittleEndian.PutUint64(ts, timestampUs)
	buf = append(buf, ts...)

	plen := make([]byte, 4)
	binary.LittleEndian.PutUint32(plen, uint32(len(payload)))
	buf = append(buf, plen...)
	buf = append(buf, payload...)

	return buf, nil
}

// DecodeWire is the inverse of EncodeWire.
func DecodeWire(buf []byte) (sessionID string, timestampUs uint64, data RuntimeData, err error) {
	if len(buf) < 1+2 {
		return "", 0, RuntimeData{}, fmt.Errorf("wire buffer too short for header: %d bytes", len(buf))
	}
	tag := buf[0]
	dt, err := wireDataType(tag)
	if err != nil {
		return "", 0, RuntimeData{}, err
	}

	sessLen := int(binary.LittleEndian.Uint16(buf[1:3]))
	offset := 3
	if len(buf) < offset+sessLen+8+4 {
		return "", 0, RuntimeData{}, fmt.Errorf("wire buffer too short for session/timestamp/payload_len")
	}
	sessionID = string(buf[offset : offset+sessLen])
	offset += sessLen

	timestampUs = binary.LittleEndian.Uint64(buf[offset : offset+8])
	offset += 8

	payloadLen := int(binary.LittleEndian.Uint32(buf[offset : offset+4]))
	offset += 4

	if len(buf) < offset+payloadLen {
		return "", 0, RuntimeData{}, fmt.Errorf("wire buffer too short for payload: want %d have %d",
			payloadLen, len(buf)-offset)
	}
	payload := buf[offset : offset+payloadLen]

	data, err = decodePayload(dt, payload)
	if err != nil {
		return "", 0, RuntimeData{}, err
	}
	return sessionID, timestampUs, data, nil
}

func encodePayload(data RuntimeData) ([]byte, error) {
	switch data.Type {
	case DataTypeEmpty:
		return nil, nil
	case DataTypeAudio:
		if data.Audio == nil {
			return nil, fmt.Errorf("audio payload is nil")
		}
		samples := make([]byte, len(data.Audio.Samples)*4)
		for i, s := range data.Audio.Samples {
			binary.LittleEndian.PutUint32(samples[i*4:i*4+4], float32ToBits(s))
		}
		trailer := EncodeAudioTrailer(data.Audio.SampleRate, data.Audio.Channels, data.Audio.Format)
		return append(samples, trailer...), nil
	case DataTypeVideo:
		if data.Video == nil {
			return nil, fmt.Errorf("video payload is nil")
		}
		trailer := make([]byte, 12)
		binary.LittleEndian.PutUint32(trailer[0:4], uint32(data.Video.Width))
		binary.LittleEndian.PutUint32(trailer[4:8], uint32(data.Video.Height))
		binary.LittleEndian.PutUint32(trailer[8:12], uint32(data.Video.Format))
		return append(append([]byte{}, data.Video.Pixels...), trailer...), nil
	case DataTypeTensor:
		if data.Tensor == nil {
			return nil, fmt.Errorf("tensor payload is nil")
		}
		// Trailer is dtype(4) + shape(4*ndims) + ndims(4), in that order, so
		// a decoder can find ndims at a fixed offset from the end of the
		// payload and work backward to locate dtype and shape without
		// needing an out-of-band dimension count.
		ndims := len(data.Tensor.Shape)
		trailer := make([]byte, 4+4*ndims+4)
		binary.LittleEndian.PutUint32(trailer[0:4], uint32(data.Tensor.DType))
		for i, s := range data.Tensor.Shape {
			binary.LittleEndian.PutUint32(trailer[4+4*i:8+4*i], uint32(s))
		}
		binary.LittleEndian.PutUint32(trailer[4+4*ndims:8+4*ndims], uint32(ndims))
		return append(append([]byte{}, data.Tensor.Bytes...), trailer...), nil
	case DataTypeText:
		return []byte(data.Text), nil
	case DataTypeBinary:
		return append([]byte{}, data.Bytes...), nil
	case DataTypeJSON:
		return nil, fmt.Errorf("JSON variant has no fixed binary trailer; encode via the manifest's wire codec")
	default:
		return nil, fmt.Errorf("unsupported data type for wire encoding: %v", data.Type)
	}
}

func decodePayload(dt DataType, payload []byte) (RuntimeData, error) {
	switch dt {
	case DataTypeEmpty:
		return Empty(), nil
	case DataTypeAudio:
		if len(payload) < audioTrailerLen {
			return RuntimeData{}, fmt.Errorf("audio payload shorter than trailer")
		}
		samplesLen := len(payload) - audioTrailerLen
		if samplesLen%4 != 0 {
			return RuntimeData{}, fmt.Errorf("audio sample bytes not a multiple of 4")
		}
		samples := make([]float32, samplesLen/4)
		for i := range samples {
			samples[i] = bitsToFloat32(binary.LittleEndian.Uint32(payload[i*4 : i*4+4]))
		}
		sampleRate, channels, format, err := DecodeAudioTrailer(payload[samplesLen:])
		if err != nil {
			return RuntimeData{}, err
		}
		return NewAudio(samples, sampleRate, channels, format)
	case DataTypeVideo:
		if len(payload) < 12 {
			return RuntimeData{}, fmt.Errorf("video payload shorter than trailer")
		}
		pixelsLen := len(payload) - 12
		trailer := payload[pixelsLen:]
		width := int(binary.LittleEndian.Uint32(trailer[0:4]))
		height := int(binary.LittleEndian.Uint32(trailer[4:8]))
		format := PixelFormat(binary.LittleEndian.Uint32(trailer[8:12]))
		pixels := append([]byte{}, payload[:pixelsLen]...)
		return NewVideo(pixels, width, height, format, 0)
	case DataTypeTensor:
		if len(payload) < 4 {
			return RuntimeData{}, fmt.Errorf("tensor payload shorter than ndims trailer")
		}
		ndims := int(binary.LittleEndian.Uint32(payload[len(payload)-4:]))
		trailerLen := 4 + 4*ndims + 4
		if len(payload) < trailerLen {
			return RuntimeData{}, fmt.Errorf("tensor payload shorter than shape trailer: want %d have %d",
				trailerLen, len(payload))
		}
		bytesLen := len(payload) - trailerLen
		dtype := DType(binary.LittleEndian.Uint32(payload[bytesLen : bytesLen+4]))
		shape := make([]int, ndims)
		for i := range shape {
			off := bytesLen + 4 + 4*i
			shape[i] = int(binary.LittleEndian.Uint32(payload[off : off+4]))
		}
		tensorBytes := append([]byte{}, payload[:bytesLen]...)
		return RuntimeData{Type: DataTypeTensor, Tensor: &TensorPayload{Bytes: tensorBytes, DType: dtype, Shape: shape}}, nil
	case DataTypeText:
		return NewText(string(payload), "")
	case DataTypeBinary:
		return NewBinary(append([]byte{}, payload...), ""), nil
	default:
		return RuntimeData{}, fmt.Errorf("unsupported data type for wire decoding: %v", dt)
	}
}

func float32ToBits(f float32) uint32 {
	return math.Float32bits(f)
}

func bitsToFloat32(b uint32) float32 {
	return math.Float32frombits(b)
}
