package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// writeFrame and readFrame add a 4-byte little-endian length prefix around
// an already-encoded runtimedata wire buffer, so a stream socket knows
// where one message ends and the next begins.
func writeFrame(w io.Writer, payload []byte) error {
	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(header)
	if n > 64*1024*1024 {
		return nil, fmt.Errorf("ipc: frame too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
