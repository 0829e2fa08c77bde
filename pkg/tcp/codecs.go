package tcp

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"moviesims/pkg/types"
)

// MaxFrameSize bounds a single frame. Result payloads for large user blocks
// run into tens of megabytes.
const MaxFrameSize = 256 << 20

// WriteMessage envía un mensaje con framing (4 bytes + JSON)
func WriteMessage(w io.Writer, msg types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if len(data) > MaxFrameSize {
		return fmt.Errorf("tcp: frame of %d bytes exceeds limit", len(data))
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	_, err = w.Write(frame)
	return err
}

// ReadMessage lee un frame completo y decodifica el JSON.
func ReadMessage(r io.Reader) (types.Message, error) {
	var msg types.Message

	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return msg, err
	}
	length := binary.BigEndian.Uint32(lenBuf)
	if length > MaxFrameSize {
		return msg, fmt.Errorf("tcp: frame of %d bytes exceeds limit", length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return msg, err
	}

	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("tcp: decoding frame: %w", err)
	}
	return msg, nil
}
