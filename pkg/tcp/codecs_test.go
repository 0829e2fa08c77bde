package tcp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"moviesims/pkg/types"
)

func TestWriteReadMessage(t *testing.T) {
	var buf bytes.Buffer

	msg, err := types.NewMessage(types.MsgHello, types.Hello{Concurrency: 4})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if err := WriteMessage(&buf, msg); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	if err := WriteMessage(&buf, types.Message{Type: types.MsgAck, Data: []byte(`{"worker_id":"w1"}`)}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Type != types.MsgHello {
		t.Errorf("type = %q, want HELLO", got.Type)
	}

	got, err = ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if got.Type != types.MsgAck || string(got.Data) != `{"worker_id":"w1"}` {
		t.Errorf("unexpected second frame: %+v", got)
	}

	if _, err := ReadMessage(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on empty stream, got %v", err)
	}
}

func TestReadMessageTruncated(t *testing.T) {
	var buf bytes.Buffer
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, 100)
	buf.Write(header)
	buf.WriteString(`{"type":`)

	if _, err := ReadMessage(&buf); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadMessageOversized(t *testing.T) {
	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, MaxFrameSize+1)

	if _, err := ReadMessage(bytes.NewReader(header)); err == nil {
		t.Error("expected error for oversized frame")
	}
}
