package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderReadBytesAliasesInput(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	r := NewReader(data)

	got, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("ReadBytes: got %v, want [1 2 3]", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len: got %d, want 2", r.Len())
	}
	if !bytes.Equal(r.Span(1, 4), []byte{0x02, 0x03, 0x04}) {
		t.Errorf("Span: got %v", r.Span(1, 4))
	}

	if _, err := r.ReadBytes(10); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestReaderReadU32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		got, err := NewReader(tt.encoded).ReadU32()
		if err != nil {
			t.Errorf("ReadU32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadU32(%v) = %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadU32Overflow(t *testing.T) {
	_, err := NewReader([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x01}).ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReaderReadSigned(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    int64
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, -1},
		{[]byte{0x40}, -64},
		{[]byte{0x80, 0x7f}, -128},
		{[]byte{0x3f}, 63},
	}

	for _, tt := range tests {
		got, err := NewReader(tt.encoded).ReadS64()
		if err != nil {
			t.Errorf("ReadS64(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadS64(%v) = %d, want %d", tt.encoded, got, tt.want)
		}
		got32, err := NewReader(tt.encoded).ReadS32()
		if err != nil || int64(got32) != tt.want {
			t.Errorf("ReadS32(%v) = %d, %v", tt.encoded, got32, err)
		}
	}
}

func TestReaderReadNameInvalidUTF8(t *testing.T) {
	_, err := NewReader([]byte{0x02, 0xff, 0xfe}).ReadName()
	if err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}

func TestReaderReadRemaining(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03})
	_, _ = r.ReadByte()
	rest := r.ReadRemaining()
	if !bytes.Equal(rest, []byte{0x02, 0x03}) {
		t.Errorf("ReadRemaining: got %v", rest)
	}
	if r.Len() != 0 {
		t.Errorf("Len after ReadRemaining: %d", r.Len())
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU32(624485)
	w.WriteS32(-128)
	w.WriteS64(-1 << 40)
	w.WriteName("wasi_snapshot_preview1")
	w.WriteF32(1.5)
	w.WriteF64(-2.25)

	r := NewReader(w.Bytes())
	u, _ := r.ReadU32()
	s32, _ := r.ReadS32()
	s64, _ := r.ReadS64()
	name, _ := r.ReadName()
	if u != 624485 || s32 != -128 || s64 != -1<<40 || name != "wasi_snapshot_preview1" {
		t.Fatalf("round trip mismatch: %d %d %d %q", u, s32, s64, name)
	}
	if err := r.Skip(12); err != nil {
		t.Fatalf("Skip floats: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("unread bytes: %d", r.Len())
	}
}

func TestWriterSection(t *testing.T) {
	w := NewWriter()
	w.Section(0x02, []byte{0xaa, 0xbb})
	if !bytes.Equal(w.Bytes(), []byte{0x02, 0x02, 0xaa, 0xbb}) {
		t.Errorf("Section: got %x", w.Bytes())
	}
}

func TestParseErrorUnwrap(t *testing.T) {
	r := NewReader(nil)
	err := r.WrapError("import", io.EOF)
	if !errors.Is(err, io.EOF) {
		t.Error("ParseError should unwrap to cause")
	}
	if err.Error() != "wasm: import at position 0: EOF" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
