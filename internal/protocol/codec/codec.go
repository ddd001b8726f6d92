package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
)

// MaxPayload is the largest payload a 2-byte length prefix can describe.
const MaxPayload = 0xFFFF

var (
	ErrPayloadTooLarge = errors.New("codec: payload too large")
	ErrTruncated       = errors.New("codec: truncated message")
	ErrInvalidOffset   = errors.New("codec: invalid start offset")
)

// LengthWidth is the byte width of a frame's length field.
type LengthWidth int

const (
	Length16 LengthWidth = 2
	Length8  LengthWidth = 1
)

func (w LengthWidth) max() int {
	if w == Length8 {
		return 0xFF
	}
	return MaxPayload
}

// Message is one decoded type/length/value frame.
type Message struct {
	Type    byte
	Payload []byte
}

// Size returns the encoded size of m using width w.
func (m Message) Size(w LengthWidth) int {
	return 1 + int(w) + len(m.Payload)
}

// TruncatedError reports where a scan stopped because a declared length ran
// past the end of the buffer.
type TruncatedError struct {
	Offset   int
	Type     byte
	Declared int
	Remain   int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("codec: truncated message type=%d at offset=%d: declared=%d remaining=%d",
		e.Type, e.Offset, e.Declared, e.Remain)
}

func (e *TruncatedError) Unwrap() error { return ErrTruncated }

// Encode frames payload as [type][len:u16 LE][payload].
func Encode(t byte, payload []byte) ([]byte, error) {
	return EncodeWidth(t, payload, Length16)
}

// EncodeWidth frames payload using the given length width.
func EncodeWidth(t byte, payload []byte, w LengthWidth) ([]byte, error) {
	return AppendMessage(nil, Message{Type: t, Payload: payload}, w)
}

// AppendMessage appends the framed form of m to dst.
func AppendMessage(dst []byte, m Message, w LengthWidth) ([]byte, error) {
	if len(m.Payload) > w.max() {
		return dst, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, len(m.Payload), w.max())
	}
	dst = append(dst, m.Type)
	switch w {
	case Length8:
		dst = append(dst, byte(len(m.Payload)))
	default:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(len(m.Payload)))
	}
	return append(dst, m.Payload...), nil
}

// Messages lazily yields every fully contained frame in buf starting at
// offset. The scan stops silently at the first truncated frame; a trailing
// type byte without a length is discarded.
func Messages(buf []byte, offset int, w LengthWidth) iter.Seq[Message] {
	return func(yield func(Message) bool) {
		_ = scan(buf, offset, w, yield)
	}
}

// Decode returns every fully contained frame in buf. When the scan stops on a
// truncated frame the messages before it are returned together with a
// *TruncatedError.
func Decode(buf []byte, offset int, w LengthWidth) ([]Message, error) {
	var out []Message
	err := scan(buf, offset, w, func(m Message) bool {
		out = append(out, m)
		return true
	})
	return out, err
}

// Each invokes fn once per decoded frame, in order, and reports why the scan
// stopped early (if it did).
func Each(buf []byte, offset int, w LengthWidth, fn func(Message)) error {
	return scan(buf, offset, w, func(m Message) bool {
		fn(m)
		return true
	})
}

func scan(buf []byte, offset int, w LengthWidth, yield func(Message) bool) error {
	if offset < 0 || offset > len(buf) {
		return fmt.Errorf("%w: %d", ErrInvalidOffset, offset)
	}
	i := offset
	for i < len(buf) {
		start := i
		t := buf[i]
		i++
		if len(buf)-i < int(w) {
			return nil
		}
		var n int
		switch w {
		case Length8:
			n = int(buf[i])
		default:
			n = int(binary.LittleEndian.Uint16(buf[i : i+2]))
		}
		i += int(w)
		if n > len(buf)-i {
			return &TruncatedError{Offset: start, Type: t, Declared: n, Remain: len(buf) - i}
		}
		payload := make([]byte, n)
		copy(payload, buf[i:i+n])
		i += n
		if !yield(Message{Type: t, Payload: payload}) {
			return nil
		}
	}
	return nil
}
