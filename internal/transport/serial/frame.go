package serial

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/wearctl/internal/observability"
	"github.com/rs/zerolog/log"
)

const (
	MaxPayloadLength = 1024
	SyncByte1        = 0xF6
	SyncByte2        = 0xD9

	headerLen = 5
)

// FrameID selects the meaning of a bridge frame. Every frame except the
// radio-level ones starts its payload with the slot number.
type FrameID uint8

const (
	SlotUp FrameID = iota + 1
	SlotDown
	SlotData
	SlotSent
	SlotBattery
	SlotInfo
	SlotDisconnect
)

func (id FrameID) String() string {
	switch id {
	case SlotUp:
		return "slotUp"
	case SlotDown:
		return "slotDown"
	case SlotData:
		return "slotData"
	case SlotSent:
		return "slotSent"
	case SlotBattery:
		return "slotBattery"
	case SlotInfo:
		return "slotInfo"
	case SlotDisconnect:
		return "slotDisconnect"
	}
	return fmt.Sprintf("frame(0x%02x)", uint8(id))
}

var ErrFrameTooLarge = errors.New("serial: payload exceeds frame limit")

type Frame struct {
	ID      FrameID
	Payload []byte
}

var crc16Table = func() (t [256]uint16) {
	for i := range t {
		crc := uint16(i)
		for range 8 {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}()

// CRC16 computes CRC-16/ARC.
func CRC16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crc>>8 ^ crc16Table[byte(crc)^b]
	}
	return crc
}

// AppendFrame appends the framed form of f:
// F6 D9 | id | len LE | header CRC LE | payload | payload CRC LE.
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadLength {
		return dst, fmt.Errorf("%w: %d", ErrFrameTooLarge, len(f.Payload))
	}
	start := len(dst)
	dst = append(dst, SyncByte1, SyncByte2, byte(f.ID))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(len(f.Payload)))
	dst = binary.LittleEndian.AppendUint16(dst, CRC16(dst[start:]))
	dst = append(dst, f.Payload...)
	return binary.LittleEndian.AppendUint16(dst, CRC16(f.Payload)), nil
}

type parseState uint8

const (
	stateSync1 parseState = iota
	stateSync2
	stateHeader
	stateHeaderCRC
	statePayload
	statePayloadCRC
)

// Parser reassembles frames from an arbitrary split byte stream. Bad CRCs
// and oversized lengths drop the frame and resynchronize on the next sync
// pair.
type Parser struct {
	state   parseState
	header  []byte
	crc     []byte
	payload []byte
	length  int
	dropped int
}

func (p *Parser) Dropped() int { return p.dropped }

// Feed consumes data and returns every frame completed by it.
func (p *Parser) Feed(data []byte) []Frame {
	var out []Frame
	for _, b := range data {
		if f, ok := p.feedByte(b); ok {
			out = append(out, f)
		}
	}
	return out
}

func (p *Parser) feedByte(b byte) (Frame, bool) {
	switch p.state {
	case stateSync1:
		if b == SyncByte1 {
			p.header = append(p.header[:0], b)
			p.state = stateSync2
		}
	case stateSync2:
		switch b {
		case SyncByte2:
			p.header = append(p.header, b)
			p.state = stateHeader
		case SyncByte1:
			// stay aligned on a repeated first sync byte
		default:
			p.state = stateSync1
		}
	case stateHeader:
		p.header = append(p.header, b)
		if len(p.header) == headerLen {
			p.length = int(binary.LittleEndian.Uint16(p.header[3:]))
			if p.length > MaxPayloadLength {
				p.drop("length", p.length)
				return Frame{}, false
			}
			p.crc = p.crc[:0]
			p.state = stateHeaderCRC
		}
	case stateHeaderCRC:
		p.crc = append(p.crc, b)
		if len(p.crc) < 2 {
			break
		}
		if binary.LittleEndian.Uint16(p.crc) != CRC16(p.header) {
			p.drop("header_crc", p.length)
			return Frame{}, false
		}
		p.payload = make([]byte, 0, p.length)
		p.crc = p.crc[:0]
		p.state = statePayload
		if p.length == 0 {
			p.state = statePayloadCRC
		}
	case statePayload:
		p.payload = append(p.payload, b)
		if len(p.payload) == p.length {
			p.state = statePayloadCRC
		}
	case statePayloadCRC:
		p.crc = append(p.crc, b)
		if len(p.crc) < 2 {
			break
		}
		p.state = stateSync1
		if binary.LittleEndian.Uint16(p.crc) != CRC16(p.payload) {
			p.drop("payload_crc", p.length)
			return Frame{}, false
		}
		return Frame{ID: FrameID(p.header[2]), Payload: p.payload}, true
	}
	return Frame{}, false
}

func (p *Parser) drop(reason string, length int) {
	p.dropped++
	p.state = stateSync1
	observability.RecordDecodeError("serial_" + reason)
	log.Debug().Msgf("serial.Parser.drop reason=%s len=%d dropped=%d", reason, length, p.dropped)
}
