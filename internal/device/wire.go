package device

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrPayload       = errors.New("device: malformed payload")
	ErrNotConnected  = errors.New("device: not connected")
	ErrUnsupported   = errors.New("device: capability not available")
	ErrInvalidArg    = errors.New("device: invalid argument")
	ErrTransferBusy  = errors.New("device: file transfer in progress")
	ErrNoTransfer    = errors.New("device: no file transfer in progress")
	ErrFileTooLarge  = errors.New("device: file exceeds device maximum")
	ErrUnhandledType = errors.New("device: message type has no handler")
)

func wantLen(p []byte, n int) error {
	if len(p) != n {
		return fmt.Errorf("%w: len=%d want=%d", ErrPayload, len(p), n)
	}
	return nil
}

func readBool(p []byte) (bool, error) {
	if err := wantLen(p, 1); err != nil {
		return false, err
	}
	return p[0] != 0, nil
}

func readU8(p []byte) (uint8, error) {
	if err := wantLen(p, 1); err != nil {
		return 0, err
	}
	return p[0], nil
}

func readU16(p []byte) (uint16, error) {
	if err := wantLen(p, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(p), nil
}

func readU32(p []byte) (uint32, error) {
	if err := wantLen(p, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(p), nil
}

func readU64(p []byte) (uint64, error) {
	if err := wantLen(p, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(p), nil
}

func readF32(p []byte) (float32, error) {
	v, err := readU32(p)
	return math.Float32frombits(v), err
}

// readString trims trailing NUL padding.
func readString(p []byte) string {
	return strings.TrimRight(string(p), "\x00")
}

func boolByte(v bool) []byte {
	if v {
		return []byte{1}
	}
	return []byte{0}
}

func u16Bytes(v uint16) []byte { return binary.LittleEndian.AppendUint16(nil, v) }
func u32Bytes(v uint32) []byte { return binary.LittleEndian.AppendUint32(nil, v) }
func u64Bytes(v uint64) []byte { return binary.LittleEndian.AppendUint64(nil, v) }
func f32Bytes(v float32) []byte {
	return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
}

// parseEntries decodes repeated [key:u8][value:u16 LE] entries.
func parseEntries(p []byte) (map[uint8]uint16, error) {
	if len(p)%3 != 0 {
		return nil, fmt.Errorf("%w: entries len=%d not a multiple of 3", ErrPayload, len(p))
	}
	out := make(map[uint8]uint16, len(p)/3)
	for i := 0; i < len(p); i += 3 {
		out[p[i]] = binary.LittleEndian.Uint16(p[i+1:])
	}
	return out, nil
}
