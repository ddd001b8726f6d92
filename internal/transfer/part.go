package transfer

import (
	"errors"
	"fmt"
)

var (
	ErrUndeclared       = errors.New("transfer: part size not declared")
	ErrOverflow         = errors.New("transfer: data exceeds declared size")
	ErrIncomplete       = errors.New("transfer: parts incomplete at assembly")
	ErrChecksumMismatch = errors.New("transfer: checksum mismatch")
	ErrMalformed        = errors.New("transfer: malformed chunk")
	ErrAckOutOfRange    = errors.New("transfer: acknowledged offset out of range")
)

// Part accumulates one size-prefixed block of a chunked transfer.
type Part struct {
	expected int
	declared bool
	buf      []byte
}

// Reset declares a new expected size and empties the buffer.
func (p *Part) Reset(size int) {
	p.expected = size
	p.declared = true
	p.buf = make([]byte, 0, size)
}

// Clear forgets the declaration.
func (p *Part) Clear() {
	*p = Part{}
}

func (p *Part) Append(data []byte) error {
	if !p.declared {
		return ErrUndeclared
	}
	if len(p.buf)+len(data) > p.expected {
		return fmt.Errorf("%w: have=%d add=%d expected=%d", ErrOverflow, len(p.buf), len(data), p.expected)
	}
	p.buf = append(p.buf, data...)
	return nil
}

func (p *Part) Declared() bool { return p.declared }

func (p *Part) Expected() int { return p.expected }

func (p *Part) Len() int { return len(p.buf) }

// Progress is the received fraction in [0,1]; an empty declared part is
// complete.
func (p *Part) Progress() float64 {
	if !p.declared {
		return 0
	}
	if p.expected == 0 {
		return 1
	}
	return float64(len(p.buf)) / float64(p.expected)
}

func (p *Part) Complete() bool {
	return p.declared && len(p.buf) == p.expected
}

func (p *Part) Bytes() []byte { return p.buf }
