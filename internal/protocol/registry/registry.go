package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/wearctl/internal/protocol/codec"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyBuilt   = errors.New("registry: already built")
	ErrDuplicateType  = errors.New("registry: duplicate message type")
	ErrCodeSpaceFull  = errors.New("registry: code space exhausted")
	ErrUnregistered   = errors.New("registry: unregistered message type")
	ErrUnknownCode    = errors.New("registry: unknown message code")
	ErrEmptyProtocols = errors.New("registry: no sub-protocols")
)

// UnknownCodeError reports a received byte code with no registered type.
type UnknownCodeError struct {
	Code byte
}

func (e UnknownCodeError) Error() string {
	return fmt.Sprintf("registry: unknown message code %d", e.Code)
}

func (e UnknownCodeError) Unwrap() error { return ErrUnknownCode }

// Registry is the immutable two-way map between logical message types and
// their one-byte wire codes. Safe for concurrent reads.
type Registry struct {
	protocols []SubProtocol
	codes     map[MessageType]byte
	types     []MessageType
	names     []string
	owners    []string
}

// Builder assembles a Registry from an ordered list of sub-protocols. A
// builder produces exactly one registry.
type Builder struct {
	mu        sync.Mutex
	protocols []SubProtocol
	built     bool
}

func NewBuilder(protocols ...SubProtocol) *Builder {
	return &Builder{protocols: protocols}
}

func (b *Builder) Build() (*Registry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	if len(b.protocols) == 0 {
		return nil, ErrEmptyProtocols
	}
	r := &Registry{
		protocols: append([]SubProtocol(nil), b.protocols...),
		codes:     make(map[MessageType]byte),
	}
	for _, p := range b.protocols {
		for _, t := range p.Types {
			if _, dup := r.codes[t]; dup {
				return nil, fmt.Errorf("%w: %s in %s", ErrDuplicateType, t, p.Name)
			}
			if len(r.types) > 0xFF {
				return nil, fmt.Errorf("%w: at %s.%s", ErrCodeSpaceFull, p.Name, t)
			}
			r.codes[t] = byte(len(r.types))
			r.types = append(r.types, t)
			r.names = append(r.names, t.String())
			r.owners = append(r.owners, p.Name)
		}
	}
	b.built = true
	log.Debug().Msgf("registry.Builder.Build protocols=%d types=%d", len(r.protocols), len(r.types))
	return r, nil
}

// MustBuild panics on failure; intended for fixed protocol lists.
func (b *Builder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry of the standard sub-protocols.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewBuilder(StandardProtocols()...).MustBuild()
	})
	return defaultRegistry
}

// Code returns the wire code assigned to t.
func (r *Registry) Code(t MessageType) (byte, error) {
	code, ok := r.codes[t]
	if !ok {
		return 0, fmt.Errorf("%w: %s (%d)", ErrUnregistered, t, uint16(t))
	}
	return code, nil
}

// MustCode is Code for compile-time constant types.
func (r *Registry) MustCode(t MessageType) byte {
	code, err := r.Code(t)
	if err != nil {
		panic(err)
	}
	return code
}

// Type resolves a received wire code.
func (r *Registry) Type(code byte) (MessageType, error) {
	if int(code) >= len(r.types) {
		return 0, UnknownCodeError{Code: code}
	}
	return r.types[code], nil
}

// Name returns the human-readable name registered for code.
func (r *Registry) Name(code byte) string {
	if int(code) >= len(r.names) {
		return fmt.Sprintf("unknown(%d)", code)
	}
	return r.names[code]
}

// Protocol returns the owning sub-protocol name of t.
func (r *Registry) Protocol(t MessageType) (string, bool) {
	code, ok := r.codes[t]
	if !ok {
		return "", false
	}
	return r.owners[code], true
}

func (r *Registry) Len() int { return len(r.types) }

func (r *Registry) Protocols() []SubProtocol {
	return append([]SubProtocol(nil), r.protocols...)
}

// Has reports whether t is registered.
func (r *Registry) Has(t MessageType) bool {
	_, ok := r.codes[t]
	return ok
}

// Encode frames payload under t's wire code.
func (r *Registry) Encode(t MessageType, payload []byte) ([]byte, error) {
	code, err := r.Code(t)
	if err != nil {
		return nil, err
	}
	return codec.Encode(code, payload)
}

// Message builds an outgoing codec message for t.
func (r *Registry) Message(t MessageType, payload []byte) (codec.Message, error) {
	code, err := r.Code(t)
	if err != nil {
		return codec.Message{}, err
	}
	if len(payload) > codec.MaxPayload {
		return codec.Message{}, fmt.Errorf("%w: %s len=%d", codec.ErrPayloadTooLarge, t, len(payload))
	}
	return codec.Message{Type: code, Payload: payload}, nil
}
