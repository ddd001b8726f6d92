package transfer

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/wearctl/internal/protocol/codec"
	"github.com/rs/zerolog/log"
)

// PartKind names one section of a camera capture.
type PartKind uint8

const (
	PartHeader PartKind = iota
	PartImage
	PartFooter

	partCount
)

func (k PartKind) String() string {
	switch k {
	case PartHeader:
		return "header"
	case PartImage:
		return "image"
	case PartFooter:
		return "footer"
	default:
		return fmt.Sprintf("part(%d)", uint8(k))
	}
}

// ChunkKind is the wire code of a camera data sub-message.
type ChunkKind uint8

const (
	ChunkHeaderSize ChunkKind = iota
	ChunkHeader
	ChunkImageSize
	ChunkImage
	ChunkFooterSize
	ChunkFooter
)

// Chunk is one decoded camera data sub-message. Size is set for the size
// kinds, Data for the others.
type Chunk struct {
	Kind ChunkKind
	Part PartKind
	Size int
	Data []byte
}

func (c Chunk) IsSize() bool { return c.Kind%2 == 0 }

// ParseCameraData splits a camera data payload into chunks. Header and footer
// sizes are u16 LE, the image size is u32 LE. Chunks decoded before an error
// are returned with it.
func ParseCameraData(payload []byte) ([]Chunk, error) {
	msgs, truncated := codec.Decode(payload, 0, codec.Length16)
	chunks := make([]Chunk, 0, len(msgs))
	for _, m := range msgs {
		kind := ChunkKind(m.Type)
		c := Chunk{Kind: kind, Part: PartKind(kind / 2)}
		switch kind {
		case ChunkHeaderSize, ChunkFooterSize:
			if len(m.Payload) != 2 {
				return chunks, fmt.Errorf("%w: %s size len=%d", ErrMalformed, c.Part, len(m.Payload))
			}
			c.Size = int(binary.LittleEndian.Uint16(m.Payload))
		case ChunkImageSize:
			if len(m.Payload) != 4 {
				return chunks, fmt.Errorf("%w: image size len=%d", ErrMalformed, len(m.Payload))
			}
			c.Size = int(binary.LittleEndian.Uint32(m.Payload))
		case ChunkHeader, ChunkImage, ChunkFooter:
			c.Data = m.Payload
		default:
			return chunks, fmt.Errorf("%w: kind=%d", ErrMalformed, m.Type)
		}
		chunks = append(chunks, c)
	}
	return chunks, truncated
}

// EncodeChunks is the inverse of ParseCameraData.
func EncodeChunks(chunks ...Chunk) ([]byte, error) {
	var out []byte
	for _, c := range chunks {
		var payload []byte
		switch c.Kind {
		case ChunkImageSize:
			payload = binary.LittleEndian.AppendUint32(nil, uint32(c.Size))
		case ChunkHeaderSize, ChunkFooterSize:
			payload = binary.LittleEndian.AppendUint16(nil, uint16(c.Size))
		default:
			payload = c.Data
		}
		var err error
		if out, err = codec.AppendMessage(out, codec.Message{Type: byte(c.Kind), Payload: payload}, codec.Length16); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Result reports the state after one chunk was applied.
type Result struct {
	Part     PartKind
	Progress float64
	// Image is set only when the capture was assembled.
	Image     []byte
	Assembled bool
}

// ImageAssembler rebuilds a capture from its header, image and footer parts.
// Assembly is attempted when the image or footer part completes and the
// other one is already complete. It is owned by one device goroutine.
type ImageAssembler struct {
	parts [partCount]Part
}

// Declare (re)initializes part with the given expected size.
func (a *ImageAssembler) Declare(part PartKind, size int) {
	if part >= partCount {
		return
	}
	a.parts[part].Reset(size)
}

// Append adds data to part and returns the new progress. When the append
// completes the capture the assembled image is returned and all parts are
// cleared.
func (a *ImageAssembler) Append(part PartKind, data []byte) (Result, error) {
	if part >= partCount {
		return Result{}, fmt.Errorf("%w: part=%d", ErrMalformed, part)
	}
	p := &a.parts[part]
	if err := p.Append(data); err != nil {
		return Result{Part: part, Progress: p.Progress()}, fmt.Errorf("%s: %w", part, err)
	}
	res := Result{Part: part, Progress: p.Progress()}
	if part == PartHeader || !p.Complete() {
		return res, nil
	}
	if !a.parts[PartImage].Complete() || !a.parts[PartFooter].Complete() {
		return res, nil
	}
	img, err := a.assemble()
	if err != nil {
		log.Warn().Msgf("transfer.ImageAssembler.Append skipped assembly err=%v", err)
		return res, err
	}
	res.Image, res.Assembled = img, true
	return res, nil
}

// Apply routes a parsed camera chunk to Declare or Append.
func (a *ImageAssembler) Apply(c Chunk) (Result, error) {
	if c.IsSize() {
		a.Declare(c.Part, c.Size)
		return Result{Part: c.Part, Progress: a.parts[c.Part].Progress()}, nil
	}
	return a.Append(c.Part, c.Data)
}

func (a *ImageAssembler) assemble() ([]byte, error) {
	total := 0
	for k := range a.parts {
		if !a.parts[k].Complete() {
			return nil, fmt.Errorf("%w: %s", ErrIncomplete, PartKind(k))
		}
		total += a.parts[k].Len()
	}
	out := make([]byte, 0, total)
	for k := range a.parts {
		out = append(out, a.parts[k].Bytes()...)
	}
	a.Reset()
	return out, nil
}

func (a *ImageAssembler) Progress(part PartKind) float64 {
	if part >= partCount {
		return 0
	}
	return a.parts[part].Progress()
}

func (a *ImageAssembler) Reset() {
	for k := range a.parts {
		a.parts[k].Clear()
	}
}
