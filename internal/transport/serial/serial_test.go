package serial

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/danmuck/wearctl/internal/testutil/testlog"
	"github.com/danmuck/wearctl/internal/transport"
)

func TestCRC16ARCCheckValue(t *testing.T) {
	testlog.Start(t)
	if got := CRC16([]byte("123456789")); got != 0xBB3D {
		t.Fatalf("crc16/arc check got=0x%04x", got)
	}
}

func TestParserSplitStreamAndResync(t *testing.T) {
	testlog.Start(t)
	a, _ := AppendFrame(nil, Frame{ID: SlotData, Payload: []byte{3, 0xAA, 0xBB}})
	b, _ := AppendFrame(nil, Frame{ID: SlotSent, Payload: []byte{3, 0}})
	corrupt := bytes.Clone(a)
	corrupt[len(corrupt)-1] ^= 0xFF

	stream := append([]byte{0x00, SyncByte1, 0x42}, corrupt...)
	stream = append(stream, a...)
	stream = append(stream, b...)

	var p Parser
	var got []Frame
	for _, by := range stream {
		got = append(got, p.Feed([]byte{by})...)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got=%d", len(got))
	}
	if got[0].ID != SlotData || !bytes.Equal(got[0].Payload, []byte{3, 0xAA, 0xBB}) {
		t.Fatalf("unexpected first frame got=%+v", got[0])
	}
	if got[1].ID != SlotSent {
		t.Fatalf("unexpected second frame got=%+v", got[1])
	}
	if p.Dropped() != 1 {
		t.Fatalf("expected one dropped frame, got=%d", p.Dropped())
	}
}

func TestParserRejectsOversizedLength(t *testing.T) {
	testlog.Start(t)
	if _, err := AppendFrame(nil, Frame{ID: SlotData, Payload: make([]byte, MaxPayloadLength+1)}); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got=%v", err)
	}
	hdr := []byte{SyncByte1, SyncByte2, byte(SlotData), 0xFF, 0xFF}
	var p Parser
	if frames := p.Feed(hdr); len(frames) != 0 || p.Dropped() != 1 {
		t.Fatalf("oversized header must be dropped, frames=%d dropped=%d", len(frames), p.Dropped())
	}
}

// pipePort joins a bridge to a test radio.
type pipePort struct {
	io.Reader
	io.Writer
	closeFn func() error
}

func (p pipePort) Close() error { return p.closeFn() }

type call struct {
	kind string
	id   string
	data []byte
	link transport.Link
	err  error
}

type recordHandler struct{ calls chan call }

func (h recordHandler) LinkUp(id string, link transport.Link) {
	h.calls <- call{kind: "up", id: id, link: link}
}
func (h recordHandler) LinkDown(id string, err error) {
	h.calls <- call{kind: "down", id: id, err: err}
}
func (h recordHandler) Received(id string, data []byte) {
	h.calls <- call{kind: "recv", id: id, data: bytes.Clone(data)}
}
func (h recordHandler) SendComplete(id string, err error) {
	h.calls <- call{kind: "sent", id: id, err: err}
}
func (h recordHandler) BatteryLevel(id string, level uint8) {
	h.calls <- call{kind: "battery", id: id, data: []byte{level}}
}
func (h recordHandler) Information(id, field, value string) {
	h.calls <- call{kind: "info", id: id, data: []byte(field + "=" + value)}
}

func (h recordHandler) next(t *testing.T) call {
	t.Helper()
	select {
	case c := <-h.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for handler call")
	}
	return call{}
}

func TestBridgeSlotLifecycle(t *testing.T) {
	testlog.Start(t)
	fromRadio, toBridge := io.Pipe()
	fromBridge, toRadio := io.Pipe()
	port := pipePort{Reader: fromRadio, Writer: toRadio, closeFn: func() error {
		_ = fromRadio.Close()
		return toRadio.Close()
	}}
	h := recordHandler{calls: make(chan call, 16)}
	br := New(port, Config{}, h)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- br.Run(ctx) }()

	radio := func(f Frame) {
		buf, err := AppendFrame(nil, f)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if _, err := toBridge.Write(buf); err != nil {
			t.Fatalf("radio write: %v", err)
		}
	}

	radio(Frame{ID: SlotUp, Payload: append([]byte{5}, "insole-L"...)})
	up := h.next(t)
	if up.kind != "up" || up.id != "insole-L" {
		t.Fatalf("unexpected call got=%+v", up)
	}
	radio(Frame{ID: SlotData, Payload: []byte{5, 1, 2}})
	if c := h.next(t); c.kind != "recv" || !bytes.Equal(c.data, []byte{1, 2}) {
		t.Fatalf("unexpected call got=%+v", c)
	}
	radio(Frame{ID: SlotInfo, Payload: append([]byte{5, 5}, "modelX1"...)})
	if c := h.next(t); c.kind != "info" || string(c.data) != "model=X1" {
		t.Fatalf("unexpected info got=%+v", c)
	}

	if err := up.link.Send([]byte{7, 7}); err != nil {
		t.Fatalf("send: %v", err)
	}
	var p Parser
	buf := make([]byte, 64)
	var frames []Frame
	for len(frames) == 0 {
		n, err := fromBridge.Read(buf)
		if err != nil {
			t.Fatalf("read bridge output: %v", err)
		}
		frames = p.Feed(buf[:n])
	}
	if frames[0].ID != SlotData || !bytes.Equal(frames[0].Payload, []byte{5, 7, 7}) {
		t.Fatalf("unexpected outbound frame got=%+v", frames[0])
	}
	radio(Frame{ID: SlotSent, Payload: []byte{5, 0}})
	if c := h.next(t); c.kind != "sent" || c.err != nil {
		t.Fatalf("unexpected completion got=%+v", c)
	}

	radio(Frame{ID: SlotDown, Payload: []byte{5}})
	if c := h.next(t); c.kind != "down" || c.id != "insole-L" {
		t.Fatalf("unexpected call got=%+v", c)
	}
	if err := up.link.Send([]byte{1}); !errors.Is(err, transport.ErrLinkClosed) {
		t.Fatalf("expected ErrLinkClosed, got=%v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("bridge did not stop")
	}
}
