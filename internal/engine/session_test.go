package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/wearctl/internal/device"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
)

func TestSessionPostNeverBlocks(t *testing.T) {
	testlog.Start(t)
	s := newSession(device.New("dev-1", device.Options{}), 1, time.Hour)

	var order []string
	if err := s.Post(func(*device.Device) { order = append(order, "buffer") }); err != nil {
		t.Fatalf("first post: %v", err)
	}
	if err := s.Post(func(*device.Device) { order = append(order, "dropped") }); !errors.Is(err, ErrInboxFull) {
		t.Fatalf("expected ErrInboxFull got=%v", err)
	}
	if err := s.Control(func(*device.Device) { order = append(order, "control") }); err != nil {
		t.Fatalf("control: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	if _, err := s.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	// the snapshot is a control call, so the buffer may still be queued
	deadline := time.Now().Add(2 * time.Second)
	for len(s.inbox) > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := s.Snapshot(ctx); err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(order) != 2 || order[0] != "control" || order[1] != "buffer" {
		t.Fatalf("control callbacks must run before queued buffers, got=%v", order)
	}

	cancel()
	<-s.done
	if err := s.Post(func(*device.Device) {}); !errors.Is(err, ErrSessionStopped) {
		t.Fatalf("post after stop got=%v", err)
	}
	if err := s.Control(func(*device.Device) {}); !errors.Is(err, ErrSessionStopped) {
		t.Fatalf("control after stop got=%v", err)
	}
}
