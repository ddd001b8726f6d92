package registry

import (
	"errors"
	"testing"

	"github.com/danmuck/wearctl/internal/protocol/codec"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
)

func TestBuildAssignsContiguousCodesInProtocolOrder(t *testing.T) {
	testlog.Start(t)
	r, err := NewBuilder(StandardProtocols()...).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	var want []MessageType
	for _, p := range StandardProtocols() {
		want = append(want, p.Types...)
	}
	if r.Len() != len(want) {
		t.Fatalf("unexpected len=%d want=%d", r.Len(), len(want))
	}
	for i, mt := range want {
		code, err := r.Code(mt)
		if err != nil {
			t.Fatalf("code %s: %v", mt, err)
		}
		if int(code) != i {
			t.Fatalf("type %s got code=%d want=%d", mt, code, i)
		}
		back, err := r.Type(code)
		if err != nil || back != mt {
			t.Fatalf("reverse lookup code=%d got=%s err=%v", code, back, err)
		}
		if r.Name(code) != mt.String() {
			t.Fatalf("name mismatch code=%d got=%q", code, r.Name(code))
		}
	}

	if code := r.MustCode(IsBatteryCharging); code != 0 {
		t.Fatalf("battery must lead the code space, got %d", code)
	}
	if code := r.MustCode(GetMtu); code != 2 {
		t.Fatalf("information must follow battery, got %d", code)
	}
	if owner, ok := r.Protocol(CameraData); !ok || owner != "camera" {
		t.Fatalf("unexpected owner %q", owner)
	}
}

func TestBuildTwiceFails(t *testing.T) {
	testlog.Start(t)
	b := NewBuilder(Battery, Information)
	if _, err := b.Build(); err != nil {
		t.Fatalf("first build: %v", err)
	}
	if _, err := b.Build(); !errors.Is(err, ErrAlreadyBuilt) {
		t.Fatalf("expected ErrAlreadyBuilt, got %v", err)
	}
}

func TestBuildRejectsDuplicates(t *testing.T) {
	testlog.Start(t)
	_, err := NewBuilder(Battery, Battery).Build()
	if !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType, got %v", err)
	}
}

func TestUnknownCodeAndUnregisteredType(t *testing.T) {
	testlog.Start(t)
	r := NewBuilder(Battery).MustBuild()

	_, err := r.Type(200)
	if !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("expected ErrUnknownCode, got %v", err)
	}
	var uce UnknownCodeError
	if !errors.As(err, &uce) || uce.Code != 200 {
		t.Fatalf("unexpected error shape: %v", err)
	}

	if _, err := r.Code(CameraData); !errors.Is(err, ErrUnregistered) {
		t.Fatalf("expected ErrUnregistered, got %v", err)
	}

	defer func() {
		if recover() == nil {
			t.Fatalf("MustCode should panic on unregistered type")
		}
	}()
	r.MustCode(CameraData)
}

func TestDefaultIsSharedAndEncodes(t *testing.T) {
	testlog.Start(t)
	a, b := Default(), Default()
	if a != b {
		t.Fatalf("default registry rebuilt")
	}
	buf, err := a.Encode(GetName, []byte("sole"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msgs, err := codec.Decode(buf, 0, codec.Length16)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("decode: %v msgs=%d", err, len(msgs))
	}
	mt, err := a.Type(msgs[0].Type)
	if err != nil || mt != GetName || string(msgs[0].Payload) != "sole" {
		t.Fatalf("unexpected decode type=%s payload=%q err=%v", mt, msgs[0].Payload, err)
	}
}
