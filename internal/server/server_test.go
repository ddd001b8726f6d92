package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/wearctl/internal/device"
	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/protocol/session"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
	"github.com/danmuck/wearctl/internal/transport"
	"github.com/gorilla/websocket"
)

// fakeDevices runs operations against unconnected devices, which is enough
// to exercise argument handling and error mapping.
type fakeDevices struct {
	devs     map[string]*device.Device
	firmware string
}

func newFakeDevices(ids ...string) *fakeDevices {
	f := &fakeDevices{devs: make(map[string]*device.Device)}
	for _, id := range ids {
		f.devs[id] = device.New(id, device.Options{})
	}
	return f
}

func (f *fakeDevices) Devices() []string {
	out := make([]string, 0, len(f.devs))
	for id := range f.devs {
		out = append(out, id)
	}
	return out
}

func (f *fakeDevices) Snapshot(_ context.Context, id string) (device.Snapshot, error) {
	d, ok := f.devs[id]
	if !ok {
		return device.Snapshot{}, transport.ErrUnknown
	}
	return d.Snapshot(), nil
}

func (f *fakeDevices) Do(_ context.Context, id string, fn func(*device.Device) error) error {
	d, ok := f.devs[id]
	if !ok {
		return transport.ErrUnknown
	}
	return fn(d)
}

func (f *fakeDevices) UpdateFirmware(_ context.Context, id string, image io.Reader) error {
	if _, ok := f.devs[id]; !ok {
		return transport.ErrUnknown
	}
	b, err := io.ReadAll(image)
	f.firmware = string(b)
	return err
}

func newTestServer(t *testing.T, devs Devices, hub *events.Hub) *Server {
	t.Helper()
	if hub == nil {
		hub = events.NewHub()
	}
	return New(Config{Addr: "127.0.0.1:0"}, devs, hub)
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, newFakeDevices("a"), nil)
	rec := do(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"devices":1`) {
		t.Fatalf("health got=%d body=%s", rec.Code, rec.Body.String())
	}
	if rec := do(t, s, http.MethodGet, "/metrics", ""); rec.Code != http.StatusOK {
		t.Fatalf("metrics got=%d", rec.Code)
	}
}

func TestDeviceSnapshotRoutes(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, newFakeDevices("a"), nil)
	rec := do(t, s, http.MethodGet, "/devices/a", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get device got=%d", rec.Code)
	}
	var snap device.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ID != "a" || snap.State != session.NotConnected.String() {
		t.Fatalf("unexpected snapshot got=%+v", snap)
	}
	if rec := do(t, s, http.MethodGet, "/devices/zzz", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown device got=%d", rec.Code)
	}
	if rec := do(t, s, http.MethodGet, "/devices", ""); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"id":"a"`) {
		t.Fatalf("list got=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCommandErrorMapping(t *testing.T) {
	testlog.Start(t)
	s := newTestServer(t, newFakeDevices("a"), nil)
	cases := []struct {
		name, path, body string
		want             int
	}{
		{"unknown sensor", "/devices/a/sensor-configuration", `{"bogus": 10}`, http.StatusBadRequest},
		{"not connected", "/devices/a/sensor-configuration", `{"pressure": 10}`, http.StatusConflict},
		{"bad location", "/devices/a/vibrate", `{"locations": ["side"]}`, http.StatusBadRequest},
		{"vibrate not connected", "/devices/a/vibrate", `{"locations": ["front"], "effects": [{"effect": 1}]}`, http.StatusConflict},
		{"unknown command", "/devices/a/camera/explode", ``, http.StatusNotFound},
		{"camera not connected", "/devices/a/camera/focus", ``, http.StatusConflict},
		{"unknown device", "/devices/b/disconnect", ``, http.StatusNotFound},
		{"disconnect idle", "/devices/a/disconnect", ``, http.StatusOK},
	}
	for _, tc := range cases {
		rec := do(t, s, http.MethodPost, tc.path, tc.body)
		if rec.Code != tc.want {
			t.Fatalf("%s: got=%d want=%d body=%s", tc.name, rec.Code, tc.want, rec.Body.String())
		}
	}
}

func TestFirmwareUpload(t *testing.T) {
	testlog.Start(t)
	devs := newFakeDevices("a")
	s := newTestServer(t, devs, nil)
	if rec := do(t, s, http.MethodPost, "/devices/a/firmware", "IMAGE"); rec.Code != http.StatusOK {
		t.Fatalf("firmware got=%d", rec.Code)
	}
	if devs.firmware != "IMAGE" {
		t.Fatalf("image got=%q", devs.firmware)
	}
}

func TestWebsocketStreamsFilteredEvents(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := events.NewHub()
	go hub.Run(ctx)
	s := newTestServer(t, newFakeDevices("a"), hub)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?device=a"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// the subscription is registered after the upgrade; publish until seen
	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	go func() {
		for time.Now().Before(deadline) && ctx.Err() == nil {
			hub.Publish(events.FieldChanged{Meta: events.NewMeta("b", time.Now()), Protocol: "battery", Field: "level", Value: 1})
			hub.Publish(events.FieldChanged{Meta: events.NewMeta("a", time.Now()), Protocol: "battery", Field: "level", Value: 2})
			time.Sleep(20 * time.Millisecond)
		}
	}()

	var msg struct {
		Kind  string         `json:"kind"`
		Event map[string]any `json:"event"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Kind != "field" || msg.Event["device"] != "a" {
		t.Fatalf("unexpected message got=%+v", msg)
	}
}
