package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/wearctl/internal/testutil/testlog"
)

func TestTemplateRoundTripsAndValidates(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected existing file error")
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.Name != "wearctl" || f.Session.MaxHandshakeChecks != 64 || len(f.Relays) != 1 {
		t.Fatalf("unexpected template got=%+v", f)
	}
	if f.Serial != nil || f.Redis != nil {
		t.Fatalf("optional sections should be absent")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	testlog.Start(t)
	f := Default()
	f.Heartbeat = "soon"
	f.Relays = append(f.Relays, RelaySection{Name: "phone"})
	f.Serial = &SerialSection{}
	f.Pairs = []PairSection{{Name: "feet", Devices: []string{"a", "a"}}}
	err := Validate(f)
	if !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got=%v", err)
	}
	for _, want := range []string{"heartbeat", "relays[1] addr", "duplicate name", "serial.device", "pairs[0]"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in err=%v", want, err)
		}
	}
}

func TestLoadParsesOptionalSections(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
name = "lab"

[redis]
addr = "127.0.0.1:6379"

[[pairs]]
name = "feet"
devices = ["left", "right"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.Redis == nil || f.Redis.Addr != "127.0.0.1:6379" {
		t.Fatalf("redis section got=%+v", f.Redis)
	}
	if len(f.Pairs) != 1 || f.Pairs[0].Devices[1] != "right" {
		t.Fatalf("pairs got=%+v", f.Pairs)
	}
}
