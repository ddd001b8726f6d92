package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/danmuck/wearctl/internal/events"
	"github.com/danmuck/wearctl/internal/testutil/testlog"
	"github.com/danmuck/wearctl/internal/testutil/tlstest"
)

func TestTLSConfigValidate(t *testing.T) {
	testlog.Start(t)
	if err := (TLSConfig{KeyFile: "k"}).Validate(); !errors.Is(err, ErrTLSCertFileRequired) {
		t.Fatalf("expected cert error got=%v", err)
	}
	if err := (TLSConfig{CertFile: "c"}).Validate(); !errors.Is(err, ErrTLSKeyFileRequired) {
		t.Fatalf("expected key error got=%v", err)
	}
	if err := (TLSConfig{CertFile: "c", KeyFile: "k", Mutual: true}).Validate(); !errors.Is(err, ErrTLSCAFileRequired) {
		t.Fatalf("expected ca error got=%v", err)
	}
}

// startTLS serves s on a loopback port and returns its base URL.
func startTLS(t *testing.T, tlsCfg TLSConfig) string {
	t.Helper()
	s := New(Config{Addr: "127.0.0.1:0", TLS: &tlsCfg}, newFakeDevices("a"), events.NewHub())
	built, err := tlsCfg.build()
	if err != nil {
		t.Fatalf("build tls: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	srv := &http.Server{Handler: s.Handler(), TLSConfig: built, ReadHeaderTimeout: time.Second}
	go func() { done <- s.serve(ctx, srv, ln) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("serve: %v", err)
		}
	})
	return "https://" + ln.Addr().String()
}

func TestServerMutualTLS(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, "wearctl-test-ca")
	pair := ca.Server(t, "admin")
	url := startTLS(t, TLSConfig{CertFile: pair.CertFile, KeyFile: pair.KeyFile, ClientCAFile: ca.CAFile(), Mutual: true})

	anon := &http.Client{Timeout: 2 * time.Second, Transport: &http.Transport{TLSClientConfig: ca.ClientConfig(t, nil)}}
	if resp, err := anon.Get(url + "/health"); err == nil {
		resp.Body.Close()
		t.Fatalf("request without client certificate must fail status=%d", resp.StatusCode)
	}

	client := ca.Client(t, "operator")
	authed := &http.Client{Timeout: 2 * time.Second, Transport: &http.Transport{TLSClientConfig: ca.ClientConfig(t, &client)}}
	resp, err := authed.Get(url + "/health")
	if err != nil {
		t.Fatalf("authenticated request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status got=%d", resp.StatusCode)
	}
}

func TestServerTLSWithoutClientAuth(t *testing.T) {
	testlog.Start(t)
	ca := tlstest.NewAuthority(t, "wearctl-test-ca")
	pair := ca.Server(t, "admin")
	url := startTLS(t, TLSConfig{CertFile: pair.CertFile, KeyFile: pair.KeyFile})

	c := &http.Client{Timeout: 2 * time.Second, Transport: &http.Transport{TLSClientConfig: ca.ClientConfig(t, nil)}}
	resp, err := c.Get(url + "/devices")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status got=%d", resp.StatusCode)
	}
}
