package main

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/pion/logging"

	"ratefilter/internal/config"
	"ratefilter/internal/frame"
)

func TestLogLevel(t *testing.T) {
	cases := map[string]logging.LogLevel{
		"error": logging.LogLevelError,
		"warn":  logging.LogLevelWarn,
		"info":  logging.LogLevelInfo,
		"debug": logging.LogLevelDebug,
		"trace": logging.LogLevelTrace,
		"":      logging.LogLevelInfo,
	}
	for name, want := range cases {
		if got := logLevel(name); got != want {
			t.Fatalf("logLevel(%q)=%v want %v", name, got, want)
		}
	}
}

func TestLiveRuntime_SimRecordsAndBroadcasts(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error: %v", err)
	}
	defer pc.Close()

	recPath := filepath.Join(t.TempDir(), "rec.log")
	body := fmt.Sprintf(`
filter:
  window: 16
source:
  kind: sim
  rate_hz: 2000
  sim:
    noise_dps: 2
    samples: 200
output:
  udp_dest: %s
  record:
    enable: true
    path: %s
web:
  listen: 127.0.0.1:0
log:
  level: error
`, pc.LocalAddr().String(), recPath)
	cfg, err := config.Parse([]byte(body))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	rt, err := newLiveRuntime(cfg)
	if err != nil {
		t.Fatalf("newLiveRuntime() error: %v", err)
	}
	if p := rt.status.SamplePeriod(); p != 500*time.Microsecond {
		t.Fatalf("status sample period=%s want 500us", p)
	}

	got := make(chan frame.RateMessage, 1)
	go func() {
		buf := make([]byte, 512)
		for {
			n, _, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			m, err := frame.DecodeRate(buf[:n])
			if err != nil {
				continue
			}
			select {
			case got <- m:
			default:
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.Run(ctx); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	rt.Close()

	if snap := rt.svc.Snapshot(); snap.Samples != 200 {
		t.Fatalf("samples=%d want 200", snap.Samples)
	}

	select {
	case m := <-got:
		if m.Seq < 1 || m.Seq > 200 {
			t.Fatalf("seq=%d out of range", m.Seq)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no rate message received")
	}

	recs, err := readSampleLog(recPath)
	if err != nil {
		t.Fatalf("readSampleLog() error: %v", err)
	}
	s := summarizeSampleLog(recs)
	if s.Segments != 1 || s.Samples != 200 {
		t.Fatalf("recorded summary=%+v", s)
	}
	if s.MaxDuration != 199*500*time.Microsecond {
		t.Fatalf("maxDuration=%s want %s", s.MaxDuration, 199*500*time.Microsecond)
	}
}

func TestLiveRuntime_ReplayMissingFile(t *testing.T) {
	cfg, err := config.Parse([]byte("source:\n  kind: replay\n  replay:\n    path: " + filepath.Join(t.TempDir(), "none.log") + "\n"))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if _, err := newLiveRuntime(cfg); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLiveRuntime_ReplaysRecording(t *testing.T) {
	dir := t.TempDir()
	recPath := filepath.Join(dir, "rec.log")
	cfg, err := config.Parse([]byte(fmt.Sprintf("source:\n  sim:\n    samples: 50\noutput:\n  record:\n    enable: true\n    path: %s\nlog:\n  level: error\n", recPath)))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	rt, err := newLiveRuntime(cfg)
	if err != nil {
		t.Fatalf("newLiveRuntime() error: %v", err)
	}
	if err := rt.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	rt.Close()
	first := rt.svc.Snapshot()

	cfg2, err := config.Parse([]byte(fmt.Sprintf("source:\n  kind: replay\n  replay:\n    path: %s\n    speed: 100\nlog:\n  level: error\n", recPath)))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	rt2, err := newLiveRuntime(cfg2)
	if err != nil {
		t.Fatalf("newLiveRuntime() error: %v", err)
	}
	if err := rt2.Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	rt2.Close()
	second := rt2.svc.Snapshot()

	if second.Samples != first.Samples || second.Filtered != first.Filtered {
		t.Fatalf("replay filtered=%v (n=%d) want %v (n=%d)", second.Filtered, second.Samples, first.Filtered, first.Samples)
	}
}
