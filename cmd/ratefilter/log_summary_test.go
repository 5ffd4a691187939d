package main

import (
	"bytes"
	"math"
	"os"
	"testing"
	"time"

	"ratefilter/internal/filter"
	"ratefilter/internal/replay"
)

func TestSummarizeSampleLog(t *testing.T) {
	recs := []replay.Record{
		{At: 0, Start: true},
		{At: 0, Rate: filter.Triple{1, 10, -1}},
		{At: 200 * time.Millisecond, Rate: filter.Triple{3, 10, -3}},
		{At: 5 * time.Second, Start: true},
		{At: 6 * time.Second, Rate: filter.Triple{5, 10, -5}},
	}

	s := summarizeSampleLog(recs)
	if s.Segments != 2 {
		t.Fatalf("segments=%d want %d", s.Segments, 2)
	}
	if s.Samples != 3 {
		t.Fatalf("samples=%d want %d", s.Samples, 3)
	}
	if s.MaxDuration != 1*time.Second {
		t.Fatalf("maxDuration=%s want %s", s.MaxDuration, 1*time.Second)
	}
	want := filter.Triple{3, 10, -3}
	if s.Mean != want {
		t.Fatalf("mean=%v want %v", s.Mean, want)
	}
	// (4+0+4)/3
	if math.Abs(s.Variance[filter.Roll]-8.0/3) > 1e-12 || s.Variance[filter.Pitch] != 0 {
		t.Fatalf("variance=%v", s.Variance)
	}
}

func TestSummarizeSampleLog_NoStartMarker(t *testing.T) {
	s := summarizeSampleLog([]replay.Record{{At: time.Second, Rate: filter.Triple{1, 1, 1}}})
	if s.Segments != 1 || s.Samples != 1 {
		t.Fatalf("summary=%+v", s)
	}
}

func TestSummarizeSampleLog_Empty(t *testing.T) {
	if s := summarizeSampleLog(nil); s != (logSummary{}) {
		t.Fatalf("summary=%+v want zero", s)
	}
}

func TestPrintLogSummary_PrintsExpectedFields(t *testing.T) {
	tmp := t.TempDir()
	logPath := tmp + "/gyro.log"

	w, err := replay.CreateWriter(logPath)
	if err != nil {
		t.Fatalf("CreateWriter() error: %v", err)
	}
	if err := w.WriteOffset(0, filter.Triple{1, 2, 3}); err != nil {
		_ = w.Close()
		t.Fatalf("WriteOffset() error: %v", err)
	}
	if err := w.WriteOffset(time.Millisecond, filter.Triple{3, 2, 1}); err != nil {
		_ = w.Close()
		t.Fatalf("WriteOffset() error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	oldStdout := os.Stdout
	r, wpipe, err := os.Pipe()
	if err != nil {
		t.Fatalf("Pipe() error: %v", err)
	}
	os.Stdout = wpipe

	printErr := printLogSummary(logPath)

	_ = wpipe.Close()
	os.Stdout = oldStdout

	if printErr != nil {
		_ = r.Close()
		t.Fatalf("printLogSummary() error: %v", printErr)
	}

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	_ = r.Close()
	out := buf.String()

	for _, want := range []string{
		"path: ",
		"segments: 1",
		"samples: 2",
		"max_duration: 1ms",
		"roll: mean=2.0000 variance=1.0000",
		"pitch: mean=2.0000 variance=0.0000",
	} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Fatalf("missing %q in output: %q", want, out)
		}
	}
}

func TestPrintLogSummary_EmptyPath(t *testing.T) {
	if err := printLogSummary("  "); err == nil {
		t.Fatalf("expected error")
	}
}
