package drdy

import (
	"errors"
	"testing"
	"time"
)

func TestLine_DeliverAndDrop(t *testing.T) {
	l := newLine(2)
	l.deliver(1 * time.Microsecond)
	l.deliver(2 * time.Microsecond)
	l.deliver(3 * time.Microsecond)

	if got := l.Dropped(); got != 1 {
		t.Fatalf("dropped=%d want 1", got)
	}
	if got := <-l.Events(); got != time.Microsecond {
		t.Fatalf("first=%s want 1us", got)
	}
	if got := <-l.Events(); got != 2*time.Microsecond {
		t.Fatalf("second=%s want 2us", got)
	}
}

func TestLine_CloseOnce(t *testing.T) {
	l := newLine(0)
	calls := 0
	boom := errors.New("boom")
	l.closeFn = func() error {
		calls++
		return boom
	}
	if err := l.Close(); !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls=%d want 1", calls)
	}
}

func TestLine_CloseNil(t *testing.T) {
	var l *Line
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}
