package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ratefilter/internal/filter"
	"ratefilter/internal/gyro"
)

type fakeGyro struct {
	snap       gyro.Snapshot
	zeroErr    error
	gotSamples int
	calls      int
	budget     time.Duration
}

func (f *fakeGyro) Snapshot() gyro.Snapshot { return f.snap }

func (f *fakeGyro) ZeroDrift(ctx context.Context, samples int) error {
	f.calls++
	f.gotSamples = samples
	if dl, ok := ctx.Deadline(); ok {
		f.budget = time.Until(dl)
	}
	return f.zeroErr
}

func TestAPIStatus(t *testing.T) {
	st := NewStatus()
	st.SetStatic("sim", "127.0.0.1:4000", map[string]any{"window": 32})
	g := &fakeGyro{snap: gyro.Snapshot{
		Valid:    true,
		Samples:  7,
		Filtered: filter.Triple{1, 2, 3},
		Bias:     filter.Triple{0.5, 0, 0},
		BiasSet:  true,
		Axes: [3]filter.AxisState{
			{Estimate: 1, Gain: 0.25, MeasurementNoise: 88},
		},
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}}

	ts := httptest.NewServer(Handler(st, g))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Service != "ratefilter" || snap.Source != "sim" || snap.UDPDest != "127.0.0.1:4000" {
		t.Fatalf("snapshot=%+v", snap)
	}
	if snap.Gyro == nil {
		t.Fatalf("missing gyro section")
	}
	if !snap.Gyro.Valid || snap.Gyro.Samples != 7 || snap.Gyro.Filtered != [3]float64{1, 2, 3} {
		t.Fatalf("gyro=%+v", snap.Gyro)
	}
	if len(snap.Gyro.Axes) != 3 || snap.Gyro.Axes[0].Axis != "roll" || snap.Gyro.Axes[0].Gain != 0.25 {
		t.Fatalf("axes=%+v", snap.Gyro.Axes)
	}
	if snap.Gyro.Bias == nil || snap.Gyro.Bias[0] != 0.5 {
		t.Fatalf("bias=%v", snap.Gyro.Bias)
	}
	if snap.Gyro.UpdatedUTC != "2026-01-01T00:00:00Z" {
		t.Fatalf("updated=%q", snap.Gyro.UpdatedUTC)
	}
}

func TestAPIStatus_NoGyro(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Gyro != nil {
		t.Fatalf("gyro=%+v want nil", snap.Gyro)
	}
}

func TestAPIStatus_MethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != http.MethodGet {
		t.Fatalf("allow=%q", allow)
	}
}

func TestAPIZeroDrift(t *testing.T) {
	cases := []struct {
		name        string
		query       string
		err         error
		wantCode    int
		wantSamples int
		wantCalls   int
	}{
		{name: "Default", wantCode: http.StatusOK, wantCalls: 1},
		{name: "Samples", query: "?samples=500", wantCode: http.StatusOK, wantSamples: 500, wantCalls: 1},
		{name: "BadSamples", query: "?samples=-2", wantCode: http.StatusBadRequest},
		{name: "ServiceError", err: errors.New("gyro: service not running"), wantCode: http.StatusBadRequest, wantCalls: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := &fakeGyro{zeroErr: tc.err}
			ts := httptest.NewServer(Handler(NewStatus(), g))
			defer ts.Close()

			resp, err := http.Post(ts.URL+"/api/gyro/zero-drift"+tc.query, "application/json", nil)
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if resp.StatusCode != tc.wantCode {
				t.Fatalf("status code=%d want %d body=%q", resp.StatusCode, tc.wantCode, body)
			}
			if g.calls != tc.wantCalls || g.gotSamples != tc.wantSamples {
				t.Fatalf("calls=%d samples=%d", g.calls, g.gotSamples)
			}
			if tc.err != nil && !strings.Contains(string(body), tc.err.Error()) {
				t.Fatalf("body=%q", body)
			}
		})
	}
}

func TestAPIZeroDrift_NoGyro(t *testing.T) {
	ts := httptest.NewServer(Handler(NewStatus(), nil))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/gyro/zero-drift", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
}

func TestRootPage(t *testing.T) {
	g := &fakeGyro{snap: gyro.Snapshot{Samples: 3}}
	ts := httptest.NewServer(Handler(NewStatus(), g))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "samples=3") {
		t.Fatalf("body=%q", body)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, "127.0.0.1:0", nil, nil) }()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err=%v want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return")
	}
}

func TestZeroDriftTimeout(t *testing.T) {
	cases := []struct {
		name    string
		samples int
		period  time.Duration
		want    time.Duration
	}{
		{name: "UnknownRate", samples: 0, period: 0, want: minZeroDriftTimeout},
		{name: "FastDefault", samples: 0, period: time.Millisecond, want: minZeroDriftTimeout},
		{name: "SlowDefault", samples: 0, period: 20 * time.Millisecond, want: 80 * time.Second},
		{name: "Explicit", samples: 500, period: 50 * time.Millisecond, want: 50 * time.Second},
		{name: "Clamped", samples: 100000, period: time.Millisecond, want: maxZeroDriftTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := zeroDriftTimeout(tc.samples, tc.period); got != tc.want {
				t.Fatalf("timeout=%s want %s", got, tc.want)
			}
		})
	}
}

func TestAPIZeroDrift_DeadlineFollowsSampleRate(t *testing.T) {
	st := NewStatus()
	st.SetSamplePeriod(20 * time.Millisecond)
	g := &fakeGyro{}
	ts := httptest.NewServer(Handler(st, g))
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/gyro/zero-drift", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	// 2000 samples at 50 Hz take 40 s; the request allows twice that.
	if g.budget < 70*time.Second || g.budget > 80*time.Second {
		t.Fatalf("deadline budget=%s want ~80s", g.budget)
	}
}

func TestAPIStatus_DroppedEdges(t *testing.T) {
	g := &fakeGyro{snap: gyro.Snapshot{DroppedEdges: 12}}
	ts := httptest.NewServer(Handler(NewStatus(), g))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Gyro == nil || snap.Gyro.Dropped != 12 {
		t.Fatalf("gyro=%+v want dropped_edges=12", snap.Gyro)
	}
}
