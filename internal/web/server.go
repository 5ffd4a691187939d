package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ratefilter/internal/gyro"
)

// GyroController exposes the filter service to the API. Implementations must
// be safe to call concurrently.
type GyroController interface {
	Snapshot() gyro.Snapshot
	ZeroDrift(ctx context.Context, samples int) error
}

const (
	minZeroDriftTimeout = 10 * time.Second
	maxZeroDriftTimeout = 2 * time.Minute
)

// zeroDriftTimeout allows twice the nominal collection time for samples,
// clamped to [minZeroDriftTimeout, maxZeroDriftTimeout].
func zeroDriftTimeout(samples int, period time.Duration) time.Duration {
	if samples <= 0 {
		samples = gyro.DefaultZeroDriftSamples
	}
	d := 2 * time.Duration(samples) * period
	if d < minZeroDriftTimeout {
		return minZeroDriftTimeout
	}
	if d > maxZeroDriftTimeout {
		return maxZeroDriftTimeout
	}
	return d
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

func Handler(status *Status, gyroCtl GyroController) http.Handler {
	mux := http.NewServeMux()

	snapshot := func() StatusSnapshot {
		if gyroCtl == nil {
			return status.Snapshot(time.Now().UTC(), nil)
		}
		g := gyroCtl.Snapshot()
		return status.Snapshot(time.Now().UTC(), &g)
	}

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, snapshot())
	})

	mux.HandleFunc("/api/gyro/zero-drift", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if gyroCtl == nil {
			http.Error(w, "gyro unavailable", http.StatusNotFound)
			return
		}
		samples := 0
		if v := r.URL.Query().Get("samples"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				http.Error(w, "samples must be a positive integer", http.StatusBadRequest)
				return
			}
			samples = n
		}
		ctx, cancel := context.WithTimeout(r.Context(), zeroDriftTimeout(samples, status.SamplePeriod()))
		defer cancel()
		if err := gyroCtl.ZeroDrift(ctx, samples); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\"ok\":true}\n"))
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		snap := snapshot()
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>ratefilter</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>ratefilter</h1>")
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>source=%s\nudp_dest=%s\nuptime_sec=%d", snap.Source, snap.UDPDest, snap.UptimeSec)
		if g := snap.Gyro; g != nil {
			_, _ = fmt.Fprintf(w, "\nsamples=%d\nfiltered_dps=%.3f,%.3f,%.3f", g.Samples, g.Filtered[0], g.Filtered[1], g.Filtered[2])
		}
		_, _ = fmt.Fprintf(w, "</pre></body></html>")
	})

	return mux
}

func Serve(ctx context.Context, listenAddr string, status *Status, gyroCtl GyroController) error {
	if status == nil {
		status = NewStatus()
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status, gyroCtl),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      maxZeroDriftTimeout + 5*time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
