package main

import (
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"

	"ratefilter/internal/filter"
	"ratefilter/internal/replay"
)

type logSummary struct {
	Segments    int
	Samples     int
	MaxDuration time.Duration
	Mean        filter.Triple
	Variance    filter.Triple // population variance of the raw rates
}

func summarizeSampleLog(records []replay.Record) logSummary {
	var s logSummary
	if len(records) == 0 {
		return s
	}

	origin := time.Duration(0)
	segments := 0
	var cols [3][]float64

	for _, r := range records {
		if r.Start {
			segments++
			origin = r.At
			continue
		}
		s.Samples++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}
		for a := range cols {
			cols[a] = append(cols[a], r.Rate[a])
		}
	}
	if segments == 0 && s.Samples > 0 {
		segments = 1
	}
	s.Segments = segments

	if s.Samples > 0 {
		for a := range cols {
			s.Mean[a], s.Variance[a] = stat.PopMeanVariance(cols[a], nil)
		}
	}
	return s
}

func printLogSummary(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}

	recs, err := readSampleLog(path)
	if err != nil {
		return err
	}

	s := summarizeSampleLog(recs)

	fmt.Printf("path: %s\n", path)
	fmt.Printf("segments: %d\n", s.Segments)
	fmt.Printf("samples: %d\n", s.Samples)
	fmt.Printf("max_duration: %s\n", s.MaxDuration)
	fmt.Printf("axes:\n")
	for a := filter.Roll; a <= filter.Yaw; a++ {
		fmt.Printf("  %s: mean=%.4f variance=%.4f\n", a, s.Mean[a], s.Variance[a])
	}
	return nil
}
