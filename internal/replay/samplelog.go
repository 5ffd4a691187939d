package replay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"ratefilter/internal/filter"
)

// Log format: line-oriented text.
//
// - Blank lines ignored.
// - Lines starting with '#' ignored.
// - Line "START" resets the origin (next record time is relative to 0 again).
// - Data lines are: <t_ns>,<x>,<y>,<z>
//   where t_ns is nanoseconds since START and x,y,z are raw gyro rates.

type Record struct {
	At    time.Duration
	Start bool
	Rate  filter.Triple
}

type Reader struct {
	r io.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

func (rr *Reader) ReadAll() ([]Record, error) {
	s := bufio.NewScanner(rr.r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	recs := make([]Record, 0, 4096)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "START" {
			recs = append(recs, Record{Start: true})
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

func parseLine(line string) (Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return Record{}, fmt.Errorf("invalid replay line (want 4 fields): %q", line)
	}
	tsStr := strings.TrimSpace(fields[0])
	tsNs, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("invalid replay timestamp %q: %w", tsStr, err)
	}
	if tsNs < 0 {
		return Record{}, fmt.Errorf("invalid replay timestamp (negative): %d", tsNs)
	}

	rec := Record{At: time.Duration(tsNs)}
	for a := range rec.Rate {
		f := strings.TrimSpace(fields[a+1])
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Record{}, fmt.Errorf("invalid replay rate %q: %w", f, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Record{}, fmt.Errorf("invalid replay rate (not finite): %q", f)
		}
		rec.Rate[a] = v
	}
	return rec, nil
}

type Writer struct {
	f      *os.File
	w      *bufio.Writer
	start  time.Time
	closed bool
}

func CreateWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriterSize(f, 64*1024)
	if _, err := bw.WriteString("START\n"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Writer{f: f, w: bw, start: time.Now()}, nil
}

func (ww *Writer) WriteSample(now time.Time, v filter.Triple) error {
	return ww.WriteOffset(now.Sub(ww.start), v)
}

// WriteOffset writes a sample d after the START marker.
func (ww *Writer) WriteOffset(d time.Duration, v filter.Triple) error {
	if ww.closed {
		return errors.New("replay writer is closed")
	}
	if d < 0 {
		d = 0
	}
	var buf [96]byte
	b := strconv.AppendInt(buf[:0], d.Nanoseconds(), 10)
	for _, x := range v {
		b = append(b, ',')
		b = strconv.AppendFloat(b, x, 'g', -1, 64)
	}
	b = append(b, '\n')
	_, err := ww.w.Write(b)
	return err
}

func (ww *Writer) Flush() error {
	if ww.closed {
		return nil
	}
	return ww.w.Flush()
}

func (ww *Writer) Close() error {
	if ww.closed {
		return nil
	}
	ww.closed = true
	if err := ww.w.Flush(); err != nil {
		_ = ww.f.Close()
		return err
	}
	return ww.f.Close()
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Player hands out records one at a time, sleeping between them according
// to their relative timing.
//
// speedMultiplier: 1.0 = real time, 2.0 = 2x speed (half waits), 0.5 = half speed.
type Player struct {
	records []Record
	speed   float64
	loop    bool
	sleeper Sleeper

	idx      int
	origin   time.Duration
	lastAt   time.Duration
	haveLast bool
}

func NewPlayer(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper) (*Player, error) {
	if speedMultiplier <= 0 {
		return nil, fmt.Errorf("speedMultiplier must be > 0")
	}
	if len(records) == 0 {
		return nil, errors.New("no records")
	}
	hasData := false
	for _, r := range records {
		if !r.Start {
			hasData = true
			break
		}
	}
	if !hasData {
		return nil, errors.New("no samples")
	}
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	return &Player{records: records, speed: speedMultiplier, loop: loop, sleeper: sleeper}, nil
}

// Next returns the next data record, or io.EOF once the records are
// exhausted and looping is off. START markers reset the origin.
func (p *Player) Next() (Record, error) {
	for {
		if p.idx >= len(p.records) {
			if !p.loop {
				return Record{}, io.EOF
			}
			p.idx = 0
			p.origin = 0
			p.haveLast = false
		}
		r := p.records[p.idx]
		p.idx++
		if r.Start {
			p.origin = r.At
			p.lastAt = 0
			p.haveLast = false
			continue
		}

		at := r.At - p.origin
		if at < 0 {
			at = 0
		}
		if p.haveLast {
			wait := at - p.lastAt
			if wait < 0 {
				wait = 0
			}
			wait = time.Duration(float64(wait) / p.speed)
			if wait > 0 {
				p.sleeper.Sleep(wait)
			}
		}
		p.lastAt = at
		p.haveLast = true
		return Record{At: at, Rate: r.Rate}, nil
	}
}

// Play replays records through cb with their relative timing.
func Play(records []Record, speedMultiplier float64, loop bool, sleeper Sleeper, cb func(rec Record) error) error {
	if cb == nil {
		return errors.New("callback is nil")
	}
	p, err := NewPlayer(records, speedMultiplier, loop, sleeper)
	if err != nil {
		return err
	}
	for {
		rec, err := p.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := cb(rec); err != nil {
			return err
		}
	}
}
