package frame

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"ratefilter/internal/filter"
)

const (
	// RateMessageID identifies a filtered rate message ('R').
	RateMessageID = 0x52

	rateMessageLen = 1 + 4 + 8 + 6*4
)

// RateMessage carries one filter cycle. Rates travel as float32.
type RateMessage struct {
	Seq      uint32
	At       time.Duration
	Raw      filter.Triple
	Filtered filter.Triple
}

// EncodeRate builds and frames a rate message.
//
// Layout (little-endian): id, seq u32, t_ns u64, raw x/y/z f32,
// filtered x/y/z f32.
func EncodeRate(m RateMessage) []byte {
	msg := make([]byte, rateMessageLen)
	msg[0] = RateMessageID
	binary.LittleEndian.PutUint32(msg[1:5], m.Seq)
	binary.LittleEndian.PutUint64(msg[5:13], uint64(m.At))
	off := 13
	for _, v := range m.Raw {
		binary.LittleEndian.PutUint32(msg[off:off+4], math.Float32bits(float32(v)))
		off += 4
	}
	for _, v := range m.Filtered {
		binary.LittleEndian.PutUint32(msg[off:off+4], math.Float32bits(float32(v)))
		off += 4
	}
	return Frame(msg)
}

// DecodeRate unframes and parses a rate message.
func DecodeRate(b []byte) (RateMessage, error) {
	msg, crcOK, err := Unframe(b)
	if err != nil {
		return RateMessage{}, err
	}
	if !crcOK {
		return RateMessage{}, fmt.Errorf("frame: crc mismatch")
	}
	if len(msg) != rateMessageLen {
		return RateMessage{}, fmt.Errorf("frame: rate message length %d want %d", len(msg), rateMessageLen)
	}
	if msg[0] != RateMessageID {
		return RateMessage{}, fmt.Errorf("frame: message id 0x%02X want 0x%02X", msg[0], RateMessageID)
	}
	m := RateMessage{
		Seq: binary.LittleEndian.Uint32(msg[1:5]),
		At:  time.Duration(binary.LittleEndian.Uint64(msg[5:13])),
	}
	off := 13
	for a := range m.Raw {
		m.Raw[a] = float64(math.Float32frombits(binary.LittleEndian.Uint32(msg[off : off+4])))
		off += 4
	}
	for a := range m.Filtered {
		m.Filtered[a] = float64(math.Float32frombits(binary.LittleEndian.Uint32(msg[off : off+4])))
		off += 4
	}
	return m, nil
}
