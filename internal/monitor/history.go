package monitor

import (
	"math"
	"time"
)

// TempStats is the per-device result of one history update.
type TempStats struct {
	Current float64
	Peak    float64
	Rate    float64 // degrees per minute over the lookback window
}

type tempSample struct {
	at   time.Time
	temp float64
}

type deviceHistory struct {
	samples []tempSample
	peak    float64
	hasPeak bool
}

// Tracker maintains a bounded temperature window and peak per device.
// Capacity and lookback window are fixed at creation; device entries are
// created on first observation and live for the process lifetime.
//
// Tracker is not safe for concurrent use; Monitor serializes access.
type Tracker struct {
	capacity int
	window   time.Duration
	devices  map[int]*deviceHistory
}

func NewTracker(capacity int, window time.Duration) *Tracker {
	return &Tracker{
		capacity: capacity,
		window:   window,
		devices:  make(map[int]*deviceHistory),
	}
}

// Ingest appends one observation and returns the device's current
// statistics. Timestamps that run backwards are clamped to the newest
// recorded sample so the window stays ordered.
func (t *Tracker) Ingest(deviceID int, at time.Time, temp float64) TempStats {
	history, ok := t.devices[deviceID]
	if !ok {
		history = &deviceHistory{samples: make([]tempSample, 0, t.capacity)}
		t.devices[deviceID] = history
	}

	if n := len(history.samples); n > 0 && at.Before(history.samples[n-1].at) {
		at = history.samples[n-1].at
	}

	history.samples = append(history.samples, tempSample{at: at, temp: temp})
	if len(history.samples) > t.capacity {
		history.samples = history.samples[1:]
	}

	if !history.hasPeak || temp > history.peak {
		history.peak = temp
		history.hasPeak = true
	}

	return TempStats{
		Current: temp,
		Peak:    history.peak,
		Rate:    history.rate(t.window),
	}
}

// ResetPeaks clears every device's peak. History windows are kept; the
// next ingest reinitializes each peak from its observed temperature.
func (t *Tracker) ResetPeaks() {
	for _, history := range t.devices {
		history.peak = 0
		history.hasPeak = false
	}
}

// rate derives the smoothed degrees-per-minute trend from the window.
// Both endpoint temperatures are rounded to whole degrees before
// subtracting, and a sub-degree delta yields zero, so rounding jitter
// never produces a rate signal.
func (h *deviceHistory) rate(window time.Duration) float64 {
	if len(h.samples) < 2 {
		return 0
	}

	newest := h.samples[len(h.samples)-1]
	cutoff := newest.at.Add(-window)

	var start *tempSample
	for i := range h.samples[:len(h.samples)-1] {
		if !h.samples[i].at.Before(cutoff) {
			start = &h.samples[i]
			break
		}
	}
	if start == nil {
		return 0
	}

	delta := math.Round(newest.temp) - math.Round(start.temp)
	if math.Abs(delta) < 1 {
		return 0
	}

	elapsed := newest.at.Sub(start.at).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return math.Round(delta/elapsed*60*100) / 100
}
