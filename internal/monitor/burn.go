package monitor

import (
	"math"
	"strings"
	"time"
)

// BurnStatus is the reportable view of the stress workload state.
type BurnStatus struct {
	Running  bool    `json:"running"`
	Duration float64 `json:"duration"` // seconds, 1 decimal
	Errors   int     `json:"errors"`
}

// Detector infers the gpu-burn workload lifecycle from per-cycle
// process listings. A single cycle without a marker match is treated as
// a stop; there is deliberately no debounce, matching the sampling
// cadence the detector was designed around. Swapping in a debounced
// variant only touches this type.
//
// Detector is not safe for concurrent use; Monitor serializes access.
type Detector struct {
	markers  []string
	start    time.Time
	running  bool
	duration float64
	errors   int
}

// NewDetector builds a detector matching any process whose name
// contains one of the markers, case-insensitively.
func NewDetector(markers []string) *Detector {
	lowered := make([]string, 0, len(markers))
	for _, marker := range markers {
		lowered = append(lowered, strings.ToLower(marker))
	}

	return &Detector{markers: lowered}
}

// Update consumes one cycle's process names and advances the lifecycle.
func (d *Detector) Update(processNames []string, now time.Time) BurnStatus {
	if d.matches(processNames) {
		if !d.running {
			d.start = now
			d.running = true
		}
		// A wall-clock step backwards past the recorded start must not
		// produce a negative duration.
		d.duration = now.Sub(d.start).Seconds()
		if d.duration < 0 {
			d.duration = 0
		}
	} else {
		d.running = false
		d.duration = 0
	}

	return d.status()
}

// AddErrors records externally detected workload errors. The counter
// only moves forward until ResetErrors.
func (d *Detector) AddErrors(n int) {
	if n > 0 {
		d.errors += n
	}
}

// ResetErrors zeroes the error counter without touching the
// running/duration state.
func (d *Detector) ResetErrors() {
	d.errors = 0
}

func (d *Detector) matches(processNames []string) bool {
	for _, name := range processNames {
		lowered := strings.ToLower(name)
		for _, marker := range d.markers {
			if strings.Contains(lowered, marker) {
				return true
			}
		}
	}

	return false
}

func (d *Detector) status() BurnStatus {
	return BurnStatus{
		Running:  d.running,
		Duration: math.Round(d.duration*10) / 10,
		Errors:   d.errors,
	}
}
