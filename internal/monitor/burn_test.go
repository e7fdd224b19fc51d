package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectorLifecycle(t *testing.T) {
	detector := NewDetector([]string{"gpu-burn"})

	status := detector.Update([]string{"Xorg", "firefox"}, at(0))
	assert.False(t, status.Running)
	assert.Equal(t, 0.0, status.Duration)

	status = detector.Update([]string{"GPU-Burn-v2"}, at(100*time.Second))
	assert.True(t, status.Running, "marker match is case-insensitive")
	assert.Equal(t, 0.0, status.Duration, "duration starts at zero")

	status = detector.Update([]string{"gpu-burn"}, at(160*time.Second))
	assert.True(t, status.Running)
	assert.Equal(t, 60.0, status.Duration)

	status = detector.Update([]string{"Xorg"}, at(161*time.Second))
	assert.False(t, status.Running, "a single missed cycle stops the run")
	assert.Equal(t, 0.0, status.Duration)
}

func TestDetectorRestartResetsStart(t *testing.T) {
	detector := NewDetector([]string{"gpu-burn"})

	detector.Update([]string{"gpu-burn"}, at(0))
	detector.Update([]string{"gpu-burn"}, at(30*time.Second))
	detector.Update(nil, at(31*time.Second))

	status := detector.Update([]string{"gpu-burn"}, at(60*time.Second))
	assert.True(t, status.Running)
	assert.Equal(t, 0.0, status.Duration, "new run does not inherit the old start")
}

func TestDetectorClockStepBackwards(t *testing.T) {
	detector := NewDetector([]string{"gpu-burn"})

	detector.Update([]string{"gpu-burn"}, at(60*time.Second))
	status := detector.Update([]string{"gpu-burn"}, at(30*time.Second))

	assert.True(t, status.Running)
	assert.Equal(t, 0.0, status.Duration, "duration never goes negative")
}

func TestDetectorDurationRounding(t *testing.T) {
	detector := NewDetector([]string{"gpu-burn"})

	detector.Update([]string{"gpu-burn"}, at(0))
	status := detector.Update([]string{"gpu-burn"}, at(12345*time.Millisecond))

	assert.Equal(t, 12.3, status.Duration)
}

func TestDetectorErrors(t *testing.T) {
	detector := NewDetector([]string{"gpu-burn"})

	detector.AddErrors(3)
	detector.AddErrors(0)
	detector.AddErrors(-2)
	status := detector.Update([]string{"gpu-burn"}, at(0))
	assert.Equal(t, 3, status.Errors, "only positive counts accumulate")

	detector.ResetErrors()
	status = detector.Update([]string{"gpu-burn"}, at(time.Second))
	assert.Equal(t, 0, status.Errors)
	assert.True(t, status.Running, "error reset leaves the run untouched")
}

func TestDetectorMultipleMarkers(t *testing.T) {
	detector := NewDetector([]string{"gpu-burn", "stress-ng"})

	status := detector.Update([]string{"stress-ng-gpu"}, at(0))
	assert.True(t, status.Running)
}
