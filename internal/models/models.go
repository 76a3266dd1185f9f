package models

import (
	"fmt"
	"math"
	"time"
)

const (
	// Standard gamepad layout indexes used by the default profile
	ButtonReverseTrigger = 6
	ButtonForwardTrigger = 7
	AxisLeftStickX       = 0
)

// RawSample is one poll of the input device, already deadzone filtered.
// Buttons hold pressure in [0,1], axes hold position in [-1,1].
type RawSample struct {
	Buttons []float64
	Axes    []float64
}

// HasActivity reports whether any button is pressed or any axis is off center.
func (s RawSample) HasActivity() bool {
	for _, b := range s.Buttons {
		if b > 0 {
			return true
		}
	}
	for _, a := range s.Axes {
		if a != 0 {
			return true
		}
	}
	return false
}

// Button returns the pressure of button i or 0 when the device has no such button.
func (s RawSample) Button(i int) float64 {
	if i < 0 || i >= len(s.Buttons) {
		return 0
	}
	return s.Buttons[i]
}

// Axis returns the position of axis i or 0 when the device has no such axis.
func (s RawSample) Axis(i int) float64 {
	if i < 0 || i >= len(s.Axes) {
		return 0
	}
	return s.Axes[i]
}

type ControlVector struct {
	Throttle float64 `json:"throttle"`
	Steering float64 `json:"steering"`
}

func (c ControlVector) String() string {
	return fmt.Sprintf("throttle:%.2f steering:%.2f", c.Throttle, c.Steering)
}

// Latency is a round trip measurement. Known is false when an echo could not
// be matched to an outstanding probe or the probe timed out.
type Latency struct {
	Millis int64
	Known  bool
}

func (l Latency) String() string {
	if !l.Known {
		return "unknown"
	}
	return fmt.Sprintf("%dms", l.Millis)
}

type LinkStats struct {
	Interface string
	RxPackets uint64
	RxErrors  uint64
	RxDropped uint64
	TxPackets uint64
	TxErrors  uint64
	TxDropped uint64
	SampledAt time.Time
}

// Deadzone reports value as exactly 0 when its magnitude is within deadZone.
func Deadzone(value, deadZone float64) float64 {
	if math.Abs(value) <= deadZone {
		return 0
	}
	return value
}
