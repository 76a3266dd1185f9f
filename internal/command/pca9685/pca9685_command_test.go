package pca9685

import (
	"testing"

	"github.com/Speshl/gorrc_teleop/internal/vehicle"
	"github.com/stretchr/testify/assert"
)

func TestFraction(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		offset   float64
		inverted bool
		want     float64
	}{
		{"neutral", 0, 0, false, 0.5},
		{"full forward", 1, 0, false, 1},
		{"full reverse", -1, 0, false, 0},
		{"inverted", 0.5, 0, true, 0.25},
		{"offset trims neutral", 0, 0.1, false, 0.55},
		{"offset clamps", 1, 0.2, false, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := vehicle.DriverCommand{Name: vehicle.ServoSteer, Value: tc.value, Min: -1, Max: 1}
			assert.InDelta(t, tc.want, fraction(cmd, tc.offset, tc.inverted), 1e-9)
		})
	}
}

func TestSetUnknownServoIgnored(t *testing.T) {
	c := &CommandDriver{servos: map[string]Servo{}}
	assert.NoError(t, c.Set(vehicle.DriverCommand{Name: "winch", Value: 1, Min: -1, Max: 1}))
}
