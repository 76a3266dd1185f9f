package pipwm

import (
	"testing"

	"github.com/Speshl/gorrc_teleop/internal/vehicle"
	"github.com/stretchr/testify/assert"
)

func TestPulseWidth(t *testing.T) {
	esc := Servo{name: vehicle.ServoEsc, minPulse: 1200, maxPulse: 1800}
	cmd := func(v float64) vehicle.DriverCommand {
		return vehicle.DriverCommand{Name: vehicle.ServoEsc, Value: v, Min: -1, Max: 1}
	}

	assert.InDelta(t, 1500, pulseWidth(esc, cmd(0)), 1e-9)
	assert.InDelta(t, 1800, pulseWidth(esc, cmd(1)), 1e-9)
	assert.InDelta(t, 1200, pulseWidth(esc, cmd(-1)), 1e-9)

	esc.inverted = true
	assert.InDelta(t, 1200, pulseWidth(esc, cmd(1)), 1e-9)
	assert.InDelta(t, 1500, pulseWidth(esc, cmd(0)), 1e-9)
}

func TestDutyTicks(t *testing.T) {
	assert.Equal(t, uint32(150), dutyTicks(1500))
	assert.Equal(t, uint32(110), dutyTicks(1100))
	assert.Equal(t, uint32(190), dutyTicks(1900))
}
