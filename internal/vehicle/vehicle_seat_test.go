package vehicle

import (
	"errors"
	"testing"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDriver struct {
	writes  [][]DriverCommand
	err     error
	stopped bool
}

func (f *fakeDriver) Init() error { return nil }

func (f *fakeDriver) Set(cmd DriverCommand) error {
	return f.SetMany([]DriverCommand{cmd})
}

func (f *fakeDriver) SetMany(cmds []DriverCommand) error {
	if f.err != nil {
		return f.err
	}
	f.writes = append(f.writes, cmds)
	return nil
}

func (f *fakeDriver) CenterAll() {}

func (f *fakeDriver) Stop() error {
	f.stopped = true
	return nil
}

func newTestSeat() (*VehicleSeat, *fakeDriver, *time.Time) {
	driver := &fakeDriver{}
	seat := NewVehicleSeat(driver, 200*time.Millisecond)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seat.now = func() time.Time { return now }
	return seat, driver, &now
}

func TestInitCentersBothServos(t *testing.T) {
	seat, driver, _ := newTestSeat()
	require.NoError(t, seat.Init())
	require.Len(t, driver.writes, 1)
	assert.Equal(t, []DriverCommand{
		{Name: ServoSteer, Value: 0, Min: -1, Max: 1},
		{Name: ServoEsc, Value: 0, Min: -1, Max: 1},
	}, driver.writes[0])
}

func TestApplyWritesOnlyChanges(t *testing.T) {
	seat, driver, _ := newTestSeat()
	require.NoError(t, seat.Init())

	require.NoError(t, seat.Apply(models.ControlVector{Throttle: 0.15, Steering: 0}))
	require.NoError(t, seat.Apply(models.ControlVector{Throttle: 0.15, Steering: 0}))
	require.NoError(t, seat.Apply(models.ControlVector{Throttle: 0.15, Steering: -0.5}))

	require.Len(t, driver.writes, 3)
	assert.Equal(t, []DriverCommand{{Name: ServoEsc, Value: 0.15, Min: -1, Max: 1}}, driver.writes[1])
	assert.Equal(t, []DriverCommand{{Name: ServoSteer, Value: -0.5, Min: -1, Max: 1}}, driver.writes[2])
	assert.Equal(t, models.ControlVector{Throttle: 0.15, Steering: -0.5}, seat.State())
}

func TestRecenterAfterTimeout(t *testing.T) {
	seat, driver, now := newTestSeat()
	require.NoError(t, seat.Init())
	require.NoError(t, seat.Apply(models.ControlVector{Throttle: 0.8, Steering: 0.3}))

	*now = now.Add(150 * time.Millisecond)
	require.NoError(t, seat.Apply(models.ControlVector{Throttle: 0.8, Steering: 0}))

	*now = now.Add(100 * time.Millisecond)
	require.NoError(t, seat.Recenter())
	assert.Equal(t, models.ControlVector{Throttle: 0.8, Steering: 0}, seat.State(), "throttle refreshed 100ms ago stays")

	*now = now.Add(150 * time.Millisecond)
	require.NoError(t, seat.Recenter())
	assert.Equal(t, models.ControlVector{}, seat.State())

	writes := len(driver.writes)
	require.NoError(t, seat.Recenter())
	assert.Len(t, driver.writes, writes, "nothing rewritten once centered")
}

func TestFailedWriteIsRetried(t *testing.T) {
	seat, driver, _ := newTestSeat()
	require.NoError(t, seat.Init())

	driver.err = errors.New("i2c nack")
	assert.Error(t, seat.Apply(models.ControlVector{Throttle: 0.5}))

	driver.err = nil
	require.NoError(t, seat.Recenter())
	assert.Equal(t, []DriverCommand{{Name: ServoEsc, Value: 0.5, Min: -1, Max: 1}}, driver.writes[len(driver.writes)-1])
}

func TestStopCenters(t *testing.T) {
	seat, _, _ := newTestSeat()
	require.NoError(t, seat.Init())
	require.NoError(t, seat.Apply(models.ControlVector{Throttle: -1, Steering: 1}))
	require.NoError(t, seat.Stop())
	assert.Equal(t, models.ControlVector{}, seat.State())
}

func TestMapToRange(t *testing.T) {
	tests := []struct {
		value float64
		want  float64
	}{
		{-1, 1100},
		{0, 1500},
		{1, 1900},
		{0.5, 1700},
		{2, 1900},
		{-3, 1100},
	}
	for _, tc := range tests {
		assert.InDelta(t, tc.want, MapToRange(tc.value, -1, 1, 1100, 1900), 1e-9)
	}
}
