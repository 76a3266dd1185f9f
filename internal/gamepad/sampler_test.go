package gamepad

import (
	"errors"
	"testing"
	"time"

	"github.com/0xcafed00d/joystick"
	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	snapshots []Snapshot
	polls     int
}

func (f *fakeDevice) Poll() []Snapshot {
	f.polls++
	return f.snapshots
}

func testSamplerConfig() config.SamplerConfig {
	return config.SamplerConfig{
		PollInterval:  config.DefaultPollInterval,
		SteerAxis:     0,
		SteerDeadzone: 0.075,
		AxisDeadzone:  0.05,
	}
}

func TestSampleAppliesDeadzonePerAxisRole(t *testing.T) {
	device := &fakeDevice{snapshots: []Snapshot{{
		Buttons: []float64{0, 0.5},
		Axes:    []float64{0.07, 0.07, -0.04, -0.9},
	}}}
	sampler := NewSampler(testSamplerConfig(), device)

	sample, err := sampler.Sample()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5}, sample.Buttons)
	assert.Equal(t, []float64{0, 0.07, 0, -0.9}, sample.Axes)
}

func TestSampleWithoutDevice(t *testing.T) {
	sampler := NewSampler(testSamplerConfig(), &fakeDevice{})
	_, err := sampler.Sample()
	assert.ErrorIs(t, err, models.ErrDeviceAbsent)

	called := false
	assert.False(t, sampler.Tick(func(models.RawSample) { called = true }))
	assert.False(t, called)
}

func TestTickSuppressesIdleSamples(t *testing.T) {
	device := &fakeDevice{snapshots: []Snapshot{{
		Buttons: []float64{0, 0},
		Axes:    []float64{0.03, -0.02},
	}}}
	sampler := NewSampler(testSamplerConfig(), device)

	calls := 0
	assert.False(t, sampler.Tick(func(models.RawSample) { calls++ }))
	assert.Equal(t, 0, calls)

	device.snapshots[0].Buttons[1] = 0.2
	assert.True(t, sampler.Tick(func(models.RawSample) { calls++ }))
	assert.Equal(t, 1, calls)
}

func TestSampleUsesFirstDeviceOnly(t *testing.T) {
	device := &fakeDevice{snapshots: []Snapshot{
		{Name: "first", Axes: []float64{0.5}},
		{Name: "second", Axes: []float64{-0.5}},
	}}
	sample, err := NewSampler(testSamplerConfig(), device).Sample()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5}, sample.Axes)
}

type fakeJoystick struct {
	name    string
	axes    int
	buttons int
	state   joystick.State
	err     error
	closed  bool
}

func (f *fakeJoystick) AxisCount() int                { return f.axes }
func (f *fakeJoystick) ButtonCount() int              { return f.buttons }
func (f *fakeJoystick) Name() string                  { return f.name }
func (f *fakeJoystick) Read() (joystick.State, error) { return f.state, f.err }
func (f *fakeJoystick) Close()                        { f.closed = true }

func TestJoystickRemapsTriggersOntoButtons(t *testing.T) {
	js := &fakeJoystick{
		name:    "pad",
		axes:    6,
		buttons: 4,
		state: joystick.State{
			AxisData: []int{16384, 0, -32767, 0, 0, 32767},
			Buttons:  1 << 1,
		},
	}
	device := NewJoystick(0, TriggerMap{ForwardAxis: 5, ReverseAxis: 2, ForwardButton: 7, ReverseButton: 6})
	device.open = func(int) (joystick.Joystick, error) { return js, nil }

	connected := ""
	device.OnConnect(func(name string) { connected = name })

	snapshots := device.Poll()
	require.Len(t, snapshots, 1)
	assert.Equal(t, "pad", connected)

	snapshot := snapshots[0]
	require.Len(t, snapshot.Buttons, 8)
	assert.Equal(t, 1.0, snapshot.Buttons[1])
	assert.Equal(t, 1.0, snapshot.Buttons[7])
	assert.Equal(t, 0.0, snapshot.Buttons[6])
	assert.InDelta(t, 0.5, snapshot.Axes[0], 0.001)
	assert.Equal(t, 0.0, snapshot.Axes[2])
	assert.Equal(t, 0.0, snapshot.Axes[5])
}

func TestJoystickDisconnectAndReopenBackoff(t *testing.T) {
	js := &fakeJoystick{name: "pad", err: errors.New("no such device")}
	now := time.Unix(100, 0)
	opens := 0

	device := NewJoystick(0, TriggerMap{ForwardAxis: -1, ReverseAxis: -1, ForwardButton: 7, ReverseButton: 6})
	device.now = func() time.Time { return now }
	device.open = func(int) (joystick.Joystick, error) {
		opens++
		return js, nil
	}
	disconnected := ""
	device.OnDisconnect(func(name string) { disconnected = name })

	assert.Empty(t, device.Poll())
	assert.Equal(t, "pad", disconnected)
	assert.True(t, js.closed)
	assert.Equal(t, 1, opens)

	assert.Empty(t, device.Poll())
	assert.Equal(t, 1, opens, "reopen is rate limited")

	now = now.Add(reopenBackoff)
	device.Poll()
	assert.Equal(t, 2, opens)
}
