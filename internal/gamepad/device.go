package gamepad

import (
	"fmt"
	"sync"
	"time"

	"github.com/0xcafed00d/joystick"
	"github.com/rs/zerolog/log"
)

const (
	maxAxisValue  = 32767.0
	reopenBackoff = time.Second
)

// Snapshot is the raw state of one connected device.
type Snapshot struct {
	Name    string
	Buttons []float64
	Axes    []float64
}

// Device yields the currently connected devices. Only the first is used.
type Device interface {
	Poll() []Snapshot
}

// Hotplug is implemented by devices that can notify connects and disconnects.
type Hotplug interface {
	OnConnect(func(name string))
	OnDisconnect(func(name string))
}

type Opener func(id int) (joystick.Joystick, error)

// Joystick reads a linux joystick. Pressure triggers are exposed by the driver
// as axes resting at -1, so they are remapped onto button slots in [0,1] to
// match the standard gamepad layout.
type Joystick struct {
	id   int
	open Opener
	now  func() time.Time

	forwardAxis   int
	reverseAxis   int
	forwardButton int
	reverseButton int

	lock         sync.Mutex
	js           joystick.Joystick
	lastAttempt  time.Time
	onConnect    func(string)
	onDisconnect func(string)
}

type TriggerMap struct {
	ForwardAxis   int
	ReverseAxis   int
	ForwardButton int
	ReverseButton int
}

func NewJoystick(id int, triggers TriggerMap) *Joystick {
	return &Joystick{
		id:            id,
		open:          joystick.Open,
		now:           time.Now,
		forwardAxis:   triggers.ForwardAxis,
		reverseAxis:   triggers.ReverseAxis,
		forwardButton: triggers.ForwardButton,
		reverseButton: triggers.ReverseButton,
	}
}

func (j *Joystick) OnConnect(f func(name string)) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.onConnect = f
}

func (j *Joystick) OnDisconnect(f func(name string)) {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.onDisconnect = f
}

func (j *Joystick) Poll() []Snapshot {
	j.lock.Lock()
	defer j.lock.Unlock()

	if j.js == nil && !j.reopen() {
		return nil
	}

	state, err := j.js.Read()
	if err != nil {
		name := j.js.Name()
		log.Warn().Err(err).Str("device", name).Msg("joystick read failed, closing")
		j.js.Close()
		j.js = nil
		if j.onDisconnect != nil {
			j.onDisconnect(name)
		}
		return nil
	}

	return []Snapshot{j.convert(state)}
}

func (j *Joystick) Close() {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.js != nil {
		j.js.Close()
		j.js = nil
	}
}

func (j *Joystick) reopen() bool {
	now := j.now()
	if !j.lastAttempt.IsZero() && now.Sub(j.lastAttempt) < reopenBackoff {
		return false
	}
	j.lastAttempt = now

	js, err := j.open(j.id)
	if err != nil {
		log.Debug().Err(err).Int("id", j.id).Msg("joystick not available")
		return false
	}
	j.js = js
	log.Info().Str("device", js.Name()).Int("axes", js.AxisCount()).Int("buttons", js.ButtonCount()).Msg("joystick connected")
	if j.onConnect != nil {
		j.onConnect(js.Name())
	}
	return true
}

func (j *Joystick) convert(state joystick.State) Snapshot {
	buttonCount := j.js.ButtonCount()
	for _, b := range []int{j.forwardButton, j.reverseButton} {
		if b+1 > buttonCount {
			buttonCount = b + 1
		}
	}

	snapshot := Snapshot{
		Name:    j.js.Name(),
		Buttons: make([]float64, buttonCount),
		Axes:    make([]float64, len(state.AxisData)),
	}

	for i := 0; i < j.js.ButtonCount() && i < 32; i++ {
		if state.Buttons&(1<<uint(i)) != 0 {
			snapshot.Buttons[i] = 1.0
		}
	}

	for i, raw := range state.AxisData {
		snapshot.Axes[i] = normalizeAxis(raw)
	}

	j.remapTrigger(&snapshot, j.forwardAxis, j.forwardButton)
	j.remapTrigger(&snapshot, j.reverseAxis, j.reverseButton)
	return snapshot
}

func (j *Joystick) remapTrigger(snapshot *Snapshot, axis int, button int) {
	if axis < 0 || axis >= len(snapshot.Axes) || button < 0 {
		return
	}
	pressure := (snapshot.Axes[axis] + 1) / 2
	if pressure > snapshot.Buttons[button] {
		snapshot.Buttons[button] = pressure
	}
	snapshot.Axes[axis] = 0
}

func normalizeAxis(raw int) float64 {
	value := float64(raw) / maxAxisValue
	if value > 1 {
		return 1
	}
	if value < -1 {
		return -1
	}
	return value
}

func (s Snapshot) String() string {
	return fmt.Sprintf("%s buttons:%v axes:%v", s.Name, s.Buttons, s.Axes)
}
