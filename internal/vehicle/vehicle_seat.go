package vehicle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/rs/zerolog/log"
)

type axis struct {
	name      string
	target    float64
	applied   float64
	written   bool
	lastInput time.Time
}

// VehicleSeat turns control vectors into steer and esc commands. An axis with
// no non-zero input for the input timeout is recentered, so a lost link stops
// the motor.
type VehicleSeat struct {
	lock    sync.Mutex
	driver  CommandDriverIFace
	timeout time.Duration
	now     func() time.Time

	steer axis
	esc   axis
}

func NewVehicleSeat(driver CommandDriverIFace, timeout time.Duration) *VehicleSeat {
	if timeout <= 0 {
		timeout = config.DefaultInputTimeout
	}
	return &VehicleSeat{
		driver:  driver,
		timeout: timeout,
		now:     time.Now,
		steer:   axis{name: ServoSteer},
		esc:     axis{name: ServoEsc},
	}
}

func (c *VehicleSeat) Init() error {
	err := c.driver.Init()
	if err != nil {
		return fmt.Errorf("failed initializing command driver - %w", err)
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.sync()
}

// Apply takes one decoded control vector and writes whatever changed.
func (c *VehicleSeat) Apply(cv models.ControlVector) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	c.steer.input(cv.Steering, now)
	c.esc.input(cv.Throttle, now)
	return c.sync()
}

func (a *axis) input(value float64, now time.Time) {
	a.target = value
	if value != 0 {
		a.lastInput = now
	}
}

// Recenter zeroes every axis whose last non-zero input is older than the timeout.
func (c *VehicleSeat) Recenter() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	now := c.now()
	for _, a := range []*axis{&c.steer, &c.esc} {
		if a.target != 0 && now.Sub(a.lastInput) > c.timeout {
			log.Debug().Str("servo", a.name).Msg("no input, recentering")
			a.target = 0
		}
	}
	return c.sync()
}

// Stop centers everything immediately, used when the peer goes away.
func (c *VehicleSeat) Stop() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.steer.target = 0
	c.esc.target = 0
	return c.sync()
}

func (c *VehicleSeat) State() models.ControlVector {
	c.lock.Lock()
	defer c.lock.Unlock()
	return models.ControlVector{Throttle: c.esc.applied, Steering: c.steer.applied}
}

// sync must be called with lock held.
func (c *VehicleSeat) sync() error {
	commands := make([]DriverCommand, 0, 2)
	changed := make([]*axis, 0, 2)
	for _, a := range []*axis{&c.steer, &c.esc} {
		if a.written && a.applied == a.target {
			continue
		}
		commands = append(commands, DriverCommand{Name: a.name, Value: a.target, Min: MinInput, Max: MaxInput})
		changed = append(changed, a)
	}
	if len(commands) == 0 {
		return nil
	}

	err := c.driver.SetMany(commands)
	if err != nil {
		return fmt.Errorf("failed setting seat commands - %w", err)
	}
	for _, a := range changed {
		a.applied = a.target
		a.written = true
	}
	return nil
}

func (c *VehicleSeat) Start(ctx context.Context) error {
	log.Info().Dur("timeout", c.timeout).Msg("starting driver seat")

	saftyTicker := time.NewTicker(c.timeout / 4)
	defer saftyTicker.Stop()
	defer func() {
		err := c.driver.Stop()
		if err != nil {
			log.Warn().Err(err).Msg("failed stopping command driver")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("stopping driver seat: %s", ctx.Err().Error())
			err := c.Stop()
			if err != nil {
				log.Warn().Err(err).Msg("failed centering on stop")
			}
			return ctx.Err()
		case <-saftyTicker.C:
			err := c.Recenter()
			if err != nil {
				return err
			}
		}
	}
}
