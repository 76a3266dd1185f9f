package pipwm

import (
	"fmt"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/vehicle"
	"github.com/rs/zerolog/log"
	"github.com/stianeikeland/go-rpio/v4"
)

const (
	Frequency          = 100000 // 10us per tick
	CycleLength        = uint32(2000)
	MaxSupportedServos = 2
)

var PinMap = []int{12, 13} //Servo0, Servo1

type CommandDriver struct {
	cfg    config.CommandConfig
	servos map[string]Servo
}

type Servo struct {
	name     string
	inverted bool
	offset   float64
	servo    rpio.Pin
	maxPulse float64
	minPulse float64
}

func NewCommand(cfg config.CommandConfig) *CommandDriver {
	return &CommandDriver{
		cfg: cfg,
	}
}

func (c *CommandDriver) Init() error {
	err := rpio.Open()
	if err != nil {
		return fmt.Errorf("failed opening rpio: %w", err)
	}

	servos := make(map[string]Servo, MaxSupportedServos)
	for i := range c.cfg.ServoCfgs {
		if i >= MaxSupportedServos {
			log.Warn().Int("configured", len(c.cfg.ServoCfgs)).Msg("pi pwm only drives two servos, ignoring the rest")
			break
		}

		servoCfg := c.cfg.ServoCfgs[i]
		servos[servoCfg.Name] = Servo{
			name:     servoCfg.Name,
			inverted: servoCfg.Inverted,
			offset:   float64(servoCfg.Offset) / 100,
			servo:    rpio.Pin(PinMap[i]),
			maxPulse: servoCfg.MaxPulse,
			minPulse: servoCfg.MinPulse,
		}
		servos[servoCfg.Name].servo.Mode(rpio.Pwm)
		servos[servoCfg.Name].servo.Freq(Frequency)
		log.Info().Str("servo", servoCfg.Name).Int("pin", PinMap[i]).Msg("servo added")
	}
	c.servos = servos
	c.CenterAll()
	return nil
}

func (c *CommandDriver) Stop() error {
	c.CenterAll()
	err := rpio.Close()
	if err != nil {
		return fmt.Errorf("failed closing rpio: %w", err)
	}
	return nil
}

func (c *CommandDriver) CenterAll() {
	log.Info().Msg("centering all servos")
	for name := range c.servos {
		s := c.servos[name]
		s.servo.DutyCycle(dutyTicks((s.maxPulse+s.minPulse)/2), CycleLength)
	}
}

func (c *CommandDriver) SetMany(cmds []vehicle.DriverCommand) error {
	for i := range cmds {
		err := c.Set(cmds[i])
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *CommandDriver) Set(cmd vehicle.DriverCommand) error {
	val, ok := c.servos[cmd.Name]
	if ok {
		val.servo.DutyCycle(dutyTicks(pulseWidth(val, cmd)), CycleLength)
	}
	return nil
}

// pulseWidth returns the pulse in microseconds for cmd on servo s.
func pulseWidth(s Servo, cmd vehicle.DriverCommand) float64 {
	pulse := vehicle.MapToRange(cmd.Value+s.offset, cmd.Min, cmd.Max, s.minPulse, s.maxPulse)
	if s.inverted {
		pulse = s.maxPulse + s.minPulse - pulse
	}
	return pulse
}

func dutyTicks(pulseMicros float64) uint32 {
	return uint32(pulseMicros * Frequency / 1_000_000)
}
