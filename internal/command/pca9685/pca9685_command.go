package pca9685

import (
	"fmt"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/vehicle"
	"github.com/googolgl/go-i2c"
	"github.com/googolgl/go-pca9685"
	"github.com/rs/zerolog/log"
)

const (
	MaxValue = 1.0
	MinValue = 0.0
	AcRange  = pca9685.ServoRangeDef
)

type CommandDriver struct {
	cfg    config.CommandConfig
	servos map[string]Servo
	driver *pca9685.PCA9685
}

type Servo struct {
	name     string
	inverted bool
	offset   float64
	servo    *pca9685.Servo
}

func NewCommand(cfg config.CommandConfig) *CommandDriver {
	return &CommandDriver{
		cfg: cfg,
	}
}

func (c *CommandDriver) Init() error {
	bus, err := i2c.New(c.cfg.Address, c.cfg.I2CDevice)
	if err != nil {
		return fmt.Errorf("error starting i2c with address - %w", err)
	}

	c.driver, err = pca9685.New(bus, nil)
	if err != nil {
		return fmt.Errorf("error getting servo driver - %w", err)
	}

	servos := make(map[string]Servo, config.MaxSupportedServos)
	for i := range c.cfg.ServoCfgs {
		servoCfg := c.cfg.ServoCfgs[i]
		servos[servoCfg.Name] = Servo{
			name:     servoCfg.Name,
			inverted: servoCfg.Inverted,
			offset:   float64(servoCfg.Offset) / 100,
			servo: c.driver.ServoNew(servoCfg.Channel, &pca9685.ServOptions{
				AcRange:  AcRange,
				MinPulse: float32(servoCfg.MinPulse),
				MaxPulse: float32(servoCfg.MaxPulse),
			}),
		}
		log.Info().Str("servo", servoCfg.Name).Int("channel", servoCfg.Channel).Msg("servo added")
	}
	c.servos = servos
	c.CenterAll()
	return nil
}

func (c *CommandDriver) Stop() error {
	c.CenterAll()
	return nil
}

func (c *CommandDriver) CenterAll() {
	log.Info().Msg("centering all servos")
	for name := range c.servos {
		err := c.servos[name].servo.Fraction(0.5)
		if err != nil {
			log.Warn().Err(err).Str("servo", name).Msg("failed centering")
		}
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

// Set ignores commands for servos that are not configured.
func (c *CommandDriver) Set(cmd vehicle.DriverCommand) error {
	val, ok := c.servos[cmd.Name]
	if !ok {
		return nil
	}

	mappedValue := fraction(cmd, val.offset, val.inverted)
	err := val.servo.Fraction(float32(mappedValue))
	if err != nil {
		return fmt.Errorf("failed setting servo value - name: %s value: %.2f - error: %w", cmd.Name, mappedValue, err)
	}
	return nil
}

// fraction places the command inside the servo's pulse range, 0.5 being neutral.
func fraction(cmd vehicle.DriverCommand, offset float64, inverted bool) float64 {
	mappedValue := vehicle.MapToRange(cmd.Value+offset, cmd.Min, cmd.Max, MinValue, MaxValue)
	if inverted {
		mappedValue = MaxValue - mappedValue
	}
	return mappedValue
}
