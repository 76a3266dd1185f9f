package gamepad

import (
	"context"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/rs/zerolog/log"
)

type SampleHandler func(models.RawSample)

// Sampler polls the first connected device at a fixed interval and forwards
// samples that carry any input. Idle samples are dropped to save bandwidth.
type Sampler struct {
	cfg    config.SamplerConfig
	device Device
	absent bool
}

func NewSampler(cfg config.SamplerConfig, device Device) *Sampler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	return &Sampler{
		cfg:    cfg,
		device: device,
	}
}

// Sample takes one deadzone filtered snapshot of the first device.
func (s *Sampler) Sample() (models.RawSample, error) {
	snapshots := s.device.Poll()
	if len(snapshots) == 0 {
		return models.RawSample{}, models.ErrDeviceAbsent
	}
	snapshot := snapshots[0]

	sample := models.RawSample{
		Buttons: make([]float64, len(snapshot.Buttons)),
		Axes:    make([]float64, len(snapshot.Axes)),
	}

	for i, value := range snapshot.Buttons {
		if value < 0 {
			value = 0
		}
		sample.Buttons[i] = value
	}

	for i, value := range snapshot.Axes {
		sample.Axes[i] = models.Deadzone(value, s.deadzone(i))
	}
	return sample, nil
}

func (s *Sampler) deadzone(axis int) float64 {
	if axis == s.cfg.SteerAxis {
		return s.cfg.SteerDeadzone
	}
	return s.cfg.AxisDeadzone
}

// Tick runs one poll. The handler runs synchronously so ticks never overlap.
func (s *Sampler) Tick(handler SampleHandler) bool {
	sample, err := s.Sample()
	if err != nil {
		if !s.absent {
			log.Info().Err(err).Msg("input sampler idle")
			s.absent = true
		}
		return false
	}
	if s.absent {
		log.Info().Msg("input device available")
		s.absent = false
	}

	if !sample.HasActivity() {
		return false
	}
	handler(sample)
	return true
}

func (s *Sampler) Start(ctx context.Context, handler SampleHandler) error {
	log.Info().Dur("interval", s.cfg.PollInterval).Msg("starting input sampler")
	pollTicker := time.NewTicker(s.cfg.PollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("stopping input sampler: %s", ctx.Err().Error())
			return ctx.Err()
		case <-pollTicker.C:
			s.Tick(handler)
		}
	}
}
