package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/Speshl/gorrc_teleop/internal/cam"
	pca9685 "github.com/Speshl/gorrc_teleop/internal/command/pca9685"
	pipwm "github.com/Speshl/gorrc_teleop/internal/command/pi_pwm"
	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/linkstats"
	"github.com/Speshl/gorrc_teleop/internal/signaling"
	"github.com/Speshl/gorrc_teleop/internal/status"
	"github.com/Speshl/gorrc_teleop/internal/vehicle"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
)

// Vehicle is the answering side: it drives the servos from control tokens,
// echoes latency probes and optionally streams the camera.
type Vehicle struct {
	cfg    config.VehicleConfig
	signal *signaling.Client
	seat   *vehicle.VehicleSeat
	cam    *cam.Cam
	stats  *linkstats.Reporter

	lock       sync.Mutex
	connection *Connection
}

func NewCommandDriver(cfg config.CommandConfig) (vehicle.CommandDriverIFace, error) {
	switch cfg.CommandDriver {
	case "pca9685":
		return pca9685.NewCommand(cfg), nil
	case "pipwm", "pi_pwm":
		return pipwm.NewCommand(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported command driver: %s", cfg.CommandDriver)
	}
}

func NewVehicle(cfg config.VehicleConfig, driver vehicle.CommandDriverIFace) (*Vehicle, error) {
	a := &Vehicle{
		cfg:   cfg,
		seat:  vehicle.NewVehicleSeat(driver, cfg.InputTimeout),
		stats: linkstats.NewReporter(cfg.LinkStats, status.LogSink{Session: "vehicle"}),
	}
	a.signal = signaling.NewClient(cfg.Signal, a.onSignal, status.LogSink{Session: "vehicle"})
	a.signal.OnDisconnect(a.onSignalingDisconnect)

	if cfg.Cam.Enabled {
		carCam, err := cam.NewCam(cfg.Cam)
		if err != nil {
			return nil, fmt.Errorf("error creating carcam: %w", err)
		}
		a.cam = carCam
	}
	return a, nil
}

func (a *Vehicle) newConnection() (*Connection, error) {
	var videoTrack webrtc.TrackLocal
	if a.cam != nil {
		videoTrack = a.cam.VideoTrack
	}
	return NewConnection(a.cfg.Session, a.signal, a.seat, videoTrack)
}

func (a *Vehicle) closeConnection() {
	a.lock.Lock()
	conn := a.connection
	a.connection = nil
	a.lock.Unlock()
	if conn != nil {
		conn.Disconnect()
	}
}

func (a *Vehicle) Start(ctx context.Context) error {
	err := a.seat.Init()
	if err != nil {
		return err
	}
	defer a.closeConnection()

	loops := []Runnable{a.signal.Run, a.seat.Start, a.stats.Start}
	if a.cam != nil {
		log.Info().Msg("camera enabled")
		loops = append(loops, a.cam.Start)
	}
	return Run(ctx, "vehicle", loops...)
}
