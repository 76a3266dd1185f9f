package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/encoder"
	"github.com/Speshl/gorrc_teleop/internal/gamepad"
	"github.com/Speshl/gorrc_teleop/internal/latency"
	"github.com/Speshl/gorrc_teleop/internal/linkstats"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/Speshl/gorrc_teleop/internal/session"
	"github.com/Speshl/gorrc_teleop/internal/signaling"
	"github.com/Speshl/gorrc_teleop/internal/status"
	"github.com/Speshl/gorrc_teleop/internal/transport"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Operator is the control side of the link: it samples the gamepad, encodes
// control tokens and sends them over the session's data channel.
type Operator struct {
	cfg     config.OperatorConfig
	sink    status.Sink
	device  gamepad.Device
	sampler *gamepad.Sampler
	encoder *encoder.Encoder
	signal  *signaling.Client
	session *session.Manager
	gate    *transport.Gate
	prober  *latency.Prober
	stats   *linkstats.Reporter
}

// NewOperator wires the pipeline around peer. The sink receives every status
// update; nil falls back to logging only.
func NewOperator(cfg config.OperatorConfig, device gamepad.Device, peer session.Peer, sink status.Sink) *Operator {
	o := &Operator{
		cfg:     cfg,
		device:  device,
		sampler: gamepad.NewSampler(cfg.Sampler, device),
		encoder: encoder.NewEncoder(cfg.Encoder),
	}

	id := uuid.NewString()
	logSink := status.LogSink{Session: id}
	if sink == nil {
		o.sink = logSink
	} else {
		o.sink = status.Multi{logSink, sink}
	}
	o.signal = signaling.NewClient(cfg.Signal, o.onSignal, o.sink)
	o.session = session.NewManager(id, cfg.Session, peer, o.signal, o.sink)

	o.gate = transport.NewGate(o.session)
	o.prober = latency.NewProber(cfg.Probe, o.gate, o.session, o.sink)
	o.stats = linkstats.NewReporter(cfg.LinkStats, o.sink)

	o.session.OnMessage(o.onMessage)
	o.signal.OnConnect(o.onSignalingConnected)

	if hotplug, ok := device.(gamepad.Hotplug); ok {
		hotplug.OnConnect(func(name string) {
			log.Info().Str("device", name).Msg("gamepad connected")
		})
		hotplug.OnDisconnect(func(name string) {
			log.Warn().Str("device", name).Msg("gamepad disconnected")
		})
	}
	return o
}

func (o *Operator) Session() *session.Manager {
	return o.session
}

// Start opens the session and runs every loop until ctx is done or a signal
// arrives. The session is always closed on the way out.
func (o *Operator) Start(ctx context.Context) error {
	err := o.session.Open()
	if err != nil {
		o.session.Close()
		return fmt.Errorf("failed opening session - %w", err)
	}
	defer func() {
		err := o.session.Close()
		if err != nil {
			log.Warn().Err(err).Msg("error closing session")
		}
	}()

	return Run(ctx, "operator",
		o.signal.Run,
		func(ctx context.Context) error { return o.sampler.Start(ctx, o.onSample) },
		o.prober.Start,
		o.stats.Start,
	)
}

// onSample runs on the poll tick: encode and send, dropping the token when
// the channel is not open yet.
func (o *Operator) onSample(sample models.RawSample) {
	cv := o.encoder.Encode(sample)
	err := o.gate.Send(encoder.Token(cv))
	if err != nil {
		if errors.Is(err, models.ErrChannelNotOpen) {
			log.Debug().Err(err).Msg("control token dropped")
			return
		}
		log.Warn().Err(err).Msg("failed sending control token")
	}
}

// onMessage handles inbound data channel text. Only probe echoes are
// expected on this side.
func (o *Operator) onMessage(msg string) {
	if o.prober.HandleMessage(msg) {
		return
	}
	log.Debug().Str("msg", msg).Msg("ignoring data channel message")
}

func (o *Operator) onSignal(msg models.SignalingMessage) {
	err := o.session.HandleSignal(msg)
	if err != nil {
		log.Warn().Err(err).Str("event", msg.Event()).Msg("signaling message not applied")
	}
}

func (o *Operator) onSignalingConnected() {
	err := o.session.ResendOffer()
	if err != nil {
		log.Warn().Err(err).Msg("offer resend failed")
	}
}
