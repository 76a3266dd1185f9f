// Package status carries link state out of the core. Rendering is left to
// whoever implements Sink; the core never touches presentation state.
package status

import (
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/rs/zerolog/log"
)

type Sink interface {
	ConnectionStateChanged(models.ConnectionState)
	ChannelStateChanged(models.ChannelState)
	ChannelError(error)
	LatencyMeasured(models.Latency)
	RemoteTrackReceived(kind string)
	SignalingStatusChanged(models.SignalingStatus)
	LinkStatsUpdated(models.LinkStats)
}

// LogSink writes every status change to the global logger.
type LogSink struct {
	Session string
}

func (s LogSink) ConnectionStateChanged(state models.ConnectionState) {
	log.Info().Str("session", s.Session).Str("state", state.String()).Msg("peer connection state")
}

func (s LogSink) ChannelStateChanged(state models.ChannelState) {
	log.Info().Str("session", s.Session).Str("state", state.String()).Msg("data channel state")
}

func (s LogSink) ChannelError(err error) {
	log.Error().Str("session", s.Session).Err(err).Msg("data channel error")
}

func (s LogSink) LatencyMeasured(latency models.Latency) {
	log.Info().Str("session", s.Session).Str("latency", latency.String()).Msg("ping")
}

func (s LogSink) RemoteTrackReceived(kind string) {
	log.Info().Str("session", s.Session).Str("kind", kind).Msg("remote track received")
}

func (s LogSink) SignalingStatusChanged(status models.SignalingStatus) {
	log.Info().Str("session", s.Session).Str("status", status.String()).Msg("signaling")
}

func (s LogSink) LinkStatsUpdated(stats models.LinkStats) {
	log.Debug().
		Str("session", s.Session).
		Str("iface", stats.Interface).
		Uint64("rx_pkt", stats.RxPackets).
		Uint64("rx_err", stats.RxErrors).
		Uint64("rx_drop", stats.RxDropped).
		Uint64("tx_pkt", stats.TxPackets).
		Uint64("tx_err", stats.TxErrors).
		Uint64("tx_drop", stats.TxDropped).
		Msg("link stats")
}

// Multi fans every update out to each sink in order.
type Multi []Sink

func (m Multi) ConnectionStateChanged(state models.ConnectionState) {
	for _, s := range m {
		s.ConnectionStateChanged(state)
	}
}

func (m Multi) ChannelStateChanged(state models.ChannelState) {
	for _, s := range m {
		s.ChannelStateChanged(state)
	}
}

func (m Multi) ChannelError(err error) {
	for _, s := range m {
		s.ChannelError(err)
	}
}

func (m Multi) LatencyMeasured(latency models.Latency) {
	for _, s := range m {
		s.LatencyMeasured(latency)
	}
}

func (m Multi) RemoteTrackReceived(kind string) {
	for _, s := range m {
		s.RemoteTrackReceived(kind)
	}
}

func (m Multi) SignalingStatusChanged(status models.SignalingStatus) {
	for _, s := range m {
		s.SignalingStatusChanged(status)
	}
}

func (m Multi) LinkStatsUpdated(stats models.LinkStats) {
	for _, s := range m {
		s.LinkStatsUpdated(stats)
	}
}
