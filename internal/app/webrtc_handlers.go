package app

import (
	"fmt"

	"github.com/Speshl/gorrc_teleop/internal/encoder"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/pion/webrtc/v3"
)

func (c *Connection) onConnectionStateChange(state webrtc.PeerConnectionState) {
	c.logger.Info().Str("state", state.String()).Msg("connection state has changed")
	switch state {
	case webrtc.PeerConnectionStateFailed:
		c.logger.Error().Err(models.ErrPeerConnectionFailed).Msg("peer connection failed")
		c.Disconnect()
	case webrtc.PeerConnectionStateClosed:
		c.Disconnect()
	}
}

func (c *Connection) onICECandidate(candidate *webrtc.ICECandidate) {
	if candidate == nil || c.isClosed() {
		return
	}
	err := c.signaler.Emit(models.IceCandidate{Candidate: candidate.ToJSON()})
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed sending ice candidate")
	}
}

func (c *Connection) onDataChannel(d *webrtc.DataChannel) {
	c.logger.Info().Str("label", d.Label()).Msg("new data channel")
	if d.Label() != c.cfg.DataChannelLabel {
		c.logger.Warn().Str("label", d.Label()).Msg("ignoring unsupported data channel")
		return
	}

	d.OnOpen(func() {
		c.logger.Info().Str("label", d.Label()).Msg("data channel open")
	})
	d.OnClose(func() {
		c.logger.Info().Str("label", d.Label()).Msg("data channel closed")
	})
	d.OnMessage(func(msg webrtc.DataChannelMessage) {
		err := routeMessage(string(msg.Data), c.controller, d.SendText)
		if err != nil {
			c.logger.Warn().Err(err).Msg("data channel message dropped")
		}
	})
}

// routeMessage applies control tokens and echoes everything else back, which
// is how latency probes are answered.
func routeMessage(msg string, controller Controller, reply func(string) error) error {
	if !encoder.IsControlToken(msg) {
		err := reply(msg)
		if err != nil {
			return fmt.Errorf("failed echoing probe - %w", err)
		}
		return nil
	}

	cv, err := encoder.ParseToken(msg)
	if err != nil {
		return err
	}
	return controller.Apply(cv)
}
