package app

import (
	"fmt"
	"sync"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/Speshl/gorrc_teleop/internal/session"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Controller receives decoded control vectors on the vehicle.
type Controller interface {
	Apply(models.ControlVector) error
}

// Connection is the answering end of one session on the vehicle.
type Connection struct {
	ID             string
	PeerConnection *webrtc.PeerConnection
	cfg            config.SessionConfig
	signaler       session.Signaler
	controller     Controller
	logger         zerolog.Logger

	lock      sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	closed    bool
}

func NewConnection(cfg config.SessionConfig, signaler session.Signaler, controller Controller, videoTrack webrtc.TrackLocal) (*Connection, error) {
	peerConn, err := webrtc.NewPeerConnection(session.ICEConfiguration(cfg))
	if err != nil {
		return nil, fmt.Errorf("error creating peer connection - %w", err)
	}

	id := uuid.NewString()
	conn := &Connection{
		ID:             id,
		PeerConnection: peerConn,
		cfg:            cfg,
		signaler:       signaler,
		controller:     controller,
		logger:         log.With().Str("connection", id).Logger(),
	}

	if videoTrack != nil {
		conn.logger.Info().Msg("adding car video track")
		sender, err := peerConn.AddTrack(videoTrack)
		if err != nil {
			peerConn.Close()
			return nil, fmt.Errorf("error adding video track: %w", err)
		}
		go drainRTCP(sender)
	}

	peerConn.OnConnectionStateChange(conn.onConnectionStateChange)
	peerConn.OnICECandidate(conn.onICECandidate)
	peerConn.OnDataChannel(conn.onDataChannel)
	return conn, nil
}

// Answer applies the remote offer and sends back the local answer. Local
// candidates trickle separately as they are gathered.
func (c *Connection) Answer(offer webrtc.SessionDescription) error {
	err := c.PeerConnection.SetRemoteDescription(offer)
	if err != nil {
		return fmt.Errorf("%w: failed to set remote description - %s", models.ErrMalformedSignalingPayload, err)
	}

	c.lock.Lock()
	c.remoteSet = true
	pending := c.pending
	c.pending = nil
	c.lock.Unlock()
	for _, candidate := range pending {
		c.applyCandidate(candidate)
	}

	answer, err := c.PeerConnection.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer - %w", err)
	}

	err = c.PeerConnection.SetLocalDescription(answer)
	if err != nil {
		return fmt.Errorf("failed to set local description - %w", err)
	}

	c.logger.Info().Msg("sending answer")
	return c.signaler.Emit(models.Answer{SDP: answer})
}

// AddCandidate applies a remote candidate, holding it until the offer is in.
func (c *Connection) AddCandidate(candidate webrtc.ICECandidateInit) {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	if !c.remoteSet {
		c.pending = append(c.pending, candidate)
		c.lock.Unlock()
		return
	}
	c.lock.Unlock()
	c.applyCandidate(candidate)
}

func (c *Connection) applyCandidate(candidate webrtc.ICECandidateInit) {
	err := c.PeerConnection.AddICECandidate(candidate)
	if err != nil {
		c.logger.Warn().Err(err).Str("candidate", candidate.Candidate).Msg("dropping remote ice candidate")
	}
}

func (c *Connection) Disconnect() {
	c.lock.Lock()
	if c.closed {
		c.lock.Unlock()
		return
	}
	c.closed = true
	c.lock.Unlock()

	c.logger.Info().Msg("user disconnecting")
	err := c.PeerConnection.Close()
	if err != nil {
		c.logger.Warn().Err(err).Msg("error closing peer connection")
	}
}

func (c *Connection) isClosed() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.closed
}

// drainRTCP reads receiver reports so interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		_, _, err := sender.Read(buf)
		if err != nil {
			return
		}
	}
}
