package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/Speshl/gorrc_teleop/internal/status"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Signaler interface {
	Emit(models.SignalingMessage) error
}

type MessageHandler func(msg string)

type stopper interface {
	Stop() bool
}

// Manager owns one peer connection from offer to teardown. It is the offering
// side: it creates the data channel, sends the offer and applies the answer.
type Manager struct {
	id        string
	cfg       config.SessionConfig
	peer      Peer
	signaler  Signaler
	sink      status.Sink
	logger    zerolog.Logger
	afterFunc func(time.Duration, func()) stopper

	// serializes inbound signaling so answer and candidates apply in order
	signalLock sync.Mutex

	lock              sync.Mutex
	state             models.ConnectionState
	channelState      models.ChannelState
	channel           DataChannel
	onMessage         MessageHandler
	localOffer        *webrtc.SessionDescription
	remoteSet         bool
	pendingCandidates []webrtc.ICECandidateInit
	// local candidates gathered while signaling was down
	unsentCandidates []webrtc.ICECandidateInit
	handshakeTimer    stopper
	closed            bool
}

// NewManager builds a manager for one session. An empty id gets a random one.
func NewManager(id string, cfg config.SessionConfig, peer Peer, signaler Signaler, sink status.Sink) *Manager {
	if id == "" {
		id = uuid.NewString()
	}
	return &Manager{
		id:           id,
		cfg:          cfg,
		peer:         peer,
		signaler:     signaler,
		sink:         sink,
		logger:       log.With().Str("session", id).Logger(),
		state:        models.ConnectionStateNew,
		channelState: models.ChannelStateConnecting,
		afterFunc: func(d time.Duration, f func()) stopper {
			return time.AfterFunc(d, f)
		},
	}
}

func (m *Manager) ID() string {
	return m.id
}

// OnMessage sets the handler for inbound data channel messages.
func (m *Manager) OnMessage(handler MessageHandler) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.onMessage = handler
}

func (m *Manager) ConnectionState() models.ConnectionState {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

func (m *Manager) ChannelState() models.ChannelState {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.channelState
}

// SendText writes to the data channel without checking its state. Use a
// transport gate for sends that must respect readiness.
func (m *Manager) SendText(text string) error {
	m.lock.Lock()
	channel := m.channel
	m.lock.Unlock()
	if channel == nil {
		return models.ErrChannelNotOpen
	}
	return channel.SendText(text)
}

// Open registers the peer callbacks, creates the data channel and sends the
// local offer. The session moves from New to Connecting.
func (m *Manager) Open() error {
	m.lock.Lock()
	if m.closed || m.state != models.ConnectionStateNew {
		m.lock.Unlock()
		return fmt.Errorf("session %s already opened", m.id)
	}
	m.lock.Unlock()

	m.peer.OnICECandidate(m.onICECandidate)
	m.peer.OnConnectionStateChange(m.onPeerStateChange)
	m.peer.OnTrack(m.onTrack)

	channel, err := m.peer.CreateDataChannel(m.cfg.DataChannelLabel)
	if err != nil {
		return m.fail(fmt.Errorf("error creating data channel - %w", err))
	}
	m.attachChannel(channel)

	m.transition(models.ConnectionStateConnecting)
	m.startHandshakeTimer()

	offer, err := m.peer.CreateOffer()
	if err != nil {
		return m.fail(fmt.Errorf("error creating offer - %w", err))
	}

	err = m.peer.SetLocalDescription(offer)
	if err != nil {
		return m.fail(fmt.Errorf("error setting local description - %w", err))
	}

	m.lock.Lock()
	m.localOffer = &offer
	m.lock.Unlock()

	err = m.signaler.Emit(models.Offer{SDP: offer})
	if err != nil {
		m.logger.Warn().Err(err).Msg("offer not delivered, will resend when signaling reconnects")
		return nil
	}
	m.logger.Info().Msg("offer sent")
	return nil
}

// ResendOffer emits the local offer again while no answer has been applied,
// then flushes local candidates that could not be sent. Used when the
// signaling link comes back after the first offer was lost.
func (m *Manager) ResendOffer() error {
	m.lock.Lock()
	offer := m.localOffer
	closed := m.closed
	waiting := !m.remoteSet && m.state == models.ConnectionStateConnecting
	m.lock.Unlock()

	if closed {
		return nil
	}
	if offer != nil && waiting {
		err := m.signaler.Emit(models.Offer{SDP: *offer})
		if err != nil {
			return fmt.Errorf("failed resending offer - %w", err)
		}
		m.logger.Info().Msg("offer resent")
	}
	return m.flushCandidates()
}

// flushCandidates emits held local candidates in gathering order. Whatever
// fails to send stays held for the next reconnect.
func (m *Manager) flushCandidates() error {
	m.lock.Lock()
	held := m.unsentCandidates
	m.unsentCandidates = nil
	m.lock.Unlock()

	for i, candidate := range held {
		err := m.signaler.Emit(models.IceCandidate{Candidate: candidate})
		if err != nil {
			m.lock.Lock()
			m.unsentCandidates = append(append([]webrtc.ICECandidateInit(nil), held[i:]...), m.unsentCandidates...)
			m.lock.Unlock()
			return fmt.Errorf("failed sending held ice candidates - %w", err)
		}
	}
	if len(held) > 0 {
		m.logger.Debug().Int("count", len(held)).Msg("sent held ice candidates")
	}
	return nil
}

// HandleSignal applies one inbound signaling message. Errors are returned for
// the caller to log; none of them end the session.
func (m *Manager) HandleSignal(msg models.SignalingMessage) error {
	m.signalLock.Lock()
	defer m.signalLock.Unlock()

	switch signal := msg.(type) {
	case models.Answer:
		return m.applyAnswer(signal.SDP)
	case models.IceCandidate:
		return m.addCandidate(signal.Candidate)
	case models.Offer:
		return fmt.Errorf("%w: offer received by the offering side", models.ErrUnexpectedSignal)
	default:
		return fmt.Errorf("%w: %T", models.ErrUnexpectedSignal, msg)
	}
}

func (m *Manager) applyAnswer(answer webrtc.SessionDescription) error {
	m.lock.Lock()
	switch {
	case m.closed || m.state.Terminal():
		m.lock.Unlock()
		return fmt.Errorf("%w: answer after session ended", models.ErrUnexpectedSignal)
	case m.localOffer == nil:
		m.lock.Unlock()
		return fmt.Errorf("%w: answer before local offer", models.ErrUnexpectedSignal)
	case m.remoteSet:
		m.lock.Unlock()
		return fmt.Errorf("%w: duplicate answer", models.ErrUnexpectedSignal)
	}
	m.lock.Unlock()

	err := m.peer.SetRemoteDescription(answer)
	if err != nil {
		return fmt.Errorf("%w: set remote description - %s", models.ErrMalformedSignalingPayload, err)
	}
	m.logger.Info().Msg("remote description set")

	m.lock.Lock()
	m.remoteSet = true
	pending := m.pendingCandidates
	m.pendingCandidates = nil
	m.lock.Unlock()

	var errs []error
	for _, candidate := range pending {
		err := m.applyCandidate(candidate)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// addCandidate applies a remote candidate, or holds it until the answer is in
// since the peer cannot use candidates without a remote description.
func (m *Manager) addCandidate(candidate webrtc.ICECandidateInit) error {
	m.lock.Lock()
	if m.closed || m.state.Terminal() {
		m.lock.Unlock()
		return nil
	}
	if !m.remoteSet {
		m.pendingCandidates = append(m.pendingCandidates, candidate)
		m.lock.Unlock()
		m.logger.Debug().Msg("holding remote candidate until answer")
		return nil
	}
	m.lock.Unlock()
	return m.applyCandidate(candidate)
}

func (m *Manager) applyCandidate(candidate webrtc.ICECandidateInit) error {
	err := m.peer.AddICECandidate(candidate)
	if err != nil {
		return fmt.Errorf("%w: ice candidate %q - %s", models.ErrMalformedSignalingPayload, candidate.Candidate, err)
	}
	m.logger.Debug().Msg("added remote ice candidate")
	return nil
}

// Close tears the session down. Timers are stopped and every callback becomes
// a no-op before the peer is closed.
func (m *Manager) Close() error {
	m.lock.Lock()
	if m.closed {
		m.lock.Unlock()
		return nil
	}
	m.closed = true
	if m.handshakeTimer != nil {
		m.handshakeTimer.Stop()
	}
	channel := m.channel
	prevState := m.state
	prevChannel := m.channelState
	m.state = models.ConnectionStateClosed
	m.unsentCandidates = nil
	if prevChannel == models.ChannelStateOpen {
		m.channelState = models.ChannelStateClosing
	}
	m.lock.Unlock()

	if prevChannel == models.ChannelStateOpen {
		m.sink.ChannelStateChanged(models.ChannelStateClosing)
	}

	var errs []error
	if channel != nil {
		errs = append(errs, channel.Close())
	}
	errs = append(errs, m.peer.Close())

	m.lock.Lock()
	m.channelState = models.ChannelStateClosed
	m.lock.Unlock()
	if prevChannel != models.ChannelStateClosed {
		m.sink.ChannelStateChanged(models.ChannelStateClosed)
	}
	if prevState != models.ConnectionStateClosed {
		m.sink.ConnectionStateChanged(models.ConnectionStateClosed)
	}
	m.logger.Info().Msg("session closed")
	return errors.Join(errs...)
}

func (m *Manager) attachChannel(channel DataChannel) {
	m.lock.Lock()
	m.channel = channel
	m.lock.Unlock()

	channel.OnOpen(func() {
		m.logger.Info().Str("label", channel.Label()).Msg("data channel open")
		m.setChannelState(models.ChannelStateOpen)
	})
	channel.OnClose(func() {
		m.logger.Info().Str("label", channel.Label()).Msg("data channel closed")
		m.setChannelState(models.ChannelStateClosed)
	})
	channel.OnError(func(err error) {
		if m.isClosed() {
			return
		}
		m.logger.Error().Err(err).Str("label", channel.Label()).Msg("data channel error")
		m.sink.ChannelError(err)
	})
	channel.OnMessage(func(msg webrtc.DataChannelMessage) {
		m.lock.Lock()
		handler := m.onMessage
		closed := m.closed
		m.lock.Unlock()
		if closed || handler == nil {
			return
		}
		handler(string(msg.Data))
	})
}

func (m *Manager) setChannelState(next models.ChannelState) {
	m.lock.Lock()
	if m.closed || m.channelState == next {
		m.lock.Unlock()
		return
	}
	m.channelState = next
	m.lock.Unlock()
	m.sink.ChannelStateChanged(next)
}

func (m *Manager) onICECandidate(candidate *webrtc.ICECandidateInit) {
	if m.isClosed() {
		return
	}
	if candidate == nil {
		m.logger.Info().Msg("all current ice candidates have been gathered")
		return
	}
	if candidate.Candidate == "" {
		return
	}
	err := m.signaler.Emit(models.IceCandidate{Candidate: *candidate})
	if err != nil {
		m.logger.Warn().Err(err).Msg("ice candidate not delivered, holding until signaling reconnects")
		m.lock.Lock()
		m.unsentCandidates = append(m.unsentCandidates, *candidate)
		m.lock.Unlock()
	}
}

func (m *Manager) onPeerStateChange(state webrtc.PeerConnectionState) {
	m.logger.Debug().Str("state", state.String()).Msg("peer connection state change")
	next := models.ConnectionStateFromPeer(state)
	if next == models.ConnectionStateNew {
		return
	}
	if m.transition(next) && next == models.ConnectionStateFailed {
		m.logger.Error().Err(models.ErrPeerConnectionFailed).Msg("session failed")
	}
}

func (m *Manager) onTrack(kind string) {
	if m.isClosed() {
		return
	}
	m.logger.Info().Str("kind", kind).Msg("received new track")
	m.sink.RemoteTrackReceived(kind)
}

// transition moves to next unless the session is closed, already there, or in
// a terminal state.
func (m *Manager) transition(next models.ConnectionState) bool {
	m.lock.Lock()
	if m.closed || m.state == next || m.state.Terminal() {
		m.lock.Unlock()
		return false
	}
	prev := m.state
	m.state = next
	if next != models.ConnectionStateConnecting && m.handshakeTimer != nil {
		m.handshakeTimer.Stop()
		m.handshakeTimer = nil
	}
	m.lock.Unlock()

	m.logger.Info().Str("from", prev.String()).Str("to", next.String()).Msg("session state")
	m.sink.ConnectionStateChanged(next)
	return true
}

func (m *Manager) fail(err error) error {
	m.logger.Error().Err(err).Msg("session failed")
	m.transition(models.ConnectionStateFailed)
	return fmt.Errorf("%w: %w", models.ErrPeerConnectionFailed, err)
}

func (m *Manager) startHandshakeTimer() {
	if m.cfg.HandshakeTimeout <= 0 {
		return
	}
	timer := m.afterFunc(m.cfg.HandshakeTimeout, m.onHandshakeTimeout)
	m.lock.Lock()
	m.handshakeTimer = timer
	m.lock.Unlock()
}

func (m *Manager) onHandshakeTimeout() {
	m.lock.Lock()
	stalled := !m.closed && (m.state == models.ConnectionStateNew || m.state == models.ConnectionStateConnecting)
	m.lock.Unlock()
	if !stalled {
		return
	}

	m.logger.Error().Dur("timeout", m.cfg.HandshakeTimeout).Msg("handshake timed out")
	m.transition(models.ConnectionStateFailed)
	err := m.peer.Close()
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed closing stalled peer connection")
	}
}

func (m *Manager) isClosed() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.closed
}
