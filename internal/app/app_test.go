package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/gamepad"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/Speshl/gorrc_teleop/internal/session"
	"github.com/Speshl/gorrc_teleop/internal/status"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	applied []models.ControlVector
}

func (f *fakeController) Apply(cv models.ControlVector) error {
	f.applied = append(f.applied, cv)
	return nil
}

func TestRouteMessage(t *testing.T) {
	controller := &fakeController{}
	var echoed []string
	reply := func(s string) error {
		echoed = append(echoed, s)
		return nil
	}

	require.NoError(t, routeMessage("0.15,0", controller, reply))
	require.NoError(t, routeMessage("1700000000123", controller, reply))
	assert.Error(t, routeMessage("1.5,0", controller, reply))
	assert.Error(t, routeMessage("a,b", controller, reply))

	assert.Equal(t, []models.ControlVector{{Throttle: 0.15, Steering: 0}}, controller.applied)
	assert.Equal(t, []string{"1700000000123"}, echoed)
}

func TestRouteMessageEchoFailure(t *testing.T) {
	err := routeMessage("42", &fakeController{}, func(string) error { return errors.New("closed") })
	assert.Error(t, err)
}

func TestRunCleanOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	err := Run(ctx, "test", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	assert.NoError(t, err)
}

func TestRunSurfacesLoopError(t *testing.T) {
	boom := errors.New("servo bus gone")
	err := Run(context.Background(), "test", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestNewCommandDriver(t *testing.T) {
	_, err := NewCommandDriver(config.CommandConfig{CommandDriver: "pca9685"})
	assert.NoError(t, err)
	_, err = NewCommandDriver(config.CommandConfig{CommandDriver: "pipwm"})
	assert.NoError(t, err)
	_, err = NewCommandDriver(config.CommandConfig{CommandDriver: "serial"})
	assert.Error(t, err)
}

type stubDevice struct {
	snapshots []gamepad.Snapshot
}

func (s *stubDevice) Poll() []gamepad.Snapshot { return s.snapshots }

type stubChannel struct {
	sent    []string
	onOpen  func()
	onMsg   func(webrtc.DataChannelMessage)
	onClose func()
}

func (c *stubChannel) Label() string                                 { return config.DefaultDataChannelLabel }
func (c *stubChannel) SendText(s string) error                       { c.sent = append(c.sent, s); return nil }
func (c *stubChannel) OnOpen(f func())                               { c.onOpen = f }
func (c *stubChannel) OnClose(f func())                              { c.onClose = f }
func (c *stubChannel) OnError(func(error))                           {}
func (c *stubChannel) OnMessage(f func(webrtc.DataChannelMessage))   { c.onMsg = f }
func (c *stubChannel) Close() error                                  { return nil }

type stubPeer struct {
	channel *stubChannel
	onState func(webrtc.PeerConnectionState)
}

func (p *stubPeer) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, nil
}
func (p *stubPeer) SetLocalDescription(webrtc.SessionDescription) error  { return nil }
func (p *stubPeer) SetRemoteDescription(webrtc.SessionDescription) error { return nil }
func (p *stubPeer) AddICECandidate(webrtc.ICECandidateInit) error        { return nil }
func (p *stubPeer) CreateDataChannel(string) (session.DataChannel, error) {
	p.channel = &stubChannel{}
	return p.channel, nil
}
func (p *stubPeer) OnICECandidate(func(*webrtc.ICECandidateInit))             {}
func (p *stubPeer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) { p.onState = f }
func (p *stubPeer) OnTrack(func(string))                                      {}
func (p *stubPeer) Close() error                                              { return nil }

func testOperatorConfig() config.OperatorConfig {
	return config.OperatorConfig{
		Signal:  config.SignalClientConfig{Server: "127.0.0.1:1"},
		Session: config.SessionConfig{DataChannelLabel: config.DefaultDataChannelLabel},
		Sampler: config.SamplerConfig{
			PollInterval:  time.Millisecond,
			SteerAxis:     config.DefaultSteerAxis,
			SteerDeadzone: config.DefaultSteerDeadzone,
			AxisDeadzone:  config.DefaultAxisDeadzone,
		},
		Encoder: config.EncoderConfig{
			SteerAxis:     config.DefaultSteerAxis,
			ForwardButton: config.DefaultForwardButton,
			ReverseButton: config.DefaultReverseButton,
			SteerDeadzone: config.DefaultSteerDeadzone,
			ReverseMargin: config.DefaultReverseMargin,
		},
		Probe:     config.ProbeConfig{Interval: time.Second, Timeout: 5 * time.Second},
		LinkStats: config.LinkStatsConfig{Interface: "lo", Interval: time.Second},
	}
}

func TestOperatorSendsTokensOnlyWhenOpen(t *testing.T) {
	buttons := make([]float64, 8)
	buttons[config.DefaultForwardButton] = 0.15
	device := &stubDevice{snapshots: []gamepad.Snapshot{{Name: "pad", Buttons: buttons, Axes: []float64{0, 0}}}}
	peer := &stubPeer{}
	recorder := &status.Recorder{}

	o := NewOperator(testOperatorConfig(), device, peer, recorder)
	require.NoError(t, o.Session().Open())
	defer o.Session().Close()

	o.sampler.Tick(o.onSample)
	assert.Empty(t, peer.channel.sent, "dropped before open")

	peer.channel.onOpen()
	o.sampler.Tick(o.onSample)
	assert.Equal(t, []string{"0.15,0"}, peer.channel.sent)
	assert.Equal(t, []models.ChannelState{models.ChannelStateOpen}, recorder.Channel)
}

func TestOperatorMeasuresLatency(t *testing.T) {
	peer := &stubPeer{}
	recorder := &status.Recorder{}
	o := NewOperator(testOperatorConfig(), &stubDevice{}, peer, recorder)
	require.NoError(t, o.Session().Open())
	defer o.Session().Close()

	peer.channel.onOpen()
	peer.onState(webrtc.PeerConnectionStateConnected)
	require.True(t, o.prober.Tick())
	require.Len(t, peer.channel.sent, 1)

	peer.channel.onMsg(webrtc.DataChannelMessage{IsString: true, Data: []byte(peer.channel.sent[0])})
	latencies := recorder.LatencySnapshot()
	require.Len(t, latencies, 1)
	assert.True(t, latencies[0].Known)
}

type nopSignaler struct{}

func (nopSignaler) Emit(models.SignalingMessage) error { return nil }

func TestConnectionClosedOnPeerFailure(t *testing.T) {
	for _, state := range []webrtc.PeerConnectionState{webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed} {
		t.Run(state.String(), func(t *testing.T) {
			conn, err := NewConnection(config.SessionConfig{DataChannelLabel: config.DefaultDataChannelLabel}, nopSignaler{}, &fakeController{}, nil)
			require.NoError(t, err)
			defer conn.Disconnect()

			conn.onConnectionStateChange(webrtc.PeerConnectionStateDisconnected)
			assert.False(t, conn.isClosed())

			conn.onConnectionStateChange(state)
			assert.True(t, conn.isClosed())
			assert.Equal(t, webrtc.SignalingStateClosed, conn.PeerConnection.SignalingState())
		})
	}
}
