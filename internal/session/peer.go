package session

import (
	"fmt"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
)

// Peer is the part of a peer connection the session drives.
type Peer interface {
	CreateOffer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	CreateDataChannel(label string) (DataChannel, error)
	// OnICECandidate handlers get nil once gathering is complete
	OnICECandidate(func(*webrtc.ICECandidateInit))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnTrack(func(kind string))
	Close() error
}

// DataChannel is satisfied by *webrtc.DataChannel.
type DataChannel interface {
	Label() string
	SendText(string) error
	OnOpen(func())
	OnClose(func())
	OnError(func(error))
	OnMessage(func(webrtc.DataChannelMessage))
	Close() error
}

func ICEConfiguration(cfg config.SessionConfig) webrtc.Configuration {
	iceServers := make([]webrtc.ICEServer, 0, 1)
	if len(cfg.StunServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: cfg.StunServers})
	}
	return webrtc.Configuration{ICEServers: iceServers}
}

// PionPeer adapts a pion peer connection to Peer.
type PionPeer struct {
	pc *webrtc.PeerConnection
}

func NewPionPeer(cfg config.SessionConfig) (*PionPeer, error) {
	pc, err := webrtc.NewPeerConnection(ICEConfiguration(cfg))
	if err != nil {
		return nil, fmt.Errorf("error creating peer connection - %w", err)
	}

	if cfg.ReceiveVideo {
		// AddTransceiverFromKind instead of an offer option so safari peers get video too
		_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("error adding video transceiver - %w", err)
		}
	}

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Debug().Str("state", state.String()).Msg("ice connection state has changed")
	})
	return &PionPeer{pc: pc}, nil
}

func (p *PionPeer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *PionPeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *PionPeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *PionPeer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *PionPeer) CreateDataChannel(label string) (DataChannel, error) {
	dc, err := p.pc.CreateDataChannel(label, nil)
	if err != nil {
		return nil, err
	}
	return dc, nil
}

func (p *PionPeer) OnICECandidate(f func(*webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			f(nil)
			return
		}
		init := c.ToJSON()
		f(&init)
	})
}

func (p *PionPeer) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(f)
}

func (p *PionPeer) OnTrack(f func(kind string)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		f(track.Kind().String())
		go drainTrack(track)
	})
}

func (p *PionPeer) Close() error {
	return p.pc.Close()
}

// drainTrack keeps reading so the receive buffers do not back up. Rendering is
// done elsewhere.
func drainTrack(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		_, _, err := track.Read(buf)
		if err != nil {
			log.Debug().Err(err).Str("kind", track.Kind().String()).Msg("remote track ended")
			return
		}
	}
}
