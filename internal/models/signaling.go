package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v3"
)

const (
	EventOffer        = "offer"
	EventAnswer       = "answer"
	EventICECandidate = "ice_candidate"
)

// SignalingMessage is one of Offer, Answer or IceCandidate.
type SignalingMessage interface {
	Event() string
	signalingMessage()
}

type Offer struct {
	SDP webrtc.SessionDescription
}

type Answer struct {
	SDP webrtc.SessionDescription
}

type IceCandidate struct {
	Candidate webrtc.ICECandidateInit
}

func (Offer) Event() string        { return EventOffer }
func (Answer) Event() string       { return EventAnswer }
func (IceCandidate) Event() string { return EventICECandidate }

func (Offer) signalingMessage()        {}
func (Answer) signalingMessage()       {}
func (IceCandidate) signalingMessage() {}

// EncodeSignal renders the JSON payload sent with the message's event name.
func EncodeSignal(msg SignalingMessage) (string, error) {
	var (
		data []byte
		err  error
	)
	switch m := msg.(type) {
	case Offer:
		data, err = json.Marshal(m.SDP)
	case Answer:
		data, err = json.Marshal(m.SDP)
	case IceCandidate:
		data, err = json.Marshal(m.Candidate)
	default:
		return "", fmt.Errorf("unsupported signaling message %T", msg)
	}
	if err != nil {
		return "", fmt.Errorf("failed encoding %s - %w", msg.Event(), err)
	}
	return string(data), nil
}

// DecodeSignal parses an inbound event payload. Every failure wraps ErrMalformedSignalingPayload.
func DecodeSignal(event string, payload string) (SignalingMessage, error) {
	switch event {
	case EventOffer, EventAnswer:
		sdp := webrtc.SessionDescription{}
		err := json.Unmarshal([]byte(payload), &sdp)
		if err != nil {
			return nil, fmt.Errorf("%w: %s - %s", ErrMalformedSignalingPayload, event, err)
		}
		if strings.TrimSpace(sdp.SDP) == "" {
			return nil, fmt.Errorf("%w: %s has empty sdp", ErrMalformedSignalingPayload, event)
		}
		if event == EventOffer {
			if sdp.Type != webrtc.SDPTypeOffer {
				return nil, fmt.Errorf("%w: offer has type %s", ErrMalformedSignalingPayload, sdp.Type)
			}
			return Offer{SDP: sdp}, nil
		}
		if sdp.Type != webrtc.SDPTypeAnswer {
			return nil, fmt.Errorf("%w: answer has type %s", ErrMalformedSignalingPayload, sdp.Type)
		}
		return Answer{SDP: sdp}, nil
	case EventICECandidate:
		candidate := webrtc.ICECandidateInit{}
		err := json.Unmarshal([]byte(payload), &candidate)
		if err != nil {
			return nil, fmt.Errorf("%w: %s - %s", ErrMalformedSignalingPayload, event, err)
		}
		if strings.TrimSpace(candidate.Candidate) == "" {
			return nil, fmt.Errorf("%w: empty candidate", ErrMalformedSignalingPayload)
		}
		return IceCandidate{Candidate: candidate}, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedSignalingPayload, event)
	}
}
