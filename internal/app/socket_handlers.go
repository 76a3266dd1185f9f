package app

import (
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog/log"
)

func (a *Vehicle) onSignal(msg models.SignalingMessage) {
	switch signal := msg.(type) {
	case models.Offer:
		a.onOffer(signal.SDP)
	case models.IceCandidate:
		a.onICECandidate(signal.Candidate)
	default:
		log.Warn().Err(models.ErrUnexpectedSignal).Str("event", msg.Event()).Msg("vehicle only answers offers")
	}
}

// onOffer replaces any previous connection; the vehicle serves one operator.
func (a *Vehicle) onOffer(offer webrtc.SessionDescription) {
	log.Info().Msg("offer received")
	conn, err := a.newConnection()
	if err != nil {
		log.Error().Err(err).Msg("failed creating connection on offer")
		return
	}

	a.lock.Lock()
	previous := a.connection
	a.connection = conn
	a.lock.Unlock()
	if previous != nil {
		previous.Disconnect()
	}

	err = conn.Answer(offer)
	if err != nil {
		log.Error().Err(err).Msg("failed answering offer")
	}
}

func (a *Vehicle) onICECandidate(candidate webrtc.ICECandidateInit) {
	a.lock.Lock()
	conn := a.connection
	a.lock.Unlock()
	if conn == nil {
		log.Debug().Msg("ice candidate without connection dropped")
		return
	}
	conn.AddCandidate(candidate)
}

func (a *Vehicle) onSignalingDisconnect() {
	a.closeConnection()
	err := a.seat.Stop()
	if err != nil {
		log.Warn().Err(err).Msg("failed centering after disconnect")
	}
}
