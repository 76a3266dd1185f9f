package transport

import (
	"errors"
	"testing"

	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/stretchr/testify/assert"
)

type fakeChannel struct {
	state models.ChannelState
	sent  []string
	err   error
}

func (f *fakeChannel) ChannelState() models.ChannelState { return f.state }

func (f *fakeChannel) SendText(s string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, s)
	return nil
}

func TestSendRefusedUnlessOpen(t *testing.T) {
	for _, state := range []models.ChannelState{
		models.ChannelStateConnecting,
		models.ChannelStateClosing,
		models.ChannelStateClosed,
	} {
		t.Run(state.String(), func(t *testing.T) {
			channel := &fakeChannel{state: state}
			err := NewGate(channel).Send("0.15,0")
			assert.ErrorIs(t, err, models.ErrChannelNotOpen)
			assert.Empty(t, channel.sent)
		})
	}
}

func TestSendWhenOpen(t *testing.T) {
	channel := &fakeChannel{state: models.ChannelStateOpen}
	gate := NewGate(channel)

	assert.NoError(t, gate.Send("0.15,0"))
	assert.NoError(t, gate.SendNumber(1700000000123))
	assert.Equal(t, []string{"0.15,0", "1700000000123"}, channel.sent)
}

func TestSendSurfacesChannelError(t *testing.T) {
	boom := errors.New("sctp closed")
	channel := &fakeChannel{state: models.ChannelStateOpen, err: boom}
	err := NewGate(channel).Send("1,0")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, models.ErrChannelNotOpen)
}
