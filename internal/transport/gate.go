package transport

import (
	"fmt"
	"strconv"

	"github.com/Speshl/gorrc_teleop/internal/models"
)

// Channel is the live data channel as seen by the gate.
type Channel interface {
	ChannelState() models.ChannelState
	SendText(string) error
}

// Gate transmits only while the channel is open. Nothing is queued: a
// refused token is dropped since the next poll tick supersedes it.
type Gate struct {
	channel Channel
}

func NewGate(channel Channel) *Gate {
	return &Gate{channel: channel}
}

// Send fails fast with ErrChannelNotOpen when the channel is not open. Callers
// should treat that as transient.
func (g *Gate) Send(token string) error {
	state := g.channel.ChannelState()
	if state != models.ChannelStateOpen {
		return fmt.Errorf("%w: channel is %s", models.ErrChannelNotOpen, state)
	}
	err := g.channel.SendText(token)
	if err != nil {
		return fmt.Errorf("failed sending token - %w", err)
	}
	return nil
}

func (g *Gate) SendNumber(value int64) error {
	return g.Send(strconv.FormatInt(value, 10))
}
