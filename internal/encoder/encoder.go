package encoder

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
)

const (
	MaxOutput = 1.0
	MinOutput = -1.0

	tokenSeparator = ","
)

// Encoder turns raw samples into a throttle/steering vector. It holds no state
// beyond its configuration, so the same sample always encodes the same way.
type Encoder struct {
	cfg config.EncoderConfig
}

func NewEncoder(cfg config.EncoderConfig) *Encoder {
	return &Encoder{cfg: cfg}
}

func (e *Encoder) Encode(sample models.RawSample) models.ControlVector {
	steer := models.Deadzone(sample.Axis(e.cfg.SteerAxis), e.cfg.SteerDeadzone)

	forward := sample.Button(e.cfg.ForwardButton)
	reverse := sample.Button(e.cfg.ReverseButton)
	if reverse > 0 {
		// both pedals pressed leans toward braking instead of cancelling out
		forward -= e.cfg.ReverseMargin
	}

	return models.ControlVector{
		Throttle: round2(clamp(forward - reverse)),
		Steering: round2(clamp(steer)),
	}
}

// Token renders the vector in the "<throttle>,<steering>" wire profile.
func Token(cv models.ControlVector) string {
	return formatValue(cv.Throttle) + tokenSeparator + formatValue(cv.Steering)
}

// IsControlToken separates control tokens from latency probes sharing the channel.
func IsControlToken(msg string) bool {
	return strings.Contains(msg, tokenSeparator)
}

// ParseToken decodes a "<throttle>,<steering>" token. Values outside [-1,1] are rejected.
func ParseToken(token string) (models.ControlVector, error) {
	parts := strings.Split(strings.TrimSpace(token), tokenSeparator)
	if len(parts) != 2 {
		return models.ControlVector{}, fmt.Errorf("control token %q needs 2 values, got %d", token, len(parts))
	}

	values := make([]float64, 2)
	for i, part := range parts {
		value, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return models.ControlVector{}, fmt.Errorf("control token %q - %w", token, err)
		}
		if math.IsNaN(value) || value < MinOutput || value > MaxOutput {
			return models.ControlVector{}, fmt.Errorf("control token %q value %v out of range", token, value)
		}
		values[i] = value
	}

	return models.ControlVector{Throttle: values[0], Steering: values[1]}, nil
}

func clamp(value float64) float64 {
	if value > MaxOutput {
		return MaxOutput
	}
	if value < MinOutput {
		return MinOutput
	}
	return value
}

func round2(value float64) float64 {
	rounded := math.Round(value*100) / 100
	if rounded == 0 {
		return 0 // no negative zero on the wire
	}
	return rounded
}

func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}
