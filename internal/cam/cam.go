package cam

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/rs/zerolog/log"
)

const DefaultFPS = 30

// Cam streams the vehicle camera into a sample track shared by every peer
// connection the vehicle answers.
type Cam struct {
	VideoTrack   *webrtc.TrackLocalStaticSample
	videoChannel chan []byte
	cfg          config.CamConfig
}

func NewCam(cfg config.CamConfig) (*Cam, error) {
	videoTrack, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264}, "video", "gorrc")
	if err != nil {
		return nil, fmt.Errorf("error creating video track: %w", err)
	}

	return &Cam{
		VideoTrack:   videoTrack,
		videoChannel: make(chan []byte, 5),
		cfg:          cfg,
	}, nil
}

func (c *Cam) Start(ctx context.Context) error {
	go c.StartVideoDataListener(ctx)
	return c.StartStreaming(ctx)
}

func (c *Cam) frameDuration() time.Duration {
	fps, err := strconv.ParseInt(c.cfg.Fps, 10, 32)
	if err != nil || fps <= 0 {
		fps = DefaultFPS
	}
	return time.Second / time.Duration(fps)
}

func (c *Cam) StartVideoDataListener(ctx context.Context) {
	duration := c.frameDuration()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("video data listener done due to ctx")
			return
		case data, ok := <-c.videoChannel:
			if !ok {
				log.Info().Msg("video data channel closed, stopping")
				return
			}

			err := c.VideoTrack.WriteSample(media.Sample{Data: data, Duration: duration})
			if err != nil {
				log.Error().Err(err).Msg("error writing sample to track")
				return
			}
		}
	}
}
