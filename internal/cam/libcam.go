package cam

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/rs/zerolog/log"
)

const readBufferSize = 4096
const bufferSizeKB = 256

var nalSeparator = []byte{0, 0, 0, 1} //NAL break

func (c *Cam) args() []string {
	args := []string{
		"--inline", // H264: Force PPS/SPS header with every I frame
		"-t", "0", // Disable timeout
		"-o", "-", // Output to stdout
		"--flush", // Flush output files immediately
		"--width", c.cfg.Width,
		"--height", c.cfg.Height,
		"--framerate", c.cfg.Fps,
		"-n",                       // Do not show a preview window
		"--profile", c.cfg.Profile, // H264 profile baseline, main or high
	}
	if c.cfg.HorizontalFlip {
		args = append(args, "--hflip")
	}
	if c.cfg.VerticalFlip {
		args = append(args, "--vflip")
	}
	if c.cfg.Mode != "" {
		args = append(args, "--mode", c.cfg.Mode)
	}
	return args
}

func (c *Cam) StartStreaming(ctx context.Context) error {
	log.Info().Msg("start streaming...")
	cmd := exec.CommandContext(ctx, "libcamera-vid", c.args()...)
	defer func() {
		log.Info().Msg("killing cam streaming cmd...")
		if cmd.Process != nil {
			err := cmd.Process.Kill()
			if err != nil {
				log.Debug().Err(err).Msg("error killing cam process")
			}
		}
		cmd.Wait()
		log.Info().Msg("killed cam streaming cmd")
	}()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed getting std out pipe: %w", err)
	}

	err = cmd.Start()
	if err != nil {
		return fmt.Errorf("failed starting camera: %w", err)
	}

	log.Info().Strs("args", cmd.Args).Msg("started libcamera-vid")
	p := make([]byte, readBufferSize)
	splitter := newNALSplitter(bufferSizeKB * 1024)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping cam due to context")
			return ctx.Err()
		default:
			n, err := stdout.Read(p)
			if err != nil {
				return fmt.Errorf("failed reading camera from std out: %w", err)
			}

			for _, nal := range splitter.Write(p[:n]) {
				select {
				case c.videoChannel <- nal:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// nalSplitter cuts an H264 byte stream on NAL start codes. Each returned unit
// starts with its separator.
type nalSplitter struct {
	buffer     []byte
	currentPos int
}

func newNALSplitter(size int) *nalSplitter {
	return &nalSplitter{buffer: make([]byte, size)}
}

func (s *nalSplitter) Write(p []byte) [][]byte {
	var units [][]byte
	for len(p) > 0 {
		copied := copy(s.buffer[s.currentPos:], p)
		p = p[copied:]
		s.currentPos += copied

		for s.currentPos > len(nalSeparator) {
			nalIndex := bytes.Index(s.buffer[len(nalSeparator):s.currentPos], nalSeparator)
			if nalIndex < 0 {
				break
			}
			nalIndex += len(nalSeparator)

			unit := make([]byte, nalIndex)
			copy(unit, s.buffer[:nalIndex])
			units = append(units, unit)

			copy(s.buffer, s.buffer[nalIndex:s.currentPos])
			s.currentPos -= nalIndex
		}

		if s.currentPos == len(s.buffer) {
			log.Warn().Int("size", len(s.buffer)).Msg("nal larger than buffer, dropping")
			s.currentPos = 0
		}
	}
	return units
}
