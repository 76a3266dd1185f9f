package latency

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/rs/zerolog/log"
)

type Sender interface {
	SendNumber(int64) error
}

type ConnectionStater interface {
	ConnectionState() models.ConnectionState
}

type Reporter interface {
	LatencyMeasured(models.Latency)
}

type pendingProbe struct {
	sentAt int64
}

// Prober measures round trip time with at most one probe in flight. The
// pending probe is shared between the probe ticker and the inbound message
// callback, so every access goes through lock.
type Prober struct {
	cfg      config.ProbeConfig
	sender   Sender
	conn     ConnectionStater
	reporter Reporter
	nowMilli func() int64

	lock    sync.Mutex
	pending *pendingProbe
}

func NewProber(cfg config.ProbeConfig, sender Sender, conn ConnectionStater, reporter Reporter) *Prober {
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultProbeInterval
	}
	return &Prober{
		cfg:      cfg,
		sender:   sender,
		conn:     conn,
		reporter: reporter,
		nowMilli: func() int64 { return time.Now().UnixMilli() },
	}
}

// Tick sends a probe unless the session is not connected or one is already
// outstanding. A probe older than the timeout is dropped and replaced.
func (p *Prober) Tick() bool {
	if p.conn.ConnectionState() != models.ConnectionStateConnected {
		return false
	}

	p.lock.Lock()
	now := p.nowMilli()
	timedOut := false
	if p.pending != nil {
		if p.cfg.Timeout <= 0 || now-p.pending.sentAt < p.cfg.Timeout.Milliseconds() {
			p.lock.Unlock()
			return false
		}
		log.Warn().Int64("sent_at", p.pending.sentAt).Msg("probe timed out")
		timedOut = true
	}
	probe := &pendingProbe{sentAt: now}
	p.pending = probe
	p.lock.Unlock()

	if timedOut {
		p.report(models.Latency{})
	}

	// sent outside the lock, an echo may be handled before Send returns
	err := p.sender.SendNumber(probe.sentAt)
	if err != nil {
		log.Debug().Err(err).Msg("probe not sent")
		p.lock.Lock()
		if p.pending == probe {
			p.pending = nil
		}
		p.lock.Unlock()
		return false
	}
	return true
}

// HandleMessage matches a numeric echo against the outstanding probe.
// Non numeric messages are ignored and reported as not handled. An echo that
// does not carry the outstanding probe's timestamp is reported as unknown and
// the probe stays pending.
func (p *Prober) HandleMessage(msg string) bool {
	echoed, err := strconv.ParseInt(strings.TrimSpace(msg), 10, 64)
	if err != nil {
		return false
	}

	p.lock.Lock()
	now := p.nowMilli()
	probe := p.pending
	if probe != nil && probe.sentAt == echoed {
		p.pending = nil
	}
	p.lock.Unlock()

	if probe == nil {
		log.Debug().Str("msg", msg).Msg("echo without outstanding probe")
		p.report(models.Latency{})
		return true
	}
	if probe.sentAt != echoed {
		log.Debug().Int64("echoed", echoed).Int64("sent_at", probe.sentAt).Msg("echo does not match outstanding probe")
		p.report(models.Latency{})
		return true
	}

	p.report(models.Latency{Millis: now - probe.sentAt, Known: true})
	return true
}

// Pending reports whether a probe is outstanding.
func (p *Prober) Pending() bool {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.pending != nil
}

func (p *Prober) report(latency models.Latency) {
	if p.reporter != nil {
		p.reporter.LatencyMeasured(latency)
	}
}

func (p *Prober) Start(ctx context.Context) error {
	log.Info().Dur("interval", p.cfg.Interval).Msg("starting latency prober")
	probeTicker := time.NewTicker(p.cfg.Interval)
	defer probeTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("stopping latency prober: %s", ctx.Err().Error())
			return ctx.Err()
		case <-probeTicker.C:
			p.Tick()
		}
	}
}
