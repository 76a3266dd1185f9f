package linkstats

import (
	"context"
	"fmt"
	"time"

	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/models"
	"github.com/prometheus/procfs"
	"github.com/rs/zerolog/log"
)

type Updater interface {
	LinkStatsUpdated(models.LinkStats)
}

// Reporter samples the interface counters the link rides on.
type Reporter struct {
	cfg     config.LinkStatsConfig
	updater Updater
	netDev  func() (procfs.NetDev, error)
	now     func() time.Time
}

func NewReporter(cfg config.LinkStatsConfig, updater Updater) *Reporter {
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultStatsInterval
	}
	return &Reporter{
		cfg:     cfg,
		updater: updater,
		netDev:  selfNetDev,
		now:     time.Now,
	}
}

func selfNetDev() (procfs.NetDev, error) {
	p, err := procfs.Self()
	if err != nil {
		return nil, fmt.Errorf("procfs could not get process - %w", err)
	}
	return p.NetDev()
}

// Sample reads the configured interface once.
func (r *Reporter) Sample() (models.LinkStats, error) {
	netDev, err := r.netDev()
	if err != nil {
		return models.LinkStats{}, fmt.Errorf("failed getting netstat - %w", err)
	}

	line, ok := netDev[r.cfg.Interface]
	if !ok {
		return models.LinkStats{}, fmt.Errorf("interface %s not found", r.cfg.Interface)
	}

	return models.LinkStats{
		Interface: line.Name,
		RxPackets: line.RxPackets,
		RxErrors:  line.RxErrors,
		RxDropped: line.RxDropped,
		TxPackets: line.TxPackets,
		TxErrors:  line.TxErrors,
		TxDropped: line.TxDropped,
		SampledAt: r.now(),
	}, nil
}

// Start reports on every interval. A missing interface is logged once and
// sampling continues, it may come up later.
func (r *Reporter) Start(ctx context.Context) error {
	log.Info().Str("iface", r.cfg.Interface).Dur("interval", r.cfg.Interval).Msg("starting link stats")
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	warned := false
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("stopping link stats: %s", ctx.Err().Error())
			return ctx.Err()
		case <-ticker.C:
			stats, err := r.Sample()
			if err != nil {
				if !warned {
					log.Warn().Err(err).Msg("link stats unavailable")
					warned = true
				}
				continue
			}
			warned = false
			r.updater.LinkStatsUpdated(stats)
		}
	}
}
