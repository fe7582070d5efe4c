package sweeper

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/nurpe/foundry-rfq/internal/service"
)

// HoldSweeper periodically clears expired priority holds. Pure hygiene:
// every conditional write already treats an expired hold as absent, the
// sweeper just keeps dashboards and ad-hoc queries honest.
type HoldSweeper struct {
	rfqs     service.RFQStore
	interval time.Duration
	log      zerolog.Logger
}

func New(rfqs service.RFQStore, interval time.Duration, log zerolog.Logger) *HoldSweeper {
	return &HoldSweeper{rfqs: rfqs, interval: interval, log: log}
}

// Start runs the sweep loop until context cancellation.
func (s *HoldSweeper) Start(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("hold sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cleared, err := s.rfqs.ClearExpiredHolds(ctx, time.Now().UTC())
			if err != nil {
				s.log.Warn().Err(err).Msg("hold sweep failed")
				continue
			}
			if cleared > 0 {
				s.log.Info().Int64("cleared", cleared).Msg("expired holds cleared")
			}
		case <-ctx.Done():
			s.log.Info().Msg("hold sweeper stopped")
			return
		}
	}
}
