package supervisor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whonion/scavenger-miner/logging"
	"github.com/whonion/scavenger-miner/worker"
)

// summaryReader aggregates the per-slot snapshot files workers publish. It
// only reads; the snapshots stay owned by the workers.
type summaryReader struct {
	dir string
}

func (s *Supervisor) summaryLoop(ctx context.Context) {
	ticker := s.clk.Ticker(summaryPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logSummary(ctx)
		}
	}
}

func (s *Supervisor) logSummary(ctx context.Context) {
	logger := logging.FromContext(ctx)

	var (
		live      int
		hashRate  float64
		attempts  int64
		addresses []string
	)
	for _, sl := range s.slots {
		if sl.proc == nil {
			continue
		}
		live++
		addresses = append(addresses, sl.address)

		st, err := worker.ReadStatus(worker.StatusFilePath(s.summary.dir, sl.index))
		if err != nil {
			continue
		}
		// Ignore snapshots that predate the current worker generation.
		if updated, err := time.Parse(time.RFC3339, st.UpdatedAt); err == nil && time.Since(updated) < 2*summaryPeriod {
			hashRate += st.HashRate
			attempts += st.Attempts
		}
	}

	completions := 0
	if n, err := s.ledger.CountCompletions(addresses); err == nil {
		completions = n
	}

	logger.Info("pool summary",
		zap.Int("live_workers", live),
		zap.Int("slots", len(s.slots)),
		zap.Float64("hash_rate", hashRate),
		zap.Int64("attempts", attempts),
		zap.Int("completions", completions),
	)
}
