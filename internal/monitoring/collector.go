// Package monitoring watches the file ledger for failing or stuck attempts
// and posts alerts to a webhook.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/wheelerbb/gcp-invoice-intel/internal/ledger"
	"github.com/wheelerbb/gcp-invoice-intel/internal/model"
)

// scanLimit caps how many attempts are read per mode for one snapshot.
const scanLimit = 10000

// ModeSnapshot counts attempts for one processing mode.
type ModeSnapshot struct {
	Total          int     `json:"total"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
	Pending        int     `json:"pending"`
	StalePending   int     `json:"stale_pending"`
	RefinementUsed int     `json:"refinement_used"`
	FailRate       float64 `json:"fail_rate"`
}

// Finished is the number of attempts that reached a terminal state.
func (m ModeSnapshot) Finished() int { return m.Succeeded + m.Failed }

// Snapshot holds a point-in-time view of ledger health.
type Snapshot struct {
	Modes map[model.Mode]ModeSnapshot `json:"modes"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers attempt counts from the ledger.
type Collector struct {
	ledger     ledger.Ledger
	staleAfter time.Duration
	now        func() time.Time
}

// NewCollector creates a collector. Pending attempts older than staleAfter
// are counted as stale; zero disables that count.
func NewCollector(l ledger.Ledger, staleAfter time.Duration) *Collector {
	return &Collector{ledger: l, staleAfter: staleAfter, now: time.Now}
}

// Collect gathers a snapshot of attempts started within the lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := c.now().UTC()
	snap := &Snapshot{
		Modes:         make(map[model.Mode]ModeSnapshot, 2),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	for _, mode := range []model.Mode{model.ModeProduction, model.ModeAdhoc} {
		recs, err := c.ledger.List(ctx, mode, ledger.Filter{Limit: scanLimit})
		if err != nil {
			return nil, eris.Wrapf(err, "monitoring: list %s attempts", mode)
		}

		var ms ModeSnapshot
		for _, r := range recs {
			// Newest first, so the first one outside the window ends the scan.
			if lookbackHours > 0 && r.StartedAt.Before(cutoff) {
				break
			}
			ms.Total++
			switch r.Status {
			case model.FileStatusSucceeded:
				ms.Succeeded++
				if r.RefinementUsed {
					ms.RefinementUsed++
				}
			case model.FileStatusFailed:
				ms.Failed++
			case model.FileStatusPending:
				ms.Pending++
				if c.staleAfter > 0 && now.Sub(r.StartedAt) > c.staleAfter {
					ms.StalePending++
				}
			}
		}
		if f := ms.Finished(); f > 0 {
			ms.FailRate = float64(ms.Failed) / float64(f)
		}
		snap.Modes[mode] = ms
	}

	return snap, nil
}
