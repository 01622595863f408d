package mailbox

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper is anything the reaper can sweep.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Reaper periodically sweeps expired and empty rooms.
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration
	now      func() time.Time
}

func NewReaper(s Sweeper, interval time.Duration) *Reaper {
	return &Reaper{
		sweeper:  s,
		interval: interval,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (rp *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(rp.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rp.sweeper.Sweep(rp.now()); n > 0 {
				slog.Info("swept rooms", "evicted", n)
			}
		}
	}
}
