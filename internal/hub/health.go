// internal/hub/health.go
package hub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/poller"
	"github.com/tamzrod/meterhub/internal/status"
)

// TrackHealth feeds poll results into tr and ticks its seconds counters
// at 1 Hz until ctx is cancelled.
func TrackHealth(ctx context.Context, tr *status.Tracker, in <-chan poller.PollResult, log *logrus.Entry) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	secTicker := time.NewTicker(time.Second)
	defer secTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-in:
			for _, r := range res.Results {
				at := r.At
				if at.IsZero() {
					at = res.At
				}
				tr.Observe(r.Source, r.Err, at)
				if r.Err != nil {
					log.WithFields(logrus.Fields{
						"poller":  res.Poller,
						"device":  r.Source,
						"elapsed": r.Elapsed,
					}).WithError(r.Err).Debug("read failed")
				}
			}

		case <-secTicker.C:
			tr.Tick()
		}
	}
}
