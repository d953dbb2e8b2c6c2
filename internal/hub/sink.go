// internal/hub/sink.go
package hub

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/metrics"
)

// sinkWorker delivers records to one sink off the cycle path.
// Its queue holds one record; an undelivered record is replaced by the
// newer one, so a slow sink sees the latest record and skips the rest.
type sinkWorker struct {
	sink  Sink
	queue chan Record
	log   *logrus.Entry
}

func newSinkWorker(s Sink, log *logrus.Entry) *sinkWorker {
	return &sinkWorker{
		sink:  s,
		queue: make(chan Record, 1),
		log:   log.WithField("sink", s.Name()),
	}
}

// offer never blocks. Only the cycle goroutine calls it.
func (w *sinkWorker) offer(rec Record) {
	for {
		select {
		case w.queue <- rec:
			return
		default:
		}

		select {
		case <-w.queue:
			w.log.Debug("record superseded")
		default:
		}
	}
}

func (w *sinkWorker) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-w.queue:
			if err := w.sink.Deliver(rec); err != nil {
				metrics.SinkErrors.WithLabelValues(w.sink.Name()).Inc()
				w.log.WithError(err).Warn("deliver failed")
			}
		}
	}
}
