// internal/hub/inbox.go
package hub

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/metrics"
)

// ---- publish ----

// Publish stores every configured key found in values with its timeout.
// Unknown keys are ignored. The accepted keys are returned.
func (h *Hub) Publish(values map[string]any) []string {
	now := h.now()

	h.mu.Lock()
	defer h.mu.Unlock()

	var accepted []string
	for _, pk := range h.cfg.Publish {
		v, ok := values[pk.Key]
		if !ok {
			continue
		}
		h.published[pk.Key] = published{value: v, expires: now.Add(pk.Timeout)}
		accepted = append(accepted, pk.Key)
		h.log.WithFields(logrus.Fields{"key": pk.Key, "value": v}).Debug("publish")
	}
	return accepted
}

// applyPublished copies live published values into rec; expired ones
// are dropped and reported once.
func (h *Hub) applyPublished(rec Record, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, pk := range h.cfg.Publish {
		p, ok := h.published[pk.Key]
		if ok && now.After(p.expires) {
			delete(h.published, pk.Key)
			h.log.WithField("key", pk.Key).Info("publish timeout")
			ok = false
		}
		if ok {
			rec[pk.Key] = p.value
		} else {
			rec[pk.Key] = nil
		}
	}
}

// ---- commands ----

// Command stores query in the slot of target. The latest query wins.
// It reports whether target is allowed.
func (h *Hub) Command(target, query string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.pending[target]; !ok {
		h.log.WithField("target", target).Debug("command target not allowed")
		return false
	}
	h.pending[target] = query
	h.log.WithFields(logrus.Fields{"target": target, "query": query}).Debug("command queued")
	return true
}

// dispatchCommands sends every pending command, retries a failure once
// and clears the slot regardless of the outcome.
func (h *Hub) dispatchCommands(ctx context.Context) {
	h.mu.Lock()
	var due map[string]string
	for target, q := range h.pending {
		if q == "" {
			continue
		}
		if due == nil {
			due = make(map[string]string)
		}
		due[target] = q
		h.pending[target] = ""
	}
	h.mu.Unlock()

	for target, q := range due {
		log := h.log.WithFields(logrus.Fields{"target": target, "query": q})
		log.Info("command")

		s := h.cfg.Commands[target]
		err := s.Send(ctx, q)
		if err != nil {
			log.WithError(err).Info("retry command")
			err = s.Send(ctx, q)
		}

		result := metrics.ResultOK
		if err != nil {
			result = metrics.ResultFail
			log.WithError(err).Warn("command failed")
		}
		metrics.Commands.WithLabelValues(target, result).Inc()
	}
}
