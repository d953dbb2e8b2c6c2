// internal/snapshot/source.go
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/fault"
	"github.com/tamzrod/meterhub/internal/live"
	"github.com/tamzrod/meterhub/internal/metrics"
)

const DefaultTimeout = time.Second

// Transform reshapes a decoded body before it is published.
type Transform func(body any) (any, error)

// Config is the runtime config of one JSON source.
type Config struct {
	Name      string
	URL       string
	Post      any // non-nil sends POST with this JSON body
	Timeout   time.Duration
	Lifetime  time.Duration
	Transform Transform
	Client    *http.Client
	Log       *logrus.Entry
	OnExpire  func(name string)
}

// Source polls a JSON endpoint and keeps the last good document.
type Source struct {
	name      string
	url       string
	post      []byte
	transform Transform
	client    *http.Client
	log       *logrus.Entry
	now       func() time.Time

	cell *live.Cell[any]
}

// New validates cfg and creates an absent source.
func New(cfg Config) (*Source, error) {
	if cfg.Name == "" {
		return nil, errors.New("snapshot: name required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("snapshot %s: url required", cfg.Name)
	}

	var post []byte
	if cfg.Post != nil {
		b, err := json.Marshal(cfg.Post)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s: post body: %w", cfg.Name, err)
		}
		post = b
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	// the timeout is per source, not per shared client
	c := *client
	c.Timeout = timeout

	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("device", cfg.Name)

	return &Source{
		name:      cfg.Name,
		url:       cfg.URL,
		post:      post,
		transform: cfg.Transform,
		client:    &c,
		log:       log,
		now:       time.Now,
		cell: live.New[any](live.Options{
			Name:     cfg.Name,
			Lifetime: cfg.Lifetime,
			Log:      log,
			OnExpire: cfg.OnExpire,
		}),
	}, nil
}

// Name returns the source name.
func (s *Source) Name() string { return s.name }

// Cell exposes the liveness cell.
func (s *Source) Cell() *live.Cell[any] { return s.cell }

// Read performs one request. On success the whole document replaces the
// previous one; on any failure the previous one is left to its lifetime.
func (s *Source) Read() error {
	t0 := s.now()
	doc, err := s.fetch(context.Background())
	elapsed := s.now().Sub(t0)

	metrics.ObserveRead(s.name, err == nil)
	if err != nil {
		s.log.WithField("elapsed", elapsed).WithError(err).Debug("read failed")
		s.cell.Miss(s.now())
		return err
	}

	s.cell.Update(doc, t0)
	s.log.WithFields(logrus.Fields{"elapsed": elapsed, "data": doc}).Debug("read done")
	return nil
}

// Get resolves path against the visible document.
func (s *Source) Get(now time.Time, def any, path ...any) any {
	return s.cell.Get(now, def, path...)
}

// Info describes the cell at now.
func (s *Source) Info(now time.Time) live.Info { return s.cell.Info(now) }

func (s *Source) fetch(ctx context.Context) (any, error) {
	var (
		req *http.Request
		err error
	)
	if s.post != nil {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(s.post))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("snapshot: %w: %w", fault.ErrTimeout, err)
		}
		return nil, fault.Transport("snapshot", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, &fault.StatusError{StatusCode: resp.StatusCode, URL: s.url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fault.Transport("snapshot body", err)
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("snapshot: json: %w: %w", fault.ErrDecode, err)
	}

	if s.transform != nil {
		doc, err = s.transform(doc)
		if err != nil {
			return nil, fmt.Errorf("snapshot: transform: %w: %w", fault.ErrDecode, err)
		}
	}
	return doc, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
