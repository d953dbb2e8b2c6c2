// internal/command/channel.go
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/fault"
)

const DefaultTimeout = time.Second

// Config is the runtime config of one command target.
type Config struct {
	Target  string
	BaseURL string // scheme://host[:port]
	Path    string // appended to BaseURL, e.g. /api/set
	Timeout time.Duration
	Client  *http.Client
	Log     *logrus.Entry
}

// Channel sends fire-once commands to one device. It never retries.
type Channel struct {
	target string
	base   string
	client *http.Client
	log    *logrus.Entry
}

// New validates cfg.
func New(cfg Config) (*Channel, error) {
	if cfg.Target == "" {
		return nil, errors.New("command: target required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("command %s: base url required", cfg.Target)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	c := *client
	c.Timeout = timeout

	log := cfg.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Channel{
		target: cfg.Target,
		base:   cfg.BaseURL + cfg.Path,
		client: &c,
		log:    log.WithField("target", cfg.Target),
	}, nil
}

// Target returns the target name.
func (c *Channel) Target() string { return c.target }

// Send issues one GET <base>?<query>. Success needs 200 and a JSON body.
func (c *Channel) Send(ctx context.Context, query string) error {
	url := c.base
	if query != "" {
		url += "?" + query
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("command %s: %w", c.target, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fault.Transport("command "+c.target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("command %s: %w", c.target, &fault.StatusError{StatusCode: resp.StatusCode, URL: url})
	}

	var ack any
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return fmt.Errorf("command %s: ack: %w: %w", c.target, fault.ErrDecode, err)
	}

	c.log.WithFields(logrus.Fields{"query": query, "ack": ack}).Debug("command acknowledged")
	return nil
}
