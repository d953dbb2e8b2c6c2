// internal/poller/builder.go
package poller

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	cfg "github.com/tamzrod/meterhub/internal/config"
	"github.com/tamzrod/meterhub/internal/device/fronius"
	"github.com/tamzrod/meterhub/internal/device/goe"
	"github.com/tamzrod/meterhub/internal/metrics"
	"github.com/tamzrod/meterhub/internal/register"
	"github.com/tamzrod/meterhub/internal/snapshot"
	"github.com/tamzrod/meterhub/internal/sml"
)

const defaultSMLReadTimeout = 100 * time.Millisecond

// Set is everything Build constructed.
type Set struct {
	// Sources by id, and ids in config order.
	Sources map[string]Source
	Order   []string

	Pollers []*Poller

	closers []func() error
}

// Close releases every port the set owns.
func (s *Set) Close() error {
	var last error
	for _, fn := range s.closers {
		if err := fn(); err != nil {
			last = err
		}
	}
	return last
}

// Build constructs one driver per source and groups them into pollers.
// Register meters that share a bus and an interval share one poller, so
// they are read in turn instead of contending for the bus lock. Every
// other source gets its own poller.
// Assumes config has already passed Validate and Normalize.
func Build(c *cfg.Config, log *logrus.Entry) (*Set, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	buses := make(map[string]*register.Bus, len(c.Buses))
	for _, b := range c.Buses {
		buses[b.ID] = buildBus(b)
	}

	set := &Set{Sources: make(map[string]Source, len(c.Sources))}

	type groupKey struct {
		bus      string
		interval time.Duration
	}
	groups := make(map[groupKey]*[]Reader)
	var groupOrder []groupKey

	onExpire := func(name string) {
		metrics.Expiries.WithLabelValues(name).Inc()
	}

	for _, sc := range c.Sources {
		src, closer, err := buildSource(sc, buses, log, onExpire)
		if err != nil {
			_ = set.Close()
			return nil, err
		}
		if closer != nil {
			set.closers = append(set.closers, closer)
		}
		set.Sources[sc.ID] = src
		set.Order = append(set.Order, sc.ID)

		interval := ms(sc.IntervalMs)

		if sc.Kind == cfg.KindRegister {
			k := groupKey{bus: sc.Register.Bus, interval: interval}
			g, ok := groups[k]
			if !ok {
				g = &[]Reader{}
				groups[k] = g
				groupOrder = append(groupOrder, k)
			}
			*g = append(*g, src)
			continue
		}

		p, err := New(Config{Name: sc.ID, Interval: interval}, src)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("poller build failed (source=%s): %w", sc.ID, err)
		}
		set.Pollers = append(set.Pollers, p)
	}

	for _, k := range groupOrder {
		name := fmt.Sprintf("bus:%s@%s", k.bus, k.interval)
		p, err := New(Config{Name: name, Interval: k.interval}, *groups[k]...)
		if err != nil {
			_ = set.Close()
			return nil, fmt.Errorf("poller build failed (%s): %w", name, err)
		}
		set.Pollers = append(set.Pollers, p)
	}

	return set, nil
}

func buildBus(b cfg.BusConfig) *register.Bus {
	timeout := ms(b.TimeoutMs)
	if timeout <= 0 {
		timeout = register.DefaultTimeout
	}
	if b.Type == "tcp" {
		return register.NewBus(b.ID, register.TCPDialer(b.Address, timeout))
	}
	return register.NewBus(b.ID, register.RTUDialer(register.SerialConfig{
		Address:  b.Address,
		BaudRate: b.BaudRate,
		Timeout:  timeout,
	}))
}

func buildSource(
	sc cfg.SourceConfig,
	buses map[string]*register.Bus,
	log *logrus.Entry,
	onExpire func(string),
) (Source, func() error, error) {
	lifetime := ms(sc.LifetimeMs)

	switch sc.Kind {
	case cfg.KindSML:
		readTimeout := ms(sc.SML.ReadTimeoutMs)
		if readTimeout <= 0 {
			readTimeout = defaultSMLReadTimeout
		}
		m, err := sml.NewMeter(sml.Config{
			Name:     sc.ID,
			Open:     sml.SerialOpener(sc.SML.Port, readTimeout),
			Lifetime: lifetime,
			Log:      log,
			OnExpire: onExpire,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, m.Close, nil

	case cfg.KindRegister:
		m, err := register.NewMeter(register.Config{
			Name:     sc.ID,
			Model:    sc.Register.Model,
			Slave:    sc.Register.Slave,
			Bus:      buses[sc.Register.Bus],
			Fields:   sc.Register.Fields,
			Timeout:  ms(sc.Register.TimeoutMs),
			Lifetime: lifetime,
			Log:      log,
			OnExpire: onExpire,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, nil, nil

	case cfg.KindJSON:
		var post any
		if sc.JSON.Post != nil {
			post = sc.JSON.Post
		}
		return newSnapshot(snapshot.Config{
			Name:     sc.ID,
			URL:      sc.JSON.URL,
			Post:     post,
			Timeout:  ms(sc.JSON.TimeoutMs),
			Lifetime: lifetime,
			Log:      log,
			OnExpire: onExpire,
		})

	case cfg.KindFronius:
		return newSnapshot(snapshot.Config{
			Name:      sc.ID,
			URL:       fronius.URL(sc.Host),
			Timeout:   orDefault(ms(sc.TimeoutMs), fronius.DefaultTimeout),
			Lifetime:  orDefault(lifetime, fronius.DefaultLifetime),
			Transform: fronius.Transform,
			Log:       log,
			OnExpire:  onExpire,
		})

	case cfg.KindGoe:
		return newSnapshot(snapshot.Config{
			Name:      sc.ID,
			URL:       goe.StatusURL(sc.Host),
			Timeout:   orDefault(ms(sc.TimeoutMs), goe.DefaultTimeout),
			Lifetime:  orDefault(lifetime, goe.DefaultLifetime),
			Transform: goe.Transform,
			Log:       log,
			OnExpire:  onExpire,
		})
	}
	return nil, nil, fmt.Errorf("poller: source %q: unsupported kind %q", sc.ID, sc.Kind)
}

func newSnapshot(c snapshot.Config) (Source, func() error, error) {
	c.Client = http.DefaultClient
	s, err := snapshot.New(c)
	if err != nil {
		return nil, nil, err
	}
	return s, nil, nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
