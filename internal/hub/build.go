// internal/hub/build.go
package hub

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tamzrod/meterhub/internal/command"
	cfg "github.com/tamzrod/meterhub/internal/config"
	"github.com/tamzrod/meterhub/internal/device/goe"
	"github.com/tamzrod/meterhub/internal/poller"
)

// OutputsFromConfig converts configured outputs.
func OutputsFromConfig(c *cfg.Config) []Output {
	out := make([]Output, 0, len(c.Outputs))
	for _, o := range c.Outputs {
		ho := Output{
			Key:     o.Key,
			Source:  o.Source,
			Path:    o.Path,
			Default: o.Default,
		}
		for _, t := range o.Terms {
			ho.Terms = append(ho.Terms, Term{Source: t.Source, Path: t.Path, Sign: t.Sign})
		}
		out = append(out, ho)
	}
	return out
}

// PublishFromConfig converts configured publish keys.
func PublishFromConfig(c *cfg.Config) []PublishKey {
	out := make([]PublishKey, 0, len(c.Publish))
	for _, p := range c.Publish {
		out = append(out, PublishKey{Key: p.Key, Timeout: time.Duration(p.TimeoutMs) * time.Millisecond})
	}
	return out
}

// Getters exposes the sources of set as Getters.
func Getters(set *poller.Set) map[string]Getter {
	out := make(map[string]Getter, len(set.Sources))
	for id, s := range set.Sources {
		out[id] = s
	}
	return out
}

// CommandsFromConfig builds one channel per allowed target. A target
// without base_url names a goe source and uses the wallbox API.
func CommandsFromConfig(c *cfg.Config, log *logrus.Entry) (map[string]Sender, error) {
	hosts := make(map[string]string)
	for _, s := range c.Sources {
		if s.Kind == cfg.KindGoe {
			hosts[s.ID] = s.Host
		}
	}

	out := make(map[string]Sender, len(c.Commands))
	for _, cc := range c.Commands {
		base, path := cc.BaseURL, cc.Path
		if base == "" {
			base = goe.CommandBase(hosts[cc.Target])
			if path == "" {
				path = goe.CommandPath
			}
		}
		ch, err := command.New(command.Config{
			Target:  cc.Target,
			BaseURL: base,
			Path:    path,
			Timeout: time.Duration(cc.TimeoutMs) * time.Millisecond,
			Log:     log,
		})
		if err != nil {
			return nil, err
		}
		out[cc.Target] = ch
	}
	return out, nil
}
