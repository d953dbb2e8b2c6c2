// internal/writer/builder.go
package writer

import (
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	cfg "github.com/tamzrod/meterhub/internal/config"
	wmodbus "github.com/tamzrod/meterhub/internal/writer/modbus"
)

// BuildPlan converts the mirror config into a write plan.
// Assumes config has already passed conflict validation.
func BuildPlan(c *cfg.Config) (Plan, error) {
	m := c.Mirror
	if m == nil {
		return Plan{}, errors.New("writer: mirror not configured")
	}

	plan := Plan{Endpoint: m.Endpoint, UnitID: m.UnitID}

	for key, addr := range m.Registers {
		plan.Registers = append(plan.Registers, KeyRegister{Key: key, Address: uint16(addr)})
	}
	sort.Slice(plan.Registers, func(i, j int) bool {
		return plan.Registers[i].Address < plan.Registers[j].Address
	})

	for _, s := range c.Sources {
		if s.StatusSlot == nil || m.StatusUnitID == nil {
			continue
		}
		plan.Status = append(plan.Status, StatusPlan{
			Source:     s.ID,
			UnitID:     *m.StatusUnitID,
			BaseSlot:   *s.StatusSlot,
			DeviceName: s.DeviceName,
		})
	}

	return plan, nil
}

// BuildMirror creates the mirror sink and its endpoint client.
func BuildMirror(c *cfg.Config, tracker StatusSource, log *logrus.Entry) (*Mirror, func() error, error) {
	plan, err := BuildPlan(c)
	if err != nil {
		return nil, nil, err
	}

	cli, err := wmodbus.NewEndpointClient(wmodbus.Config{
		Endpoint: plan.Endpoint,
		Timeout:  time.Duration(c.Mirror.TimeoutMs) * time.Millisecond,
		Log:      log,
	})
	if err != nil {
		return nil, nil, err
	}

	return New(plan, cli, tracker), cli.Close, nil
}
