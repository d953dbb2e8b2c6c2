// internal/device/fronius/symo.go
package fronius

import (
	"fmt"
	"sort"
	"time"

	"github.com/tamzrod/meterhub/internal/live"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultLifetime = 10 * time.Second

	// DefaultInterval is the pause between two requests; the inverter
	// takes 1.5s to 4s to answer.
	DefaultInterval = 500 * time.Millisecond
)

// URL is the system realtime endpoint of the inverter at host.
func URL(host string) string {
	return fmt.Sprintf("http://%s/solar_api/v1/GetInverterRealtimeData.cgi?Scope=System&DataCollection=CommonInverterData", host)
}

// lists maps output keys to the Body.Data entries they come from.
var lists = []struct{ key, source string }{
	{"p", "PAC"},
	{"e_total", "TOTAL_ENERGY"},
	{"e_day", "DAY_ENERGY"},
}

// Transform turns the realtime reply into per-inverter lists ordered by
// inverter id: {"p": [...], "e_total": [...], "e_day": [...]}.
func Transform(body any) (any, error) {
	out := make(map[string]any, len(lists))
	for _, l := range lists {
		raw, ok := live.Lookup(body, "Body", "Data", l.source, "Values")
		if !ok {
			return nil, fmt.Errorf("fronius: missing Body.Data.%s.Values", l.source)
		}
		values, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("fronius: Body.Data.%s.Values is %T", l.source, raw)
		}

		ids := make([]string, 0, len(values))
		for id := range values {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		list := make([]any, 0, len(ids))
		for _, id := range ids {
			list = append(list, values[id])
		}
		out[l.key] = list
	}
	return out, nil
}
