// internal/trace/ring.go
package trace

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

const DefaultSize = 600

// Record is one orchestrator cycle.
type Record = map[string]any

// Ring keeps the last Size records. Size 0 disables recording.
type Ring struct {
	mu   sync.Mutex
	size int
	data []Record
}

func New(size int) *Ring {
	if size < 0 {
		size = 0
	}
	return &Ring{size: size}
}

// Push appends r and drops the oldest records beyond Size.
// Nil records are ignored.
func (t *Ring) Push(r Record) {
	if r == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.size == 0 {
		return
	}
	t.data = append(t.data, r)
	t.trim()
}

// SetSize changes the capacity. Negative sizes are ignored.
// The current size is returned either way.
func (t *Ring) SetSize(n int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n >= 0 {
		t.size = n
		t.trim()
	}
	return t.size
}

// Size returns the capacity.
func (t *Ring) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.size
}

func (t *Ring) trim() {
	if over := len(t.data) - t.size; over > 0 {
		// copy so the dropped head can be collected
		t.data = append([]Record(nil), t.data[over:]...)
	}
}

// Records returns the stored records, oldest first.
func (t *Ring) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Record(nil), t.data...)
}

// JSON encodes the stored records as an array.
func (t *Ring) JSON() ([]byte, error) {
	recs := t.Records()
	if recs == nil {
		recs = []Record{}
	}
	return json.Marshal(recs)
}

// CSV renders the stored records with ';' separators. Columns are taken
// from the first record: time and timestamp first, then sorted keys.
// columns overrides that order when given.
func (t *Ring) CSV(columns ...string) string {
	recs := t.Records()
	if len(recs) == 0 {
		return ""
	}
	if len(columns) == 0 {
		columns = Columns(recs[0])
	}

	var b strings.Builder
	b.WriteString(strings.Join(columns, ";"))
	b.WriteByte('\n')
	for _, r := range recs {
		for i, c := range columns {
			if i > 0 {
				b.WriteByte(';')
			}
			b.WriteString(FormatValue(r[c]))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// Columns returns the keys of r with time and timestamp moved to the front.
func Columns(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if k != "time" && k != "timestamp" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var head []string
	for _, k := range []string{"time", "timestamp"} {
		if _, ok := r[k]; ok {
			head = append(head, k)
		}
	}
	return append(head, keys...)
}
