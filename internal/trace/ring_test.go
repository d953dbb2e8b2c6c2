// internal/trace/ring_test.go
package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(ts int64, p any) Record {
	return Record{"time": "2022-09-25 00:05:57", "timestamp": ts, "grid_p": p, "bat_p": int64(-12)}
}

func TestRing_PushBounded(t *testing.T) {
	r := New(2)
	r.Push(rec(1, int64(1)))
	r.Push(rec(2, int64(2)))
	r.Push(rec(3, int64(3)))
	r.Push(nil)

	got := r.Records()
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0]["timestamp"])
	assert.Equal(t, int64(3), got[1]["timestamp"])
}

func TestRing_ZeroSizeDisables(t *testing.T) {
	r := New(0)
	r.Push(rec(1, int64(1)))
	assert.Empty(t, r.Records())
	assert.Equal(t, "", r.CSV())
}

func TestRing_SetSize(t *testing.T) {
	r := New(5)
	for i := int64(0); i < 5; i++ {
		r.Push(rec(i, i))
	}
	assert.Equal(t, 5, r.SetSize(-1), "negative ignored")
	assert.Equal(t, 2, r.SetSize(2))
	assert.Len(t, r.Records(), 2)
	assert.Equal(t, int64(3), r.Records()[0]["timestamp"])
}

func TestRing_CSV(t *testing.T) {
	r := New(10)
	r.Push(rec(1664049957, int64(304)))
	r.Push(rec(1664049958, nil))

	want := "time;timestamp;bat_p;grid_p\n" +
		"2022-09-25 00:05:57;1664049957;-12;304\n" +
		"2022-09-25 00:05:57;1664049958;-12;\n"
	assert.Equal(t, want, r.CSV())

	assert.Equal(t, "grid_p\n304\n\n", r.CSV("grid_p"))
}

func TestRing_JSON(t *testing.T) {
	r := New(10)
	b, err := r.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(b))

	r.Push(Record{"a": 1.5, "b": true})
	b, err = r.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":1.5,"b":true}]`, string(b))
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"complete", "complete"},
		{true, "true"},
		{7, "7"},
		{int64(-3), "-3"},
		{0.862, "0.862"},
		{float64(46), "46"},
		{[]any{1.0, 2.0}, "[1,2]"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, FormatValue(c.in), "%#v", c.in)
	}
}
