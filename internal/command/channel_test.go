// internal/command/channel_test.go
package command

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/meterhub/internal/fault"
)

func TestSend_Ack(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.URL.Path + "?" + r.URL.RawQuery)
		_, _ = io.WriteString(w, `{"amp":true}`)
	}))
	defer srv.Close()

	ch, err := New(Config{Target: "goe", BaseURL: srv.URL, Path: "/api/set"})
	require.NoError(t, err)

	require.NoError(t, ch.Send(context.Background(), "amp=8&frc=0"))
	assert.Equal(t, "/api/set?amp=8&frc=0", got.Load())
}

func TestSend_Failures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		is      error
	}{
		{
			name:    "non 200",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			is:      fault.ErrProtocolStatus,
		},
		{
			name:    "unparseable ack",
			handler: func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "OK") },
			is:      fault.ErrDecode,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tc.handler(w, r)
			}))
			defer srv.Close()

			ch, err := New(Config{Target: "goe", BaseURL: srv.URL, Path: "/api/set"})
			require.NoError(t, err)

			err = ch.Send(context.Background(), "amp=8")
			assert.ErrorIs(t, err, tc.is)
			assert.Equal(t, int32(1), calls.Load(), "no internal retry")
		})
	}
}

func TestSend_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	ch, err := New(Config{Target: "goe", BaseURL: url, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	assert.ErrorIs(t, ch.Send(context.Background(), "amp=6"), fault.ErrTransport)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{BaseURL: "http://x"})
	assert.Error(t, err)
	_, err = New(Config{Target: "goe"})
	assert.Error(t, err)
}
