package harness

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestServerLifecycleServesAndStops(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
	lc := NewServerLifecycle("test", handler, zaptest.NewLogger(t))

	require.False(t, lc.Bound())
	require.NoError(t, lc.Start(context.Background()))
	require.True(t, lc.Bound())

	base := lc.BaseURL()
	require.True(t, strings.HasPrefix(base, "http://127.0.0.1:"), base)

	resp, err := http.Get(base + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	require.NoError(t, lc.Stop())

	client := &http.Client{Timeout: 500 * time.Millisecond}
	_, err = client.Get(base + "/")
	assert.Error(t, err)
}

func TestServerLifecycleStopIdempotent(t *testing.T) {
	lc := NewServerLifecycle("test", http.NotFoundHandler(), zaptest.NewLogger(t))
	require.NoError(t, lc.Start(context.Background()))
	require.NoError(t, lc.Stop())
	require.NoError(t, lc.Stop())
}

func TestServerLifecycleStopBeforeStart(t *testing.T) {
	lc := NewServerLifecycle("test", http.NotFoundHandler(), zaptest.NewLogger(t))
	require.NoError(t, lc.Stop())
}

func TestServerLifecycleBaseURLPanicsUnbound(t *testing.T) {
	lc := NewServerLifecycle("test", http.NotFoundHandler(), zaptest.NewLogger(t))
	assert.Panics(t, func() { _ = lc.BaseURL() })
}
