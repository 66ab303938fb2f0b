package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func probe(t *testing.T, endpoint http.HandlerFunc) (int, statusResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	endpoint(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestReadyEndpoint_NotReadyUntilMarked(t *testing.T) {
	h := New()

	code, resp := probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)

	h.SetReady(true)
	code, resp = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", resp.Status)

	h.SetReady(false)
	code, _ = probe(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCheck_FailureThreshold(t *testing.T) {
	c := newCheck("flaky", time.Second, func(_ context.Context) error {
		return errors.New("down")
	})

	ctx := context.Background()
	c.run(ctx)
	c.run(ctx)
	assert.True(t, c.healthy.Load(), "stays healthy below the threshold")

	c.run(ctx)
	assert.False(t, c.healthy.Load(), "third consecutive failure flips it")
}

func TestCheck_RecoversAfterOneSuccess(t *testing.T) {
	healthy := false
	c := newCheck("db", time.Second, func(_ context.Context) error {
		if healthy {
			return nil
		}
		return errors.New("down")
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c.run(ctx)
	}
	require.False(t, c.healthy.Load())

	healthy = true
	c.run(ctx)
	assert.True(t, c.healthy.Load())
}

func TestLiveEndpoint_ReportsFailingCheck(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, GoroutineCountCheck(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)
	defer h.Stop()

	require.Eventually(t, func() bool {
		code, _ := probe(t, h.LiveEndpoint)
		return code == http.StatusServiceUnavailable
	}, time.Second, 10*time.Millisecond)

	_, resp := probe(t, h.LiveEndpoint)
	assert.Contains(t, resp.Checks, "goroutines")
}

func TestIsReady_FailingReadinessCheck(t *testing.T) {
	h := New()
	h.AddReadinessCheck("dep", time.Second, func(_ context.Context) error {
		return errors.New("unreachable")
	})
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 10*time.Millisecond)
	defer h.Stop()

	assert.Eventually(t, func() bool { return !h.IsReady() }, time.Second, 10*time.Millisecond)
}
