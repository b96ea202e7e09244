package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/proxmox-multicluster/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestDefaultConfigs(t *testing.T) {
	api := DefaultAPIConfig()
	assert.Equal(t, float64(20), api.Rate)
	assert.Equal(t, 50, api.Burst)
	assert.Equal(t, time.Minute, api.CleanupInterval)
	assert.Equal(t, 5*time.Minute, api.MaxAge)

	mut := DefaultMutationConfig()
	assert.Less(t, mut.Rate, api.Rate, "mutations are throttled harder than reads")
	assert.Less(t, mut.Burst, api.Burst)
}

func TestNewAppliesDefaults(t *testing.T) {
	rl := New("api", Config{Rate: 10, Burst: 20})
	defer rl.Stop()

	assert.Equal(t, time.Minute, rl.Config().CleanupInterval)
	assert.Equal(t, 5*time.Minute, rl.Config().MaxAge)
	assert.Equal(t, float64(10), rl.Config().Rate)
}

func TestAllow(t *testing.T) {
	t.Run("allows requests within burst limit", func(t *testing.T) {
		rl := New("api", Config{Rate: 1, Burst: 5, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		for i := 0; i < 5; i++ {
			assert.True(t, rl.Allow("192.168.1.1"), "request %d should be allowed", i)
		}
		assert.False(t, rl.Allow("192.168.1.1"))
	})

	t.Run("tracks keys separately", func(t *testing.T) {
		rl := New("api", Config{Rate: 1, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		assert.True(t, rl.Allow("10.0.0.1|prod"))
		assert.False(t, rl.Allow("10.0.0.1|prod"))
		assert.True(t, rl.Allow("10.0.0.1|staging"))
		assert.Equal(t, 2, rl.Len())
	})

	t.Run("is safe for concurrent use", func(t *testing.T) {
		rl := New("api", Config{Rate: 1000, Burst: 1000, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rl.Allow("10.0.0.1")
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, rl.Len())
	})
}

func TestCleanupStaleEntries(t *testing.T) {
	rl := New("api", Config{Rate: 1, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Minute})
	defer rl.Stop()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.Allow("old")
	now = now.Add(2 * time.Minute)
	rl.Allow("fresh")

	rl.cleanupStaleEntries()
	assert.Equal(t, 1, rl.Len())
}

func TestStopIsIdempotent(t *testing.T) {
	rl := New("api", DefaultAPIConfig())
	rl.Stop()
	assert.NotPanics(t, rl.Stop)
}

func TestByClientAndCluster(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodPost, "/api/pve/vms?cluster=staging", nil)
	c.Request.RemoteAddr = "10.1.1.1:4444"
	assert.Equal(t, "10.1.1.1|staging", ByClientAndCluster(c))

	c.Request = httptest.NewRequest(http.MethodPost, "/api/pve/vms", nil)
	c.Request.RemoteAddr = "10.1.1.1:4444"
	assert.Equal(t, "10.1.1.1|default", ByClientAndCluster(c))
	assert.Equal(t, "10.1.1.1", ByClientIP(c))
}

func TestMiddleware(t *testing.T) {
	rl := NewKeyed("mutation", Config{Rate: 0.001, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour}, ByClientAndCluster)
	defer rl.Stop()

	r := gin.New()
	r.Use(rl.Middleware())
	r.POST("/vms", func(c *gin.Context) { c.Status(http.StatusAccepted) })

	do := func(cluster string) int {
		req := httptest.NewRequest(http.MethodPost, "/vms?cluster="+cluster, nil)
		req.RemoteAddr = "192.0.2.10:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	before := testutil.ToFloat64(metrics.RateLimitRejections.WithLabelValues("mutation"))

	require.Equal(t, http.StatusAccepted, do("prod"))
	require.Equal(t, http.StatusTooManyRequests, do("prod"))
	require.Equal(t, http.StatusAccepted, do("dev"), "another cluster has its own bucket")

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.RateLimitRejections.WithLabelValues("mutation")))
}
