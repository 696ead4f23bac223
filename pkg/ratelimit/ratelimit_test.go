package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNew_Defaults(t *testing.T) {
	rl := New(Config{Rate: 10})
	defer rl.Stop()

	assert.Equal(t, time.Minute, rl.Config().CleanupInterval)
	assert.Equal(t, 5*time.Minute, rl.Config().MaxAge)
	assert.Equal(t, 1, rl.Config().Burst)
}

func TestAllow(t *testing.T) {
	t.Run("allows requests within burst", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 5, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()
		for i := 0; i < 5; i++ {
			assert.True(t, rl.Allow("192.168.1.1"), "request %d should be allowed", i)
		}
		assert.False(t, rl.Allow("192.168.1.1"))
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl := New(Config{Rate: 1, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()
		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
		assert.Equal(t, 2, rl.Len())
	})

	t.Run("concurrent access", func(t *testing.T) {
		rl := New(Config{Rate: 1000, Burst: 1000, CleanupInterval: time.Hour, MaxAge: time.Hour})
		defer rl.Stop()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				rl.Allow("shared")
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, rl.Len())
	})
}

func TestDropStale(t *testing.T) {
	rl := New(Config{Rate: 1, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Minute})
	defer rl.Stop()
	rl.Allow("old")
	rl.dropStale(time.Now().Add(2 * time.Minute))
	assert.Zero(t, rl.Len())
}

func TestStop_Idempotent(t *testing.T) {
	rl := New(TokenLookupConfig())
	rl.Stop()
	rl.Stop()
}

func TestPerIPMiddleware(t *testing.T) {
	rl := New(Config{Rate: 0.001, Burst: 2, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	r := gin.New()
	r.GET("/ping", rl.PerIP("test"), func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestPerUserMiddleware(t *testing.T) {
	rl := New(Config{Rate: 0.001, Burst: 1, CleanupInterval: time.Hour, MaxAge: time.Hour})
	defer rl.Stop()

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("user_id", c.GetHeader("X-User"))
		c.Next()
	})
	r.GET("/chat", rl.PerUser("test", "user_id"), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodGet, "/chat", nil)
		req.Header.Set("X-User", user)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, send("u1"))
	assert.Equal(t, http.StatusTooManyRequests, send("u1"))
	assert.Equal(t, http.StatusOK, send("u2"), "same IP, different user")
}
