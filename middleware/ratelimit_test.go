package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func limitedRouter(r rate.Limit, burst int) *gin.Engine {
	eng := gin.New()
	eng.Use(RateLimit(r, burst))
	eng.GET("/api/problems", func(c *gin.Context) { c.Status(http.StatusOK) })
	return eng
}

func TestRateLimit_BurstThenReject(t *testing.T) {
	// A refill this slow never adds a token during the test.
	r := limitedRouter(0.001, 3)
	for i := 1; i <= 3; i++ {
		assert.Equal(t, http.StatusOK, hit(r, "/api/problems", "10.0.1.1").Code, "request %d", i)
	}
	w := hit(r, "/api/problems", "10.0.1.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_BucketsArePerClient(t *testing.T) {
	r := limitedRouter(0.001, 1)

	assert.Equal(t, http.StatusOK, hit(r, "/api/problems", "10.1.1.1").Code)
	assert.Equal(t, http.StatusOK, hit(r, "/api/problems", "10.1.1.2").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(r, "/api/problems", "10.1.1.1").Code)
}

func TestRateLimit_RetryAfter(t *testing.T) {
	cases := map[string]struct {
		limit rate.Limit
		want  string
	}{
		"two seconds per token": {0.5, "2"},
		"rounded up":            {0.3, "4"},
		"no refill":             {0, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			r := limitedRouter(tc.limit, 1)
			hit(r, "/api/problems", "10.2.2.2")
			w := hit(r, "/api/problems", "10.2.2.2")
			assert.Equal(t, http.StatusTooManyRequests, w.Code)
			assert.Equal(t, tc.want, w.Header().Get("Retry-After"))
		})
	}
}
