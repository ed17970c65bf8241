// Package metrics exposes community activity to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kasuganosora/baycode/hook"
	"github.com/kasuganosora/baycode/model"
)

// Collector holds the Prometheus series for the community server.
type Collector struct {
	registrations prometheus.Counter
	logins        prometheus.Counter
	loginFailures prometheus.Counter
	logouts       prometheus.Counter
	resetRequests prometheus.Counter
	problems      prometheus.Counter
	chatMessages  *prometheus.CounterVec
	snapshotSaves *prometheus.CounterVec
	httpStatus    *prometheus.CounterVec
	httpLatency   prometheus.Histogram
}

// NewCollector creates the series and registers them with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baycode_registrations_total",
			Help: "Accounts created.",
		}),
		logins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baycode_logins_total",
			Help: "Successful logins.",
		}),
		loginFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baycode_login_failures_total",
			Help: "Rejected login attempts.",
		}),
		logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baycode_logouts_total",
			Help: "Sessions ended by logout.",
		}),
		resetRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baycode_password_reset_requests_total",
			Help: "Password reset tokens issued.",
		}),
		problems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "baycode_problems_solved_total",
			Help: "Problems newly marked solved.",
		}),
		chatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baycode_chat_messages_total",
			Help: "Chat messages accepted, by guild.",
		}, []string{"guild"}),
		snapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baycode_snapshot_saves_total",
			Help: "Snapshot saves, by result.",
		}, []string{"result"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "baycode_http_responses_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "baycode_http_latency_seconds",
			Help:    "HTTP handler latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.registrations,
		c.logins,
		c.loginFailures,
		c.logouts,
		c.resetRequests,
		c.problems,
		c.chatMessages,
		c.snapshotSaves,
		c.httpStatus,
		c.httpLatency,
	)
	return c
}

const hookName = "metrics"

// Attach counts community events raised on hooks. Handlers run last and
// pass the payload through unchanged.
func (c *Collector) Attach(hooks *hook.Center) {
	count := func(event string, fn func(data any)) {
		hooks.Register(event, 100, hookName, func(_ context.Context, _ string, data any) (any, error) {
			fn(data)
			return data, nil
		})
	}
	count(hook.OnAccountRegistered, func(any) { c.registrations.Inc() })
	count(hook.OnAccountLogin, func(any) { c.logins.Inc() })
	count(hook.OnLoginFailed, func(any) { c.loginFailures.Inc() })
	count(hook.OnAccountLogout, func(any) { c.logouts.Inc() })
	count(hook.OnPasswordResetAsked, func(any) { c.resetRequests.Inc() })
	count(hook.OnProblemSolved, func(any) { c.problems.Inc() })
	count(hook.AfterChatSend, func(data any) { c.chatMessages.WithLabelValues(guildOf(data)).Inc() })
	count(hook.OnSnapshotSaved, func(data any) {
		if err, _ := data.(error); err != nil {
			c.snapshotSaves.WithLabelValues("error").Inc()
			return
		}
		c.snapshotSaves.WithLabelValues("ok").Inc()
	})
}

func guildOf(data any) string {
	if msg, ok := data.(model.ChatMessage); ok && msg.Guild != "" {
		return msg.Guild
	}
	return "unknown"
}

// RecordHTTP records one handled request.
func (c *Collector) RecordHTTP(status int, latency time.Duration) {
	c.httpStatus.WithLabelValues(strconv.Itoa(status)).Inc()
	c.httpLatency.Observe(latency.Seconds())
}

// Middleware records status and latency for every request.
func (c *Collector) Middleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		c.RecordHTTP(ctx.Writer.Status(), time.Since(start))
	}
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
