package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	LLMRequests     *prometheus.CounterVec
	LLMDuration     *prometheus.HistogramVec
	ParseStages     *prometheus.CounterVec
	InterpreterRuns *prometheus.CounterVec
	ChatMessages    *prometheus.CounterVec
	RateLimited     prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			LLMRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pagechat",
				Name:      "llm_requests_total",
				Help:      "LLM provider calls by dialect and outcome",
			}, []string{"dialect", "outcome"}),
			LLMDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "pagechat",
				Name:      "llm_request_duration_seconds",
				Help:      "LLM provider call latency",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
			}, []string{"dialect"}),
			ParseStages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pagechat",
				Name:      "parse_stage_total",
				Help:      "Interpreter responses decoded per recovery stage",
			}, []string{"stage"}),
			InterpreterRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pagechat",
				Name:      "interpreter_runs_total",
				Help:      "Interpreter runs by final status",
			}, []string{"status"}),
			ChatMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "pagechat",
				Name:      "chat_messages_total",
				Help:      "Chat messages by role",
			}, []string{"role"}),
			RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "pagechat",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the hourly rate limit",
			}),
		}
		prometheus.MustRegister(
			global.LLMRequests,
			global.LLMDuration,
			global.ParseStages,
			global.InterpreterRuns,
			global.ChatMessages,
			global.RateLimited,
		)
	})
	return global
}
