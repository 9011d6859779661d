package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"pagechat/internal/chat"
	"pagechat/internal/interpreter"
	"pagechat/internal/metrics"
	"pagechat/internal/models"
)

// page holds the per-URL chat and interpreter state. mu serializes chat
// operations so a send and a session switch never interleave.
type page struct {
	mu     sync.Mutex
	orch   *chat.Orchestrator
	runner *interpreter.Runner
}

const (
	defaultMaxPages    = 1024
	defaultPageIdleTTL = 30 * time.Minute
)

// pages caches page state per URL. Entries are evicted after sitting idle for
// the TTL or when the cache is full; chat history survives eviction because
// every change is saved to the record store, only an in-flight interpreter
// state is lost.
type pages struct {
	records chat.RecordStore
	llm     LLM
	filters interpreter.FilterApplier
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	byURL *expirable.LRU[string, *page]
}

type pagesConfig struct {
	Records  chat.RecordStore
	LLM      LLM
	Filters  interpreter.FilterApplier
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
	MaxPages int
	IdleTTL  time.Duration
}

func newPages(cfg pagesConfig) *pages {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = defaultMaxPages
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultPageIdleTTL
	}
	logger := cfg.Logger
	return &pages{
		records: cfg.Records,
		llm:     cfg.LLM,
		filters: cfg.Filters,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
		byURL: expirable.NewLRU(cfg.MaxPages, func(url string, _ *page) {
			logger.Debug().Str("url", url).Msg("page state evicted")
		}, cfg.IdleTTL),
	}
}

// get returns the page for url, loading its active stored session the first
// time the url is seen. Every hit restarts the idle TTL.
func (p *pages) get(ctx context.Context, url string) (*page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pg, ok := p.byURL.Get(url); ok {
		p.byURL.Add(url, pg)
		return pg, nil
	}

	logger := p.logger.With().Str("url", url).Logger()
	conv := chat.NewConversation(url, chat.NewSessionID(p.now()))
	store := chat.NewSessionStore(chat.StoreConfig{
		Records:      p.records,
		Conversation: conv,
		Logger:       logger,
		Now:          p.now,
		OnChange: func(d models.StoredChatData) {
			logger.Debug().Int("sessions", len(d.Sessions)).Msg("chat sessions changed")
		},
	})
	if err := store.Load(ctx); err != nil {
		return nil, err
	}

	pg := &page{
		orch: chat.NewOrchestrator(chat.OrchestratorConfig{
			Conversation: conv,
			Store:        store,
			Gateway:      p.llm,
			Logger:       logger,
			Metrics:      p.metrics,
			Now:          p.now,
		}),
		runner: interpreter.NewRunner(interpreter.RunnerConfig{
			Gateway: p.llm,
			Filters: p.filters,
			NoteName: func(f models.Field) {
				logger.Debug().Str("note_name", f.Value).Msg("note name rewritten")
			},
			Logger:  logger,
			Metrics: p.metrics,
			Now:     p.now,
		}),
	}
	p.byURL.Add(url, pg)
	return pg, nil
}
