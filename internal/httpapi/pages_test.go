package httpapi

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pagechat/internal/chat"
	"pagechat/internal/metrics"
)

func newTestPages(maxPages int, ttl time.Duration, records chat.RecordStore) *pages {
	return newPages(pagesConfig{
		Records:  records,
		LLM:      &fakeLLM{reply: "ok"},
		Logger:   zerolog.Nop(),
		Metrics:  metrics.Global(),
		Now:      time.Now,
		MaxPages: maxPages,
		IdleTTL:  ttl,
	})
}

func TestPagesReuseAndEvictBySize(t *testing.T) {
	ctx := context.Background()
	records := chat.NewMemoryRecords()
	p := newTestPages(2, time.Hour, records)

	a, err := p.get(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("get a: %v", err)
	}
	if _, err := a.orch.Send(ctx, "m1", "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	again, _ := p.get(ctx, "https://example.com/a")
	if again != a {
		t.Fatal("expected cached page for repeated url")
	}

	_, _ = p.get(ctx, "https://example.com/b")
	_, _ = p.get(ctx, "https://example.com/c")
	if n := p.byURL.Len(); n != 2 {
		t.Fatalf("expected cache bounded to 2 pages, got %d", n)
	}

	reloaded, err := p.get(ctx, "https://example.com/a")
	if err != nil {
		t.Fatalf("reload a: %v", err)
	}
	if reloaded == a {
		t.Fatal("expected evicted page to be rebuilt")
	}
	if msgs := reloaded.orch.Transcript(); len(msgs) != 2 || msgs[0].Content != "hello" {
		t.Fatalf("expected history restored from records, got %+v", msgs)
	}
}

func TestPagesEvictIdle(t *testing.T) {
	ctx := context.Background()
	p := newTestPages(10, 20*time.Millisecond, chat.NewMemoryRecords())

	first, _ := p.get(ctx, "https://example.com/a")
	time.Sleep(60 * time.Millisecond)
	second, _ := p.get(ctx, "https://example.com/a")
	if first == second {
		t.Fatal("expected idle page to expire")
	}
}
