package storage

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pagechat/internal/chat"
	"pagechat/internal/models"
)

func sampleRecord(url string) models.StoredChatData {
	return models.StoredChatData{
		URL: url,
		Sessions: []models.ChatSession{
			{ID: "a", URL: url, CreatedAt: 100, Messages: []models.ChatMessage{
				{Role: "user", Content: "PAGE CONTENT: \"quoted\"\nline", Timestamp: 1, IsContext: true},
				{Role: "assistant", Content: "Sure. Happy to help.", Timestamp: 2, IsContext: true},
			}},
			{ID: "b", URL: url, CreatedAt: 200, Messages: []models.ChatMessage{}},
		},
		ActiveSessionID: "b",
	}
}

func exerciseRecordStore(t *testing.T, rs chat.RecordStore) {
	t.Helper()
	ctx := context.Background()
	url := "https://example.com/a?b=c#d"

	if _, ok, err := rs.Get(ctx, url); err != nil || ok {
		t.Fatalf("expected missing record, ok=%v err=%v", ok, err)
	}

	want := sampleRecord(url)
	if err := rs.Put(ctx, want); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := rs.Get(ctx, url)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n%+v\n%+v", got, want)
	}

	want.ActiveSessionID = "a"
	want.Sessions = want.Sessions[:1]
	if err := rs.Put(ctx, want); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = rs.Get(ctx, url)
	if got.ActiveSessionID != "a" || len(got.Sessions) != 1 {
		t.Fatalf("overwrite not applied: %+v", got)
	}
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	st, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "chat.db"), true)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()

	exerciseRecordStore(t, st)

	if err := st.Put(ctx, sampleRecord("https://other.example")); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := st.ListRecords(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %+v", list)
	}

	if err := st.DeleteRecord(ctx, "https://other.example"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := st.Get(ctx, "https://other.example"); ok {
		t.Fatalf("record not deleted")
	}
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), "sqlite", "", true); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestRedisRecords(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rs := NewRedisRecords(rdb, "pagechat")
	exerciseRecordStore(t, rs)

	if !mr.Exists("pagechat:chat_https://example.com/a?b=c#d") {
		t.Fatalf("expected prefixed key, have %v", mr.Keys())
	}
}
