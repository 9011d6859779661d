package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"pagechat/internal/chat"
	"pagechat/internal/models"
)

var _ chat.RecordStore = (*Store)(nil)

// RecordInfo is the listing view of a stored page record.
type RecordInfo struct {
	URL             string `json:"url"`
	ActiveSessionID string `json:"activeSessionId"`
	SessionCount    int    `json:"sessionCount"`
}

func (s *Store) Get(ctx context.Context, url string) (models.StoredChatData, bool, error) {
	q := s.sql.Select("data").From("chat_records").Where(sq.Eq{"url": url})
	query, args, err := q.ToSql()
	if err != nil {
		return models.StoredChatData{}, false, fmt.Errorf("build get chat record query: %w", err)
	}

	var raw []byte
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.StoredChatData{}, false, nil
		}
		return models.StoredChatData{}, false, fmt.Errorf("get chat record: %w", err)
	}

	var d models.StoredChatData
	if err := json.Unmarshal(raw, &d); err != nil {
		return models.StoredChatData{}, false, fmt.Errorf("decode chat record: %w", err)
	}
	return d, true, nil
}

func (s *Store) Put(ctx context.Context, d models.StoredChatData) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode chat record: %w", err)
	}
	q := s.sql.Insert("chat_records").
		Columns("url", "data", "active_session_id", "session_count", "updated_at").
		Values(d.URL, string(raw), d.ActiveSessionID, len(d.Sessions), nowExpr(s.driver)).
		Suffix("ON CONFLICT(url) DO UPDATE SET data=excluded.data, active_session_id=excluded.active_session_id, session_count=excluded.session_count, updated_at=excluded.updated_at")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build put chat record query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("put chat record: %w", err)
	}
	return nil
}

func (s *Store) DeleteRecord(ctx context.Context, url string) error {
	q := s.sql.Delete("chat_records").Where(sq.Eq{"url": url})
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete chat record query: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("delete chat record: %w", err)
	}
	return nil
}

// ListRecords returns records most recently updated first.
func (s *Store) ListRecords(ctx context.Context, limit uint64) ([]RecordInfo, error) {
	q := s.sql.Select("url", "active_session_id", "session_count").
		From("chat_records").
		OrderBy("updated_at DESC", "url")
	if limit > 0 {
		q = q.Limit(limit)
	}
	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list chat records query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list chat records: %w", err)
	}
	defer rows.Close()

	var out []RecordInfo
	for rows.Next() {
		var r RecordInfo
		if err := rows.Scan(&r.URL, &r.ActiveSessionID, &r.SessionCount); err != nil {
			return nil, fmt.Errorf("scan chat record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chat records: %w", err)
	}
	return out, nil
}
