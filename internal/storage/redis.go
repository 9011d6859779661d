package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"pagechat/internal/chat"
	"pagechat/internal/models"
)

// RedisRecords keeps each page record as a JSON string under
// <prefix>:chat_<url>.
type RedisRecords struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisRecords(rdb *redis.Client, prefix string) *RedisRecords {
	prefix = strings.TrimSpace(prefix)
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisRecords{rdb: rdb, prefix: prefix}
}

var _ chat.RecordStore = (*RedisRecords)(nil)

func (r *RedisRecords) key(url string) string {
	return r.prefix + chat.RecordKey(url)
}

func (r *RedisRecords) Get(ctx context.Context, url string) (models.StoredChatData, bool, error) {
	raw, err := r.rdb.Get(ctx, r.key(url)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.StoredChatData{}, false, nil
		}
		return models.StoredChatData{}, false, fmt.Errorf("redis get chat record: %w", err)
	}
	var d models.StoredChatData
	if err := json.Unmarshal(raw, &d); err != nil {
		return models.StoredChatData{}, false, fmt.Errorf("decode chat record: %w", err)
	}
	return d, true, nil
}

func (r *RedisRecords) Put(ctx context.Context, d models.StoredChatData) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode chat record: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(d.URL), raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set chat record: %w", err)
	}
	return nil
}
