package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goodtune/hubwatch/internal/record"
	"github.com/goodtune/hubwatch/internal/storage"
	"github.com/redis/go-redis/v9"
)

type recordStore struct {
	client *redis.Client
}

func recordKey(date string) string {
	return fmt.Sprintf("hubwatch:record:%s", date)
}

const indexKey = "hubwatch:records"

// FindByDate loads the record stored for the given date.
func (s *recordStore) FindByDate(ctx context.Context, date time.Time) (*record.DayRecord, error) {
	payload, err := s.client.Get(ctx, recordKey(storage.DayKey(date))).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}

	var rec record.DayRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return nil, fmt.Errorf("decode record for %s: %w", storage.DayKey(date), err)
	}
	return &rec, nil
}

// CreateIfAbsent atomically stores the record unless its date key exists.
func (s *recordStore) CreateIfAbsent(ctx context.Context, rec *record.DayRecord) (bool, error) {
	date := storage.DayKey(rec.Date)
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode record for %s: %w", date, err)
	}

	script := redis.NewScript(createRecordScript)
	created, err := script.Run(ctx, s.client,
		[]string{recordKey(date), indexKey}, date, string(payload)).Int()
	if err != nil {
		return false, fmt.Errorf("create record for %s: %w", date, err)
	}
	return created == 1, nil
}

// Upsert stores the record, replacing any existing one for its date.
func (s *recordStore) Upsert(ctx context.Context, rec *record.DayRecord) error {
	date := storage.DayKey(rec.Date)
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record for %s: %w", date, err)
	}

	script := redis.NewScript(upsertRecordScript)
	if err := script.Run(ctx, s.client,
		[]string{recordKey(date), indexKey}, date, string(payload)).Err(); err != nil {
		return fmt.Errorf("upsert record for %s: %w", date, err)
	}
	return nil
}
