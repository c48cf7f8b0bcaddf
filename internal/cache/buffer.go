package cache

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"spritenest-api/internal/model"
	"spritenest-api/pkg/uid"

	"github.com/redis/go-redis/v9"
)

// Buffer configuration
const (
	MaxBatchSize    = 50
	FlushTimeout    = 60 * time.Second
	StaleThreshold  = 1 * time.Hour
	CleanupInterval = 5 * time.Minute
)

// FlushFunc is called to persist buffered download events to the database.
type FlushFunc func(ctx context.Context, events []model.DownloadEvent) error

var deleteIfUnchangedScript = redis.NewScript(`
	if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
		redis.call("HDEL", KEYS[1], ARGV[1])
		redis.call("SREM", KEYS[2], ARGV[1])
		return 1
	else
		return 0
	end
`)

// RedisDownloadBuffer batches download events in Redis and flushes them to
// the database in the background (write-behind). Events are keyed by event
// ID so an entry is removed only if its payload is unchanged when flushed.
type RedisDownloadBuffer struct {
	client        *redis.Client
	flushFunc     FlushFunc
	flushTicker   *time.Ticker
	cleanupTicker *time.Ticker
	stopFlush     chan struct{}
	flushDone     chan struct{}
	stopOnce      sync.Once
	keyPrefix     string
}

// RedisBufferConfig holds configuration for the download buffer.
type RedisBufferConfig struct {
	FlushInterval time.Duration
	KeyPrefix     string
}

// NewRedisDownloadBuffer creates a Redis-backed download event buffer on an
// existing client.
func NewRedisDownloadBuffer(client *redis.Client, cfg RedisBufferConfig, flushFunc FlushFunc) (*RedisDownloadBuffer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "spritenest:downloads"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 30 * time.Second
	}

	b := &RedisDownloadBuffer{
		client:        client,
		flushFunc:     flushFunc,
		flushTicker:   time.NewTicker(cfg.FlushInterval),
		cleanupTicker: time.NewTicker(CleanupInterval),
		stopFlush:     make(chan struct{}),
		flushDone:     make(chan struct{}),
		keyPrefix:     keyPrefix,
	}

	go b.backgroundFlush()
	go b.backgroundCleanup()

	log.Printf("[RedisDownloadBuffer] Started - prefix:%s, flush:%v, batch:%d",
		keyPrefix, cfg.FlushInterval, MaxBatchSize)
	return b, nil
}

func (b *RedisDownloadBuffer) bufferKey() string {
	return b.keyPrefix + ":buffer"
}

func (b *RedisDownloadBuffer) pendingKey() string {
	return b.keyPrefix + ":pending"
}

// Add buffers a download event in Redis. The event ID keys the buffer
// entry, so it is assigned here rather than at insert time.
func (b *RedisDownloadBuffer) Add(ctx context.Context, e model.DownloadEvent) error {
	if e.ID == "" {
		e.ID = uid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	entry := model.BufferedDownload{
		ID:        e.ID,
		AssetID:   e.AssetID,
		UserID:    e.UserID,
		CreatedAt: e.CreatedAt,
	}

	jsonData, err := json.Marshal(&entry)
	if err != nil {
		return err
	}

	pipe := b.client.Pipeline()
	pipe.HSet(ctx, b.bufferKey(), entry.ID, jsonData)
	pipe.SAdd(ctx, b.pendingKey(), entry.ID)
	_, err = pipe.Exec(ctx)
	return err
}

// Count returns the number of pending events.
func (b *RedisDownloadBuffer) Count(ctx context.Context) (int64, error) {
	return b.client.SCard(ctx, b.pendingKey()).Result()
}

// FlushBatch writes up to MaxBatchSize events to the database.
func (b *RedisDownloadBuffer) FlushBatch(ctx context.Context) (int, error) {
	ids, err := b.client.SRandMemberN(ctx, b.pendingKey(), MaxBatchSize).Result()
	if err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	events := make([]model.DownloadEvent, 0, len(ids))
	originalData := make(map[string]string)

	for _, id := range ids {
		data, err := b.client.HGet(ctx, b.bufferKey(), id).Bytes()
		if err == redis.Nil {
			b.client.SRem(ctx, b.pendingKey(), id)
			continue
		}
		if err != nil {
			log.Printf("[RedisDownloadBuffer] Error getting %s: %v", id, err)
			continue
		}

		originalData[id] = string(data)

		var entry model.BufferedDownload
		if err := json.Unmarshal(data, &entry); err != nil {
			log.Printf("[RedisDownloadBuffer] Error unmarshaling %s: %v", id, err)
			b.client.HDel(ctx, b.bufferKey(), id)
			b.client.SRem(ctx, b.pendingKey(), id)
			continue
		}
		events = append(events, entry.Event())
	}

	if len(events) == 0 {
		return 0, nil
	}

	if err := b.flushFunc(ctx, events); err != nil {
		log.Printf("[RedisDownloadBuffer] Flush error: %v", err)
		return 0, err
	}

	pipe := b.client.Pipeline()
	for id, raw := range originalData {
		deleteIfUnchangedScript.Run(ctx, pipe, []string{b.bufferKey(), b.pendingKey()}, id, raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[RedisDownloadBuffer] Error clearing Redis: %v", err)
	}

	return len(events), nil
}

// Flush writes one batch of buffered events to the database.
func (b *RedisDownloadBuffer) Flush(ctx context.Context) error {
	_, err := b.FlushBatch(ctx)
	return err
}

// CleanupStale drops buffer entries that failed to flush for longer than
// StaleThreshold, so a dead database cannot grow the buffer forever.
func (b *RedisDownloadBuffer) CleanupStale(ctx context.Context) (int, error) {
	ids, err := b.client.SMembers(ctx, b.pendingKey()).Result()
	if err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-StaleThreshold)
	staleCount := 0
	pipe := b.client.Pipeline()

	for _, id := range ids {
		data, err := b.client.HGet(ctx, b.bufferKey(), id).Bytes()
		if err == redis.Nil {
			pipe.SRem(ctx, b.pendingKey(), id)
			continue
		}
		if err != nil {
			continue
		}

		var entry model.BufferedDownload
		if err := json.Unmarshal(data, &entry); err != nil {
			pipe.HDel(ctx, b.bufferKey(), id)
			pipe.SRem(ctx, b.pendingKey(), id)
			staleCount++
			continue
		}

		if entry.CreatedAt.Before(cutoff) {
			pipe.HDel(ctx, b.bufferKey(), id)
			pipe.SRem(ctx, b.pendingKey(), id)
			staleCount++
		}
	}

	if staleCount > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			log.Printf("[RedisDownloadBuffer] Cleanup exec error: %v", err)
			return 0, err
		}
		log.Printf("[RedisDownloadBuffer] Dropped %d stale events", staleCount)
	}

	return staleCount, nil
}

func (b *RedisDownloadBuffer) backgroundFlush() {
	for {
		select {
		case <-b.flushTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), FlushTimeout)
			if _, err := b.FlushBatch(ctx); err != nil {
				log.Printf("[RedisDownloadBuffer] Background flush error: %v", err)
			}
			cancel()
		case <-b.stopFlush:
			log.Printf("[RedisDownloadBuffer] Shutdown: flushing remaining events...")
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			for {
				flushed, err := b.FlushBatch(ctx)
				if err != nil {
					log.Printf("[RedisDownloadBuffer] Shutdown flush error: %v", err)
					break
				}
				if flushed == 0 {
					break
				}
			}
			cancel()
			log.Printf("[RedisDownloadBuffer] Shutdown flush complete")
			close(b.flushDone)
			return
		}
	}
}

func (b *RedisDownloadBuffer) backgroundCleanup() {
	for {
		select {
		case <-b.cleanupTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			b.CleanupStale(ctx)
			cancel()
		case <-b.stopFlush:
			return
		}
	}
}

// Close stops the buffer and performs a final flush. The shared Redis client
// is owned by the caller and stays open.
func (b *RedisDownloadBuffer) Close() error {
	b.stopOnce.Do(func() {
		b.flushTicker.Stop()
		b.cleanupTicker.Stop()
		close(b.stopFlush)
		<-b.flushDone
	})
	return nil
}
