package redisstream

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"liquidityVault/internal/model"
)

const (
	DefaultStream       = "vaultd:events"
	DefaultStreamMaxLen = 10000
	defaultTimeout      = 5 * time.Second
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Stream   string
	MaxLen   int64
}

// Sink appends committed vault events to a Redis stream.
type Sink struct {
	client  *redis.Client
	stream  string
	maxLen  int64
	timeout time.Duration
	logger  *zap.Logger
}

// NewSink connects to Redis and verifies the connection with PING.
func NewSink(ctx context.Context, cfg Config, logger *zap.Logger) (*Sink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Stream == "" {
		cfg.Stream = DefaultStream
	}
	if cfg.MaxLen < 0 {
		cfg.MaxLen = 0
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Addr, err)
	}

	logger.Info("redis stream sink ready",
		zap.String("addr", cfg.Addr),
		zap.String("stream", cfg.Stream),
		zap.Int64("maxLen", cfg.MaxLen),
	)

	return &Sink{
		client:  client,
		stream:  cfg.Stream,
		maxLen:  cfg.MaxLen,
		timeout: defaultTimeout,
		logger:  logger,
	}, nil
}

func (s *Sink) Close() error {
	return s.client.Close()
}

// PutEventBatch writes the batch in one pipeline, one stream entry per event.
func (s *Sink) PutEventBatch(events []model.EventRecord) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	pipe := s.client.Pipeline()
	for _, ev := range events {
		pipe.XAdd(ctx, addArgs(s.stream, s.maxLen, ev))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("xadd events: %w", err)
	}
	s.logger.Debug("events streamed", zap.String("stream", s.stream), zap.Int("count", len(events)))
	return nil
}

func addArgs(stream string, maxLen int64, ev model.EventRecord) *redis.XAddArgs {
	args := &redis.XAddArgs{
		Stream: stream,
		Values: entryValues(ev),
	}
	if maxLen > 0 {
		args.MaxLen = maxLen
		args.Approx = true
	}
	return args
}

func entryValues(ev model.EventRecord) map[string]interface{} {
	payload := string(ev.Decoded)
	if payload == "" {
		payload = "null"
	}
	return map[string]interface{}{
		"event":     ev.EventName,
		"chain_id":  strconv.FormatUint(ev.ChainID, 10),
		"block":     strconv.FormatUint(ev.BlockNumber, 10),
		"tx_index":  strconv.FormatUint(ev.TxIndex, 10),
		"log_index": strconv.FormatUint(ev.LogIndex, 10),
		"address":   ev.Address,
		"sender":    ev.Sender,
		"ts":        strconv.FormatUint(ev.Timestamp, 10),
		"payload":   payload,
	}
}
