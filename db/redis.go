package db

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strconv"

	"github.com/redis/go-redis/v9"

	"propcast/config"
)

// redisMaxLen caps the log list so it does not grow without bound.
const redisMaxLen = 10000

// RedisSink appends JSON-encoded logs to a Redis list named after the table.
type RedisSink struct {
	client *redis.Client
	key    string
}

func NewRedisSink(ctx context.Context, cfg config.SinkConfig) (*RedisSink, error) {
	var opts *redis.Options
	if cfg.DSN != "" {
		var err error
		if opts, err = redis.ParseURL(cfg.DSN); err != nil {
			return nil, fmt.Errorf("parse redis dsn: %w", err)
		}
	} else {
		opts = &redis.Options{
			Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Username: cfg.User,
			Password: cfg.Password,
		}
		if cfg.Database != "" {
			n, err := strconv.Atoi(cfg.Database)
			if err != nil {
				return nil, fmt.Errorf("redis database must be a number, got %q", cfg.Database)
			}
			opts.DB = n
		}
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisSinkFromClient(client, cfg.Table), nil
}

func NewRedisSinkFromClient(client *redis.Client, key string) *RedisSink {
	return &RedisSink{client: client, key: key}
}

func (s *RedisSink) SavePrediction(ctx context.Context, entry PredictionLog) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.key, payload)
	pipe.LTrim(ctx, s.key, -redisMaxLen, -1)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to limit logs, newest first.
func (s *RedisSink) Recent(ctx context.Context, limit int) ([]PredictionLog, error) {
	raw, err := s.client.LRange(ctx, s.key, int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	logs := make([]PredictionLog, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var l PredictionLog
		if err := json.Unmarshal([]byte(raw[i]), &l); err != nil {
			return nil, fmt.Errorf("decode log entry: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (s *RedisSink) Close() error {
	return s.client.Close()
}
