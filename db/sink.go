// Package db persists prediction logs.
package db

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"propcast/config"
)

// PredictionLog is one appended row of the prediction_logs table.
type PredictionLog struct {
	ID                string    `json:"id" bson:"log_id"`
	Blades            int       `json:"blades" bson:"blades"`
	Diameter          float64   `json:"diameter" bson:"diameter"`
	Pitch             float64   `json:"pitch" bson:"pitch"`
	AdvanceRatio      float64   `json:"advance_ratio" bson:"advance_ratio"`
	ThrustCoefficient float64   `json:"thrust_coefficient" bson:"thrust_coefficient"`
	PowerCoefficient  float64   `json:"power_coefficient" bson:"power_coefficient"`
	Efficiency        float64   `json:"efficiency" bson:"efficiency"`
	DroneType         string    `json:"drone_type" bson:"drone_type"`
	CreatedAt         time.Time `json:"created_at" bson:"created_at"`
}

// Sink appends prediction logs to durable storage.
type Sink interface {
	SavePrediction(ctx context.Context, entry PredictionLog) error
	Close() error
}

// RecentLister is implemented by sinks that can read back the newest logs.
type RecentLister interface {
	Recent(ctx context.Context, limit int) ([]PredictionLog, error)
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Open builds the sink selected by cfg.Driver.
func Open(ctx context.Context, cfg config.SinkConfig) (Sink, error) {
	if cfg.Table == "" {
		cfg.Table = "prediction_logs"
	}
	if !identifier.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Table)
	}

	switch cfg.Driver {
	case "mysql", "postgres", "sqlite3":
		sink, err := OpenSQL(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if err := sink.Migrate(ctx); err != nil {
				sink.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return sink, nil
	case "redis":
		return NewRedisSink(ctx, cfg)
	case "mongo":
		return NewMongoSink(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported sink driver %q", cfg.Driver)
	}
}
