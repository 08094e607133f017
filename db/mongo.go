package db

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"propcast/config"
)

// MongoSink inserts one document per prediction into a collection named after the table.
type MongoSink struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoSink(ctx context.Context, cfg config.SinkConfig) (*MongoSink, error) {
	uri := cfg.DSN
	if uri == "" {
		uri = "mongodb://" + net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	}
	opts := options.Client().ApplyURI(uri)
	if cfg.DSN == "" && cfg.User != "" {
		opts.SetAuth(options.Credential{Username: cfg.User, Password: cfg.Password})
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "propcast"
	}
	return &MongoSink{
		client:     client,
		collection: client.Database(database).Collection(cfg.Table),
	}, nil
}

func (s *MongoSink) SavePrediction(ctx context.Context, entry PredictionLog) error {
	_, err := s.collection.InsertOne(ctx, entry)
	return err
}

// Recent returns up to limit logs, newest first.
func (s *MongoSink) Recent(ctx context.Context, limit int) ([]PredictionLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	logs := make([]PredictionLog, 0, limit)
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

func (s *MongoSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
