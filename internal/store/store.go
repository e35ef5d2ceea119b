// Package store implements MongoDB persistence for snapshots, analyses,
// signals, price updates and service logs.
package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/cryptopulse/cryptopulse/internal/config"
)

// Collection names.
const (
	CollMarketData   = "market_data"
	CollAnalysis     = "analysis"
	CollSignals      = "signals"
	CollPriceUpdates = "price_updates"
	CollLogs         = "logs"
	CollMigrations   = "_migrations"
)

// Store wraps the pooled Mongo client and exposes typed repositories.
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	Snapshots    *SnapshotRepo
	Analyses     *AnalysisRepo
	Signals      *SignalRepo
	PriceUpdates *PriceUpdateRepo
	Logs         *LogRepo
}

// Connect builds the pooled document-store client, verifies connectivity
// and wires the repositories.
func Connect(ctx context.Context, cfg *config.MongoConfig) (*Store, error) {
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize).
		SetMaxConnIdleTime(time.Duration(cfg.MaxIdleTimeMS) * time.Millisecond).
		SetConnectTimeout(time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond).
		SetServerSelectionTimeout(time.Duration(cfg.ServerSelectionTimeoutMS) * time.Millisecond)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &Store{client: client, db: db}
	s.Snapshots = &SnapshotRepo{coll: db.Collection(CollMarketData)}
	s.Analyses = &AnalysisRepo{coll: db.Collection(CollAnalysis)}
	s.Signals = &SignalRepo{coll: db.Collection(CollSignals)}
	s.PriceUpdates = &PriceUpdateRepo{coll: db.Collection(CollPriceUpdates)}
	s.Logs = &LogRepo{coll: db.Collection(CollLogs)}
	return s, nil
}

// Ping verifies the connection is still healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close releases the connection pool.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Database exposes the underlying database handle for index bootstrap.
func (s *Store) Database() *mongo.Database {
	return s.db
}
