package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cryptopulse/cryptopulse/internal/config"
)

// migrationID names the index-bootstrap migration. Bump the suffix when the
// index set changes.
const migrationID = "0001_initial_indexes"

type migrationRecord struct {
	ID        string    `bson:"_id"`
	AppliedAt time.Time `bson:"applied_at"`
	AppliedBy string    `bson:"applied_by"`
}

// EnsureIndexes creates the index set and records the migration. Creation
// is idempotent; the _migrations record is written once.
func (s *Store) EnsureIndexes(ctx context.Context, service string) error {
	log := config.NewLogger("store")

	timestampDesc := mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	}
	for _, coll := range []string{CollMarketData, CollAnalysis, CollPriceUpdates, CollLogs} {
		if _, err := s.db.Collection(coll).Indexes().CreateOne(ctx, timestampDesc); err != nil {
			return dbErr("create_index", coll, err)
		}
	}

	signalIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "signal_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		timestampDesc,
	}
	if _, err := s.db.Collection(CollSignals).Indexes().CreateMany(ctx, signalIndexes); err != nil {
		return dbErr("create_index", CollSignals, err)
	}

	rec := migrationRecord{ID: migrationID, AppliedAt: time.Now().UTC(), AppliedBy: service}
	_, err := s.db.Collection(CollMigrations).InsertOne(ctx, rec)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			log.Debug().Str("migration", migrationID).Msg("Index migration already recorded")
			return nil
		}
		return dbErr("record_migration", CollMigrations, err)
	}

	log.Info().Str("migration", migrationID).Msg("Index migration applied")
	return nil
}
