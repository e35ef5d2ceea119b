package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cryptopulse/cryptopulse/internal/errs"
)

// ErrNotFound is returned by latest-document queries on empty collections.
var ErrNotFound = errors.New("document not found")

// ErrDuplicateSignal is returned when a signal_id already exists.
var ErrDuplicateSignal = errors.New("duplicate signal_id")

func dbErr(op, coll string, err error) error {
	return &errs.DatabaseError{Operation: op, Collection: coll, Err: err}
}

var latestByTimestamp = options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

// SnapshotRepo persists market snapshots.
type SnapshotRepo struct {
	coll *mongo.Collection
}

func (r *SnapshotRepo) Insert(ctx context.Context, s *MarketSnapshot) error {
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		return dbErr("insert", CollMarketData, err)
	}
	return nil
}

// Latest returns the most recent snapshot by timestamp.
func (r *SnapshotRepo) Latest(ctx context.Context) (*MarketSnapshot, error) {
	var s MarketSnapshot
	err := r.coll.FindOne(ctx, bson.D{}, latestByTimestamp).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbErr("find_latest", CollMarketData, err)
	}
	return &s, nil
}

// AnalysisRepo persists analysis documents.
type AnalysisRepo struct {
	coll *mongo.Collection
}

func (r *AnalysisRepo) Insert(ctx context.Context, a *AnalysisDocument) error {
	if _, err := r.coll.InsertOne(ctx, a); err != nil {
		return dbErr("insert", CollAnalysis, err)
	}
	return nil
}

func (r *AnalysisRepo) Latest(ctx context.Context) (*AnalysisDocument, error) {
	var a AnalysisDocument
	err := r.coll.FindOne(ctx, bson.D{}, latestByTimestamp).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbErr("find_latest", CollAnalysis, err)
	}
	return &a, nil
}

// SignalRepo persists trading signals. Uniqueness of signal_id is enforced
// by the unique index created in EnsureIndexes.
type SignalRepo struct {
	coll *mongo.Collection
}

func (r *SignalRepo) Insert(ctx context.Context, s *Signal) error {
	if _, err := r.coll.InsertOne(ctx, s); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateSignal
		}
		return dbErr("insert", CollSignals, err)
	}
	return nil
}

// BySignalID returns the signal with the given signal_id.
func (r *SignalRepo) BySignalID(ctx context.Context, id string) (*Signal, error) {
	var s Signal
	err := r.coll.FindOne(ctx, bson.D{{Key: "signal_id", Value: id}}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbErr("find_by_signal_id", CollSignals, err)
	}
	return &s, nil
}

// Recent returns up to limit signals, newest first.
func (r *SignalRepo) Recent(ctx context.Context, limit int64) ([]Signal, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit)
	cur, err := r.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, dbErr("find_recent", CollSignals, err)
	}
	defer cur.Close(ctx)

	var out []Signal
	if err := cur.All(ctx, &out); err != nil {
		return nil, dbErr("decode_recent", CollSignals, err)
	}
	return out, nil
}

// PriceUpdateRepo persists monitor cycles.
type PriceUpdateRepo struct {
	coll *mongo.Collection
}

func (r *PriceUpdateRepo) Insert(ctx context.Context, p *PriceUpdate) error {
	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		return dbErr("insert", CollPriceUpdates, err)
	}
	return nil
}

func (r *PriceUpdateRepo) Latest(ctx context.Context) (*PriceUpdate, error) {
	var p PriceUpdate
	err := r.coll.FindOne(ctx, bson.D{}, latestByTimestamp).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dbErr("find_latest", CollPriceUpdates, err)
	}
	return &p, nil
}

// LogRepo persists structured service logs. Write failures are swallowed by
// callers; losing a log record must never fail a cycle.
type LogRepo struct {
	coll *mongo.Collection
}

func (r *LogRepo) Insert(ctx context.Context, l *ServiceLog) error {
	if _, err := r.coll.InsertOne(ctx, l); err != nil {
		return dbErr("insert", CollLogs, err)
	}
	return nil
}
