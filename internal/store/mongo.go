// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tomtom215/cinetrace/internal/models"
)

// usersCollection is the MongoDB collection holding one document per user.
const usersCollection = "users"

// MongoStore is a Store backed by MongoDB. The op vocabulary maps directly
// onto MongoDB update operators, all applied in a single UpdateOne per event:
//
//   - increment         -> $inc
//   - append            -> $push with the positional "$" resolved by a
//     sessionId filter
//   - conditionalAppend -> $addToSet (server-evaluated membership)
//   - set               -> $set
//   - insertSession     -> $push guarded by a sessionId $ne filter
//   - ensureTracking    -> $set guarded by a trackingData $exists:false filter
//
// MongoDB guarantees single-document updates apply atomically, which is the
// whole correctness story: no lock is held by this process across the round
// trip.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo connects to MongoDB and verifies the connection with a ping.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

// NewMongoStore creates a MongoDB-backed store over the given database.
func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(usersCollection),
	}
}

// Get retrieves the user record by ID.
func (s *MongoStore) Get(ctx context.Context, userID string) (*models.UserRecord, error) {
	var rec models.UserRecord
	err := s.coll.FindOne(ctx, bson.D{{Key: "_id", Value: userID}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &rec, nil
}

// AtomicApply translates the op list into MongoDB update operators. Guard ops
// (ensureTracking, insertSession) need their own filter and run as separate
// single-document updates; all data ops for one event collapse into one
// UpdateOne so they apply atomically.
func (s *MongoStore) AtomicApply(ctx context.Context, userID string, ops []Op) error {
	var dataOps []Op
	for i := range ops {
		op := &ops[i]
		switch op.Kind {
		case KindEnsureTracking:
			if err := s.ensureTracking(ctx, userID, op); err != nil {
				return err
			}
		case KindInsertSession:
			if err := s.insertSession(ctx, userID, op); err != nil {
				return err
			}
		default:
			dataOps = append(dataOps, *op)
		}
	}

	if len(dataOps) == 0 {
		return nil
	}
	return s.applyDataOps(ctx, userID, dataOps)
}

// ensureTracking creates the tracking block if absent. The $exists:false
// guard makes concurrent first-events race safely: exactly one update
// matches, the rest are no-ops.
func (s *MongoStore) ensureTracking(ctx context.Context, userID string, op *Op) error {
	now, ok := op.Value.(time.Time)
	if !ok {
		return fmt.Errorf("ensureTracking: value must be time.Time, got %T", op.Value)
	}

	filter := bson.D{
		{Key: "_id", Value: userID},
		{Key: "trackingData", Value: bson.D{{Key: "$exists", Value: false}}},
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "trackingData", Value: newTrackingData(now)}}},
	}

	// Matched count 0 means the block already exists; that is success.
	if _, err := s.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("ensure tracking block: %w", err)
	}
	return nil
}

// insertSession appends a session entry only if no session with the same
// sessionId exists. The $ne guard is evaluated by the server, so at most one
// of N racing creators wins; the rest get ErrConflict and re-read.
func (s *MongoStore) insertSession(ctx context.Context, userID string, op *Op) error {
	sess, ok := op.Value.(models.SessionRecord)
	if !ok {
		return fmt.Errorf("insertSession: value must be models.SessionRecord, got %T", op.Value)
	}

	filter := bson.D{
		{Key: "_id", Value: userID},
		{Key: "trackingData.sessions.sessionId", Value: bson.D{{Key: "$ne", Value: sess.SessionID}}},
	}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "trackingData.sessions", Value: sess}}},
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrConflict
	}
	return nil
}

// applyDataOps collapses increments, appends, conditional appends, and
// timestamp sets into one atomic UpdateOne.
func (s *MongoStore) applyDataOps(ctx context.Context, userID string, ops []Op) error {
	var (
		inc       bson.D
		push      bson.D
		addToSet  bson.D
		set       bson.D
		sessionID string
	)

	for i := range ops {
		op := &ops[i]
		switch op.Kind {
		case KindIncrement:
			inc = append(inc, bson.E{Key: string(op.Path), Value: op.Delta})
		case KindAppend:
			if sessionID != "" && sessionID != op.SessionID {
				return fmt.Errorf("atomic apply: ops target multiple sessions (%s, %s)", sessionID, op.SessionID)
			}
			sessionID = op.SessionID
			push = append(push, bson.E{Key: string(op.Path), Value: op.Value})
		case KindConditionalAppend:
			addToSet = append(addToSet, bson.E{Key: string(op.Path), Value: op.Value})
		case KindSet:
			set = append(set, bson.E{Key: string(op.Path), Value: op.Value})
		default:
			return fmt.Errorf("unsupported op kind %q", op.Kind)
		}
	}

	filter := bson.D{{Key: "_id", Value: userID}}
	if sessionID != "" {
		// Resolves the positional "$" in session-scoped paths.
		filter = append(filter, bson.E{Key: "trackingData.sessions.sessionId", Value: sessionID})
	}

	var update bson.D
	if len(inc) > 0 {
		update = append(update, bson.E{Key: "$inc", Value: inc})
	}
	if len(push) > 0 {
		update = append(update, bson.E{Key: "$push", Value: push})
	}
	if len(addToSet) > 0 {
		update = append(update, bson.E{Key: "$addToSet", Value: addToSet})
	}
	if len(set) > 0 {
		update = append(update, bson.E{Key: "$set", Value: set})
	}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("atomic apply: %w", err)
	}
	if res.MatchedCount == 0 {
		// User gone or target session absent; caller re-resolves and retries.
		return ErrConflict
	}
	return nil
}

// CreateUser provisions a new user record.
func (s *MongoStore) CreateUser(ctx context.Context, rec *models.UserRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("create user: empty user ID")
	}

	_, err := s.coll.InsertOne(ctx, rec)
	if mongo.IsDuplicateKeyError(err) {
		return ErrUserExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// Close disconnects the MongoDB client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
