package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maneesh/musicbox/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Collection names
const (
	UploadsCollection = "uploads"
	UsersCollection   = "users"
)

// MongoClient is a DocumentStore backed by MongoDB
type MongoClient struct {
	client  *mongo.Client
	uploads *mongo.Collection
	users   *mongo.Collection
}

// NewMongoClient connects, pings and ensures indexes
func NewMongoClient(ctx context.Context, uri, database string) (*MongoClient, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(database)
	mc := &MongoClient{
		client:  client,
		uploads: db.Collection(UploadsCollection),
		users:   db.Collection(UsersCollection),
	}

	if err := mc.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return mc, nil
}

// Close disconnects the client
func (mc *MongoClient) Close(ctx context.Context) error {
	return mc.client.Disconnect(ctx)
}

func (mc *MongoClient) ensureIndexes(ctx context.Context) error {
	_, err := mc.uploads.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "uploadedBy", Value: 1}}},
		{Keys: bson.D{{Key: "uploadedAt", Value: -1}}},
		{Keys: bson.D{{Key: "playCount", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create upload indexes: %w", err)
	}

	_, err = mc.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user index: %w", err)
	}
	return nil
}

// CreateUpload inserts an upload record with tracing
func (mc *MongoClient) CreateUpload(ctx context.Context, rec *models.UploadRecord) error {
	ctx, span := tracer.Start(ctx, "mongo.create_upload",
		trace.WithAttributes(
			attribute.String("title", rec.Title),
			attribute.String("uploaded_by", rec.UploadedBy),
		),
	)
	defer span.End()

	rec.ID = primitive.NewObjectID().Hex()
	if _, err := mc.uploads.InsertOne(ctx, rec); err != nil {
		rec.ID = ""
		span.RecordError(err)
		return fmt.Errorf("failed to insert upload: %w", err)
	}

	span.SetAttributes(attribute.String("upload_id", rec.ID))
	return nil
}

// ListRecentUploads returns newest uploads first
func (mc *MongoClient) ListRecentUploads(ctx context.Context, limit int) ([]*models.UploadRecord, error) {
	ctx, span := tracer.Start(ctx, "mongo.list_recent_uploads",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	opts := options.Find().SetSort(bson.D{{Key: "uploadedAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := mc.uploads.Find(ctx, bson.M{}, opts)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer cursor.Close(ctx)

	records := make([]*models.UploadRecord, 0)
	if err := cursor.All(ctx, &records); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to decode uploads: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(records)))
	return records, nil
}

// IncrementPlayCount bumps playCount by one
func (mc *MongoClient) IncrementPlayCount(ctx context.Context, uploadID string) error {
	ctx, span := tracer.Start(ctx, "mongo.increment_play_count",
		trace.WithAttributes(attribute.String("upload_id", uploadID)),
	)
	defer span.End()

	res, err := mc.uploads.UpdateOne(ctx,
		bson.M{"_id": uploadID},
		bson.M{"$inc": bson.M{"playCount": 1}},
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update play count: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("upload %q: %w", uploadID, ErrNotFound)
	}
	return nil
}

// CreateUser inserts a new user aggregate
func (mc *MongoClient) CreateUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "mongo.create_user",
		trace.WithAttributes(attribute.String("username", user.Username)),
	)
	defer span.End()

	doc := user.Clone()
	if doc.SavedSongs == nil {
		doc.SavedSongs = []models.SavedSongEntry{}
	}

	if _, err := mc.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("user %q: %w", user.Username, ErrDuplicate)
		}
		span.RecordError(err)
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindUser loads the full user aggregate
func (mc *MongoClient) FindUser(ctx context.Context, username string) (*models.User, error) {
	ctx, span := tracer.Start(ctx, "mongo.find_user",
		trace.WithAttributes(attribute.String("username", username)),
	)
	defer span.End()

	var user models.User
	err := mc.users.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &user, nil
}

// SaveUser replaces the stored aggregate. There is no version check: the
// last writer wins.
func (mc *MongoClient) SaveUser(ctx context.Context, user *models.User) error {
	ctx, span := tracer.Start(ctx, "mongo.save_user",
		trace.WithAttributes(
			attribute.String("username", user.Username),
			attribute.Int("saved_songs", len(user.SavedSongs)),
		),
	)
	defer span.End()

	res, err := mc.users.ReplaceOne(ctx, bson.M{"username": user.Username}, user)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save user: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %q: %w", user.Username, ErrNotFound)
	}
	return nil
}
