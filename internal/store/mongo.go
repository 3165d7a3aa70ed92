package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

const (
	usersCollection   = "users"
	recordsCollection = "irrigationrecords"
)

type accountDoc struct {
	ID       primitive.ObjectID `bson:"_id,omitempty"`
	Username string             `bson:"username"`
	Password string             `bson:"password"`
	Language string             `bson:"language"`
	Location string             `bson:"location,omitempty"`
}

type recordDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UserID      string             `bson:"userId"`
	City        string             `bson:"city"`
	Temperature float64            `bson:"temperature"`
	Condition   string             `bson:"condition"`
	Advice      string             `bson:"advice"`
	Irrigate    bool               `bson:"irrigate"`
	Date        time.Time          `bson:"date"`
}

// MongoConfig configures MongoStore.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// MongoStore persists accounts and history in MongoDB.
type MongoStore struct {
	client  *mongo.Client
	users   *mongo.Collection
	records *mongo.Collection
}

// NewMongoStore connects, verifies the connection and ensures indexes.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "irrigation"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:  client,
		users:   db.Collection(usersCollection),
		records: db.Collection(recordsCollection),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	_, err = s.records.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create records index: %w", err)
	}
	return nil
}

func (s *MongoStore) CreateAccount(ctx context.Context, acct models.Account) (models.Account, error) {
	// The unique index is authoritative; the lookup gives a clean error on the common path.
	if _, err := s.AccountByUsername(ctx, acct.Username); err == nil {
		return models.Account{}, ErrDuplicateUsername
	} else if !errors.Is(err, ErrNotFound) {
		return models.Account{}, err
	}

	doc := accountDoc{
		ID:       primitive.NewObjectID(),
		Username: acct.Username,
		Password: acct.PasswordHash,
		Language: acct.Language,
		Location: acct.Location,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Account{}, ErrDuplicateUsername
		}
		return models.Account{}, fmt.Errorf("insert account: %w", err)
	}
	acct.ID = doc.ID.Hex()
	return acct, nil
}

func (s *MongoStore) AccountByUsername(ctx context.Context, username string) (models.Account, error) {
	return s.findAccount(ctx, bson.M{"username": username})
}

func (s *MongoStore) AccountByID(ctx context.Context, id string) (models.Account, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return models.Account{}, ErrInvalidID
	}
	return s.findAccount(ctx, bson.M{"_id": oid})
}

func (s *MongoStore) findAccount(ctx context.Context, filter bson.M) (models.Account, error) {
	var doc accountDoc
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Account{}, ErrNotFound
		}
		return models.Account{}, fmt.Errorf("find account: %w", err)
	}
	return models.Account{
		ID:           doc.ID.Hex(),
		Username:     doc.Username,
		PasswordHash: doc.Password,
		Language:     doc.Language,
		Location:     doc.Location,
	}, nil
}

func (s *MongoStore) AddRecord(ctx context.Context, rec models.HistoryRecord) (models.HistoryRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	doc := recordDoc{
		ID:          primitive.NewObjectID(),
		UserID:      rec.UserID,
		City:        rec.City,
		Temperature: rec.Temperature,
		Condition:   rec.Condition,
		Advice:      rec.Advice,
		Irrigate:    rec.Irrigate,
		Date:        rec.CreatedAt,
	}
	if _, err := s.records.InsertOne(ctx, doc); err != nil {
		return models.HistoryRecord{}, fmt.Errorf("insert record: %w", err)
	}
	rec.ID = doc.ID.Hex()
	return rec, nil
}

func (s *MongoStore) RecentRecords(ctx context.Context, userID string, limit int) ([]models.HistoryRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.records.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]models.HistoryRecord, 0, limit)
	for cur.Next(ctx) {
		var doc recordDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, recordFromDoc(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *MongoStore) DeleteRecord(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return ErrInvalidID
	}
	if _, err := s.records.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func recordFromDoc(doc recordDoc) models.HistoryRecord {
	return models.HistoryRecord{
		ID:          doc.ID.Hex(),
		UserID:      doc.UserID,
		City:        doc.City,
		Temperature: doc.Temperature,
		Condition:   doc.Condition,
		Advice:      doc.Advice,
		Irrigate:    doc.Irrigate,
		CreatedAt:   doc.Date.UTC(),
	}
}
