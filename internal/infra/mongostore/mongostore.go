package mongostore

import (
	"context"
	"fmt"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	subscribersCollection = "subscribers"
	bulkBatchSize         = 100
)

type subscriberDocument struct {
	ID        int64                 `bson:"_id"`
	Watchlist []string              `bson:"watchlist"`
	Schedule  domain.ScheduleRecord `bson:"schedule"`
	Active    bool                  `bson:"active"`
	CreatedAt time.Time             `bson:"created_at"`
	UpdatedAt time.Time             `bson:"updated_at"`
}

type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

func Connect(ctx context.Context, uri, database string, logger *zap.Logger) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(10).
		SetConnectTimeout(30 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	logger.Info("mongo connected", zap.String("database", database))
	return &Store{
		client:     client,
		collection: client.Database(database).Collection(subscribersCollection),
		logger:     logger,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Save upserts every subscriber document and removes the ones missing from the
// snapshot.
func (s *Store) Save(ctx context.Context, subscribers []domain.Subscriber) error {
	operations := make([]mongo.WriteModel, 0, len(subscribers))
	ids := make([]int64, 0, len(subscribers))
	for _, sub := range subscribers {
		doc := toDocument(sub)
		operations = append(operations, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
		ids = append(ids, sub.ID)
	}

	for i := 0; i < len(operations); i += bulkBatchSize {
		end := i + bulkBatchSize
		if end > len(operations) {
			end = len(operations)
		}
		if _, err := s.collection.BulkWrite(ctx, operations[i:end]); err != nil {
			return fmt.Errorf("bulk save subscribers: %w", err)
		}
	}

	if _, err := s.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$nin": ids}}); err != nil {
		return fmt.Errorf("prune subscribers: %w", err)
	}
	s.logger.Debug("subscribers saved to mongo", zap.Int("count", len(operations)))
	return nil
}

func (s *Store) Load(ctx context.Context) ([]domain.Subscriber, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find subscribers: %w", err)
	}
	defer cursor.Close(ctx)

	var subscribers []domain.Subscriber
	for cursor.Next(ctx) {
		var doc subscriberDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode subscriber: %w", err)
		}
		subscribers = append(subscribers, fromDocument(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return subscribers, nil
}

func toDocument(sub domain.Subscriber) subscriberDocument {
	watchlist := sub.Watchlist
	if watchlist == nil {
		watchlist = []string{}
	}
	return subscriberDocument{
		ID:        sub.ID,
		Watchlist: watchlist,
		Schedule:  domain.RecordOf(sub.Schedule),
		Active:    sub.Active,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

func fromDocument(doc subscriberDocument) domain.Subscriber {
	spec, err := doc.Schedule.Spec()
	if err != nil {
		spec = nil
	}
	return domain.Subscriber{
		ID:        doc.ID,
		Watchlist: doc.Watchlist,
		Schedule:  spec,
		Active:    doc.Active,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
}
