package store

import (
	"context"
	"fmt"
	"survey-export/internal/models"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements SurveyStore backed by a MongoDB collection
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *logrus.Logger
}

// NewMongoStore connects to MongoDB and returns a survey store
func NewMongoStore(ctx context.Context, uri, database string, logger *logrus.Logger) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	collection := client.Database(database).Collection("surveys")

	indexModel := mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	}
	if _, err := collection.Indexes().CreateOne(connectCtx, indexModel); err != nil {
		logger.WithError(err).Warn("failed to create index on createdAt")
	}

	return &MongoStore{
		client:     client,
		collection: collection,
		logger:     logger,
	}, nil
}

// Close disconnects from MongoDB
func (s *MongoStore) Close(ctx context.Context) error {
	disconnectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.client.Disconnect(disconnectCtx)
}

// Insert stores a new survey record
func (s *MongoStore) Insert(ctx context.Context, record *models.SurveyRecord) (*models.SurveyRecord, error) {
	record.ID = primitive.NewObjectID()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	if _, err := s.collection.InsertOne(ctx, record); err != nil {
		s.logger.WithError(err).Error("failed to insert survey record")
		return nil, fmt.Errorf("failed to insert survey record: %w", err)
	}

	return record, nil
}

// List retrieves all survey records, newest first
func (s *MongoStore) List(ctx context.Context) ([]*models.SurveyRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		s.logger.WithError(err).Error("failed to list survey records")
		return nil, fmt.Errorf("failed to list survey records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*models.SurveyRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode survey records: %w", err)
	}

	return records, nil
}

// FindByID retrieves a survey record by its hex object id
func (s *MongoStore) FindByID(ctx context.Context, id string) (*models.SurveyRecord, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrRecordNotFound
	}

	var record models.SurveyRecord
	err = s.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrRecordNotFound
		}
		s.logger.WithError(err).WithField("id", id).Error("failed to find survey record")
		return nil, fmt.Errorf("failed to find survey record: %w", err)
	}

	return &record, nil
}

// Delete removes a survey record by id
func (s *MongoStore) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrRecordNotFound
	}

	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		s.logger.WithError(err).WithField("id", id).Error("failed to delete survey record")
		return fmt.Errorf("failed to delete survey record: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrRecordNotFound
	}

	return nil
}

// Count returns the number of records matching filters
func (s *MongoStore) Count(ctx context.Context, filters map[string]interface{}) (int64, error) {
	if err := ValidateFilters(filters); err != nil {
		return 0, err
	}

	count, err := s.collection.CountDocuments(ctx, toBSON(filters))
	if err != nil {
		s.logger.WithError(err).Error("failed to count survey records")
		return 0, fmt.Errorf("failed to count survey records: %w", err)
	}

	return count, nil
}

// Stream returns a cursor over matching records, newest first
func (s *MongoStore) Stream(ctx context.Context, filters map[string]interface{}) (Cursor, error) {
	if err := ValidateFilters(filters); err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})

	cursor, err := s.collection.Find(ctx, toBSON(filters), opts)
	if err != nil {
		s.logger.WithError(err).Error("failed to open survey cursor")
		return nil, fmt.Errorf("failed to open survey cursor: %w", err)
	}

	return cursor, nil
}

// toBSON converts a filter payload verbatim into a mongo query document
func toBSON(filters map[string]interface{}) bson.M {
	doc := bson.M{}
	for k, v := range filters {
		if nested, ok := v.(map[string]interface{}); ok {
			doc[k] = toBSON(nested)
			continue
		}
		doc[k] = v
	}
	return doc
}
