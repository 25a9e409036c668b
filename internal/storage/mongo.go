package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/dymasius12/factory-motor-monitoring/internal/aggregator"
	"github.com/dymasius12/factory-motor-monitoring/internal/models"
)

const alertsCollection = "motor_alerts"

// Mongo stores alerts as documents keyed by event ID.
type Mongo struct {
	client     *mongo.Client
	collection *mongo.Collection
}

type alertDoc struct {
	ID          string    `bson:"_id"`
	MotorID     string    `bson:"motor_id"`
	SensorType  string    `bson:"sensor_type"`
	Value       float64   `bson:"value"`
	AlertType   string    `bson:"alert_type"`
	Timestamp   time.Time `bson:"timestamp"`
	PublishedAt time.Time `bson:"published_at,omitempty"`
	CreatedAt   time.Time `bson:"created_at"`
}

// NewMongo connects, pings and creates the query indexes.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo unreachable: %w", err)
	}

	collection := client.Database(database).Collection(alertsCollection)
	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "motor_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	}
	if _, err := collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo indexes: %w", err)
	}

	return &Mongo{client: client, collection: collection}, nil
}

func (m *Mongo) Name() string { return "mongo" }

// SaveAlerts inserts unordered; documents already present are skipped.
func (m *Mongo) SaveAlerts(ctx context.Context, events []models.AlertEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := time.Now().UTC()
	docs := make([]any, len(events))
	for i, e := range events {
		docs[i] = alertDoc{
			ID:          eventID(e),
			MotorID:     e.MotorID,
			SensorType:  string(e.SensorType),
			Value:       e.Value,
			AlertType:   string(e.AlertType),
			Timestamp:   e.OccurredAt.UTC(),
			PublishedAt: e.PublishedAt.UTC(),
			CreatedAt:   now,
		}
	}

	_, err := m.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err != nil && !onlyDuplicates(err) {
		return fmt.Errorf("mongo insert alerts: %w", err)
	}
	return nil
}

// onlyDuplicates reports whether every write error is a duplicate key.
func onlyDuplicates(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != 11000 {
			return false
		}
	}
	return true
}

func (m *Mongo) DailyCounts(ctx context.Context, start, end time.Time) ([]aggregator.DailyCount, error) {
	if err := checkRange(start, end); err != nil {
		return nil, err
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"timestamp": bson.M{"$gte": start.UTC(), "$lt": end.UTC()},
		}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{
				"motor_id": "$motor_id",
				"date":     bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$timestamp"}},
			},
			"count": bson.M{"$sum": 1},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id.date", Value: -1}, {Key: "_id.motor_id", Value: 1}}}},
	}

	cursor, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("mongo daily counts: %w", err)
	}
	defer cursor.Close(ctx)

	var results []struct {
		ID struct {
			MotorID string `bson:"motor_id"`
			Date    string `bson:"date"`
		} `bson:"_id"`
		Count int `bson:"count"`
	}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, fmt.Errorf("mongo decode daily counts: %w", err)
	}

	out := make([]aggregator.DailyCount, 0, len(results))
	for _, r := range results {
		out = append(out, aggregator.DailyCount{MotorID: r.ID.MotorID, Date: r.ID.Date, Count: r.Count})
	}
	return out, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
