package repository

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	SurveysCollection     = "microsurveys"
	InvitationsCollection = "invitations"
	ReportsCollection     = "final_snapshots"
)

type indexSpec struct {
	collection string
	keys       bson.D
	unique     bool
}

var indexes = []indexSpec{
	{SurveysCollection, bson.D{{Key: "tenantId", Value: 1}, {Key: "createdAt", Value: -1}}, false},
	{InvitationsCollection, bson.D{{Key: "surveyId", Value: 1}, {Key: "consumed", Value: 1}}, false},
	{ReportsCollection, bson.D{{Key: "surveyId", Value: 1}}, true},
}

// EnsureIndexes creates the indexes the repositories query by. Existing indexes are left alone.
func EnsureIndexes(ctx context.Context, db *mongo.Database, logger *slog.Logger) error {
	for _, idx := range indexes {
		coll := db.Collection(idx.collection)
		opts := options.Index().SetUnique(idx.unique)
		if _, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: idx.keys, Options: opts}); err != nil {
			return fmt.Errorf("create index on %s: %w", idx.collection, err)
		}
	}
	logger.Info("mongo indexes ensured", "count", len(indexes))
	return nil
}
