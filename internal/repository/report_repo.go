package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pulse/internal/model"
)

// ReportRepo handles MongoDB operations for aggregates frozen at completion
type ReportRepo interface {
	SaveFinal(ctx context.Context, snapshot *model.FinalSnapshot) error
	GetFinal(ctx context.Context, surveyID string) (*model.FinalSnapshot, error)
}

type reportRepo struct {
	snapshots *mongo.Collection
}

// NewReportRepo creates a new report repository
func NewReportRepo(db *mongo.Database) ReportRepo {
	return &reportRepo{
		snapshots: db.Collection(ReportsCollection),
	}
}

func (r *reportRepo) SaveFinal(ctx context.Context, snapshot *model.FinalSnapshot) error {
	opts := options.Replace().SetUpsert(true)
	_, err := r.snapshots.ReplaceOne(ctx, bson.M{"surveyId": snapshot.SurveyID}, snapshot, opts)
	return err
}

func (r *reportRepo) GetFinal(ctx context.Context, surveyID string) (*model.FinalSnapshot, error) {
	var snapshot model.FinalSnapshot
	err := r.snapshots.FindOne(ctx, bson.M{"surveyId": surveyID}).Decode(&snapshot)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
