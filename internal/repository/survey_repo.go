package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pulse/internal/model"
)

// SurveyRepo handles MongoDB operations for micro-survey definitions
type SurveyRepo interface {
	Create(ctx context.Context, survey *model.MicroSurvey) error
	GetByID(ctx context.Context, id string) (*model.MicroSurvey, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*model.MicroSurvey, error)
	// UpdateStatus moves the survey from one status to another only if it is still in from.
	// It reports false when another writer changed the status first.
	UpdateStatus(ctx context.Context, id string, from, to model.SurveyStatus, at time.Time) (bool, error)
}

type surveyRepo struct {
	collection *mongo.Collection
}

// NewSurveyRepo creates a new survey repository
func NewSurveyRepo(db *mongo.Database) SurveyRepo {
	return &surveyRepo{
		collection: db.Collection(SurveysCollection),
	}
}

func (r *surveyRepo) Create(ctx context.Context, survey *model.MicroSurvey) error {
	now := time.Now().UTC()
	if survey.CreatedAt.IsZero() {
		survey.CreatedAt = now
	}
	survey.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, survey)
	return err
}

func (r *surveyRepo) GetByID(ctx context.Context, id string) (*model.MicroSurvey, error) {
	var survey model.MicroSurvey
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&survey)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &survey, nil
}

func (r *surveyRepo) ListByTenant(ctx context.Context, tenantID string) ([]*model.MicroSurvey, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.collection.Find(ctx, bson.M{"tenantId": tenantID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	surveys := []*model.MicroSurvey{}
	if err := cursor.All(ctx, &surveys); err != nil {
		return nil, err
	}
	return surveys, nil
}

func (r *surveyRepo) UpdateStatus(ctx context.Context, id string, from, to model.SurveyStatus, at time.Time) (bool, error) {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updatedAt": at}},
	)
	if err != nil {
		return false, err
	}
	return result.MatchedCount == 1, nil
}
