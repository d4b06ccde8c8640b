package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pulse/internal/model"
)

var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationConsumed = errors.New("invitation already consumed")
)

// InvitationRepo handles MongoDB operations for single-use invitation tokens
type InvitationRepo interface {
	CreateMany(ctx context.Context, invitations []*model.Invitation) error
	// Consume atomically marks an unconsumed invitation of surveyID as used by submissionID
	Consume(ctx context.Context, token, surveyID, submissionID string, at time.Time) (*model.Invitation, error)
	// Release undoes a Consume, but only while the invitation is still held by submissionID
	Release(ctx context.Context, token, submissionID string) error
}

type invitationRepo struct {
	collection *mongo.Collection
}

// NewInvitationRepo creates a new invitation repository
func NewInvitationRepo(db *mongo.Database) InvitationRepo {
	return &invitationRepo{
		collection: db.Collection(InvitationsCollection),
	}
}

func (r *invitationRepo) CreateMany(ctx context.Context, invitations []*model.Invitation) error {
	if len(invitations) == 0 {
		return nil
	}
	docs := make([]interface{}, len(invitations))
	for i, inv := range invitations {
		docs[i] = inv
	}
	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

func (r *invitationRepo) Consume(ctx context.Context, token, surveyID, submissionID string, at time.Time) (*model.Invitation, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var inv model.Invitation
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": token, "surveyId": surveyID, "consumed": false},
		bson.M{"$set": bson.M{"consumed": true, "consumedBy": submissionID, "consumedAt": at}},
		opts,
	).Decode(&inv)
	if err == nil {
		return &inv, nil
	}
	if err != mongo.ErrNoDocuments {
		return nil, err
	}

	// Nothing matched: tell a missing token apart from a used one
	n, err := r.collection.CountDocuments(ctx, bson.M{"_id": token, "surveyId": surveyID})
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrInvitationNotFound
	}
	return nil, ErrInvitationConsumed
}

func (r *invitationRepo) Release(ctx context.Context, token, submissionID string) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": token, "consumed": true, "consumedBy": submissionID},
		bson.M{
			"$set":   bson.M{"consumed": false},
			"$unset": bson.M{"consumedBy": "", "consumedAt": ""},
		},
	)
	return err
}
