package model

import "time"

// Invitation is a single-use credential granting one participant one response
type Invitation struct {
	Token      string     `json:"token" bson:"_id"`
	SurveyID   string     `json:"surveyId" bson:"surveyId"`
	TenantID   string     `json:"tenantId" bson:"tenantId"`
	Consumed   bool       `json:"consumed" bson:"consumed"`
	ConsumedBy string     `json:"consumedBy,omitempty" bson:"consumedBy,omitempty"` // submission id
	ConsumedAt *time.Time `json:"consumedAt,omitempty" bson:"consumedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" bson:"createdAt"`
}
