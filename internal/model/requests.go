package model

// CreateSurveyRequest is the body of POST /microsurveys
type CreateSurveyRequest struct {
	Title       string       `json:"title" validate:"required,max=200"`
	Window      SurveyWindow `json:"window"`
	TargetCount int          `json:"targetCount" validate:"gte=0"`
	Questions   []Question   `json:"questions" validate:"required,min=1,max=50"`
}

// StatusRequest is the body of POST /microsurveys/{id}/status
type StatusRequest struct {
	Status SurveyStatus `json:"status" validate:"required"`
}

// InvitationRequest is the body of POST /microsurveys/{id}/invitations
type InvitationRequest struct {
	Count int `json:"count" validate:"gte=1,lte=1000"`
}

// InvitationResponse lists newly issued invitation tokens
type InvitationResponse struct {
	SurveyID string   `json:"surveyId"`
	Tokens   []string `json:"tokens"`
}
