package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"pulse/internal/app"
	"pulse/internal/config"
	"pulse/internal/logging"
	"pulse/internal/model"
	"pulse/internal/repository"
	"pulse/internal/service"
)

func main() {
	tenant := flag.String("tenant", "acme", "tenant the demo survey belongs to")
	invites := flag.Int("invitations", 5, "number of invitation tokens to issue")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the printed dev tokens")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel, "text")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := app.ConnectMongo(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.MongoDB)
	if err := repository.EnsureIndexes(ctx, db, logger); err != nil {
		log.Fatalf("Failed to create indexes: %v", err)
	}

	invitationRepo := repository.NewInvitationRepo(db)
	surveys := service.NewSurveyService(repository.NewSurveyRepo(db), nil, logger)
	auth := service.NewAuthService(cfg.JWTSecret)

	admin := &model.Caller{TenantID: *tenant, UserID: "seed-admin", Role: model.RoleAdmin}
	participant := model.Caller{TenantID: *tenant, UserID: "seed-participant", Role: model.RoleParticipant}

	survey, err := surveys.Create(ctx, admin, &model.CreateSurveyRequest{
		Title:       "Weekly team pulse",
		Window:      model.SurveyWindow{Start: time.Now().UTC(), DurationSec: int64((7 * 24 * time.Hour).Seconds())},
		TargetCount: 25,
		Questions: []model.Question{
			{
				ID:       "team",
				Kind:     model.QuestionSingleChoice,
				Prompt:   "Which team are you on?",
				Required: true,
				Options:  []string{"Platform", "Product", "Sales", "Support"},
			},
			{
				ID:     "workload",
				Kind:   model.QuestionScale,
				Prompt: "How manageable was your workload this week?",
				Scale:  &model.ScaleRange{Min: 1, Max: 5},
			},
			{
				ID:        "highlight",
				Kind:      model.QuestionFreeText,
				Prompt:    "What went well, and what got in your way?",
				MaxLength: 1000,
			},
		},
	})
	if err != nil {
		log.Fatalf("Failed to create survey: %v", err)
	}
	if _, err := surveys.Transition(ctx, admin, survey.ID, model.SurveyActive); err != nil {
		log.Fatalf("Failed to activate survey: %v", err)
	}

	tokens, err := service.NewInvitationService(surveys, invitationRepo, logger).Issue(ctx, admin, survey.ID, *invites)
	if err != nil {
		log.Fatalf("Failed to issue invitations: %v", err)
	}

	adminToken, err := auth.IssueToken(*admin, *tokenTTL)
	if err != nil {
		log.Fatalf("Failed to issue admin token: %v", err)
	}
	participantToken, err := auth.IssueToken(participant, *tokenTTL)
	if err != nil {
		log.Fatalf("Failed to issue participant token: %v", err)
	}

	fmt.Printf("Created active survey '%s' (%s) for tenant '%s'\n\n", survey.Title, survey.ID, *tenant)
	fmt.Printf("Admin token:\n  %s\n\n", adminToken)
	fmt.Printf("Participant token:\n  %s\n\n", participantToken)
	fmt.Println("Invitation tokens:")
	for _, t := range tokens {
		fmt.Printf("  %s\n", t)
	}
	fmt.Printf("\nTry:\n  curl -X POST localhost:%s/v1/microsurveys/%s/responses \\\n", cfg.Port, survey.ID)
	fmt.Printf("    -H 'Authorization: Bearer <participant token>' \\\n")
	fmt.Printf(`    -d '{"answers":[{"questionId":"team","value":0},{"questionId":"workload","value":4}],"invitationToken":"%s"}'`+"\n", tokens[0])
}
