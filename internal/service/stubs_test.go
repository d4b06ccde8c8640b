package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"pulse/internal/cache"
	"pulse/internal/model"
	"pulse/internal/repository"
)

var errStoreDown = errors.New("store down")

type stubSurveyRepo struct {
	mu      sync.Mutex
	surveys map[string]*model.MicroSurvey
	fail    bool
	loseCAS bool
}

func newStubSurveyRepo(surveys ...*model.MicroSurvey) *stubSurveyRepo {
	r := &stubSurveyRepo{surveys: make(map[string]*model.MicroSurvey)}
	for _, s := range surveys {
		cp := *s
		r.surveys[s.ID] = &cp
	}
	return r
}

func (r *stubSurveyRepo) Create(ctx context.Context, survey *model.MicroSurvey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errStoreDown
	}
	cp := *survey
	r.surveys[survey.ID] = &cp
	return nil
}

func (r *stubSurveyRepo) GetByID(ctx context.Context, id string) (*model.MicroSurvey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errStoreDown
	}
	s, ok := r.surveys[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *stubSurveyRepo) ListByTenant(ctx context.Context, tenantID string) ([]*model.MicroSurvey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, errStoreDown
	}
	out := []*model.MicroSurvey{}
	for _, s := range r.surveys {
		if s.TenantID == tenantID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *stubSurveyRepo) UpdateStatus(ctx context.Context, id string, from, to model.SurveyStatus, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return false, errStoreDown
	}
	s, ok := r.surveys[id]
	if !ok || s.Status != from || r.loseCAS {
		return false, nil
	}
	s.Status = to
	s.UpdatedAt = at
	return true, nil
}

func (r *stubSurveyRepo) status(id string) model.SurveyStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.surveys[id].Status
}

type stubInvitationRepo struct {
	mu          sync.Mutex
	invitations map[string]*model.Invitation
	released    []string
}

func newStubInvitationRepo() *stubInvitationRepo {
	return &stubInvitationRepo{invitations: make(map[string]*model.Invitation)}
}

func (r *stubInvitationRepo) add(surveyID string, tokens ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tokens {
		r.invitations[t] = &model.Invitation{Token: t, SurveyID: surveyID}
	}
}

func (r *stubInvitationRepo) CreateMany(ctx context.Context, invitations []*model.Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range invitations {
		cp := *inv
		r.invitations[inv.Token] = &cp
	}
	return nil
}

func (r *stubInvitationRepo) Consume(ctx context.Context, token, surveyID, submissionID string, at time.Time) (*model.Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[token]
	if !ok || inv.SurveyID != surveyID {
		return nil, repository.ErrInvitationNotFound
	}
	if inv.Consumed {
		return nil, repository.ErrInvitationConsumed
	}
	inv.Consumed = true
	inv.ConsumedBy = submissionID
	inv.ConsumedAt = &at
	cp := *inv
	return &cp, nil
}

func (r *stubInvitationRepo) Release(ctx context.Context, token, submissionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inv, ok := r.invitations[token]
	if !ok || !inv.Consumed || inv.ConsumedBy != submissionID {
		return nil
	}
	inv.Consumed = false
	inv.ConsumedBy = ""
	inv.ConsumedAt = nil
	r.released = append(r.released, token)
	return nil
}

func (r *stubInvitationRepo) consumed(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.invitations[token].Consumed
}

type stubReportRepo struct {
	mu        sync.Mutex
	snapshots map[string]*model.FinalSnapshot
}

func newStubReportRepo() *stubReportRepo {
	return &stubReportRepo{snapshots: make(map[string]*model.FinalSnapshot)}
}

func (r *stubReportRepo) SaveFinal(ctx context.Context, snapshot *model.FinalSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots[snapshot.SurveyID] = snapshot
	return nil
}

func (r *stubReportRepo) GetFinal(ctx context.Context, surveyID string) (*model.FinalSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshots[surveyID], nil
}

type broadcastMsg struct {
	surveyID string
	msgType  string
	payload  interface{}
}

type stubBroadcaster struct {
	mu           sync.Mutex
	subscribers  int
	messages     []broadcastMsg
	disconnected []string
	sent         chan struct{}
}

func newStubBroadcaster(subscribers int) *stubBroadcaster {
	return &stubBroadcaster{subscribers: subscribers, sent: make(chan struct{}, 64)}
}

func (b *stubBroadcaster) BroadcastToSurvey(surveyID string, msgType string, payload interface{}) {
	b.mu.Lock()
	b.messages = append(b.messages, broadcastMsg{surveyID, msgType, payload})
	b.mu.Unlock()
	select {
	case b.sent <- struct{}{}:
	default:
	}
}

func (b *stubBroadcaster) DisconnectSurvey(surveyID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnected = append(b.disconnected, surveyID)
}

func (b *stubBroadcaster) Subscribers(surveyID string) int {
	return b.subscribers
}

func (b *stubBroadcaster) byType(msgType string) []broadcastMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []broadcastMsg
	for _, m := range b.messages {
		if m.msgType == msgType {
			out = append(out, m)
		}
	}
	return out
}

// harness wires the services the way the server does, on in-memory stores
type harness struct {
	now         time.Time
	surveyRepo  *stubSurveyRepo
	invitations *stubInvitationRepo
	reportRepo  *stubReportRepo
	store       cache.AggregateCache
	broadcaster *stubBroadcaster
	surveys     *SurveyService
	live        *LiveService
	reports     *ReportService
	submissions *SubmissionService
	invites     *InvitationService
}

var (
	testNow   = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	adminAcme = &model.Caller{TenantID: "acme", UserID: "hr-1", Role: model.RoleAdmin}
	alice     = &model.Caller{TenantID: "acme", UserID: "alice", Role: model.RoleParticipant}
	mallory   = &model.Caller{TenantID: "globex", UserID: "mallory", Role: model.RoleParticipant}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pulseSurvey() *model.MicroSurvey {
	return &model.MicroSurvey{
		ID:          "s1",
		TenantID:    "acme",
		Title:       "Monday pulse",
		Status:      model.SurveyActive,
		Window:      model.SurveyWindow{Start: testNow.Add(-time.Hour), DurationSec: int64((2 * time.Hour).Seconds())},
		TargetCount: 10,
		Questions: []model.Question{
			{ID: "team", Kind: model.QuestionSingleChoice, Required: true, Options: []string{"platform", "product", "sales"}},
			{ID: "mood", Kind: model.QuestionScale, Scale: &model.ScaleRange{Min: 1, Max: 5}},
			{ID: "notes", Kind: model.QuestionFreeText},
		},
	}
}

func newHarness(t *testing.T, store cache.AggregateCache, surveys ...*model.MicroSurvey) *harness {
	t.Helper()
	if store == nil {
		store = cache.NewMemoryAggregateCache()
	}
	h := &harness{
		now:         testNow,
		surveyRepo:  newStubSurveyRepo(surveys...),
		invitations: newStubInvitationRepo(),
		reportRepo:  newStubReportRepo(),
		store:       store,
		broadcaster: newStubBroadcaster(0),
	}
	logger := discardLogger()
	clock := func() time.Time { return h.now }

	h.surveys = NewSurveyService(h.surveyRepo, nil, logger)
	h.surveys.now = clock
	h.live = NewLiveService(h.surveys, store, h.reportRepo, 5, nil, logger)
	h.reports = NewReportService(h.reportRepo, store, h.surveys, 5, logger)
	h.reports.now = clock
	h.surveys.SetReportService(h.reports)
	h.surveys.SetBroadcaster(h.broadcaster)
	h.live.SetBroadcaster(h.broadcaster)

	acc := NewAccumulator(store, fastPolicy(3), nil, logger)
	h.submissions = NewSubmissionService(h.surveys, h.invitations, NewNormalizer(nil, 0), acc, h.live, nil, logger)
	h.submissions.now = clock
	h.invites = NewInvitationService(h.surveys, h.invitations, logger)
	return h
}

func answers(pairs ...string) *model.SubmitRequest {
	req := &model.SubmitRequest{}
	for i := 0; i+1 < len(pairs); i += 2 {
		req.Answers = append(req.Answers, model.AnswerInput{QuestionID: pairs[i], Value: []byte(pairs[i+1])})
	}
	return req
}
