package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/cache"
	"pulse/internal/model"
	"pulse/internal/observability"
	"pulse/internal/repository"
	"pulse/internal/service"
	"pulse/internal/transport/rest/middleware"
	"pulse/internal/transport/ws"
)

type memSurveys struct {
	mu      sync.Mutex
	surveys map[string]model.MicroSurvey
}

func (m *memSurveys) Create(ctx context.Context, s *model.MicroSurvey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surveys[s.ID] = *s
	return nil
}

func (m *memSurveys) GetByID(ctx context.Context, id string) (*model.MicroSurvey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memSurveys) ListByTenant(ctx context.Context, tenantID string) ([]*model.MicroSurvey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MicroSurvey
	for _, s := range m.surveys {
		if s.TenantID == tenantID {
			s := s
			out = append(out, &s)
		}
	}
	return out, nil
}

func (m *memSurveys) UpdateStatus(ctx context.Context, id string, from, to model.SurveyStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	s.UpdatedAt = at
	m.surveys[id] = s
	return true, nil
}

type memInvitations struct {
	mu  sync.Mutex
	inv map[string]model.Invitation
}

func (m *memInvitations) CreateMany(ctx context.Context, invitations []*model.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range invitations {
		m.inv[inv.Token] = *inv
	}
	return nil
}

func (m *memInvitations) Consume(ctx context.Context, token, surveyID, submissionID string, at time.Time) (*model.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.inv[token]
	if !ok || inv.SurveyID != surveyID {
		return nil, repository.ErrInvitationNotFound
	}
	if inv.Consumed {
		return nil, repository.ErrInvitationConsumed
	}
	inv.Consumed, inv.ConsumedBy, inv.ConsumedAt = true, submissionID, &at
	m.inv[token] = inv
	return &inv, nil
}

func (m *memInvitations) Release(ctx context.Context, token, submissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.inv[token]; ok && inv.ConsumedBy == submissionID {
		inv.Consumed, inv.ConsumedBy, inv.ConsumedAt = false, "", nil
		m.inv[token] = inv
	}
	return nil
}

type memReports struct {
	mu     sync.Mutex
	finals map[string]*model.FinalSnapshot
}

func (m *memReports) SaveFinal(ctx context.Context, s *model.FinalSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finals[s.SurveyID] = s
	return nil
}

func (m *memReports) GetFinal(ctx context.Context, surveyID string) (*model.FinalSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finals[surveyID], nil
}

type testServer struct {
	*httptest.Server
	auth *service.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	store := cache.NewMemoryAggregateCache()
	reportRepo := &memReports{finals: map[string]*model.FinalSnapshot{}}
	invitationRepo := &memInvitations{inv: map[string]model.Invitation{}}

	auth := service.NewAuthService("router-test-secret")
	surveys := service.NewSurveyService(&memSurveys{surveys: map[string]model.MicroSurvey{}}, nil, logger)
	live := service.NewLiveService(surveys, store, reportRepo, 0, metrics, logger)
	reports := service.NewReportService(reportRepo, store, surveys, 0, logger)
	surveys.SetReportService(reports)
	hub := ws.NewHub(metrics, logger)
	t.Cleanup(hub.Stop)
	surveys.SetBroadcaster(hub)
	live.SetBroadcaster(hub)

	accumulator := service.NewAccumulator(store, service.DefaultRetryPolicy(), metrics, logger)
	submissions := service.NewSubmissionService(surveys, invitationRepo, service.NewNormalizer(nil, 0), accumulator, live, metrics, logger)

	srv := httptest.NewServer(NewRouter(&Container{
		AuthService:       auth,
		SurveyService:     surveys,
		InvitationService: service.NewInvitationService(surveys, invitationRepo, logger),
		SubmissionService: submissions,
		LiveService:       live,
		ReportService:     reports,
		WSHub:             hub,
		Metrics:           metrics,
		Gatherer:          reg,
		SubmitLimiter:     middleware.NewRateLimiter(1000, 1000),
		Logger:            logger,
	}))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, auth: auth}
}

func (s *testServer) token(t *testing.T, caller model.Caller) string {
	t.Helper()
	tok, err := s.auth.IssueToken(caller, time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}, out interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

var (
	hrAdmin  = model.Caller{TenantID: "acme", UserID: "hr-1", Role: model.RoleAdmin}
	employee = model.Caller{TenantID: "acme", UserID: "alice", Role: model.RoleParticipant}
	outsider = model.Caller{TenantID: "globex", UserID: "mallory", Role: model.RoleAdmin}
)

func pulseDefinition() map[string]interface{} {
	return map[string]interface{}{
		"title":       "Monday pulse",
		"targetCount": 4,
		"window": map[string]interface{}{
			"start":       time.Now().Add(-time.Minute).UTC().Format(time.RFC3339),
			"durationSec": 3600,
		},
		"questions": []map[string]interface{}{
			{"id": "team", "kind": "single_choice", "required": true, "options": []string{"platform", "product"}},
			{"id": "mood", "kind": "scale", "scaleRange": map[string]int{"min": 1, "max": 5}},
			{"id": "notes", "kind": "free_text"},
		},
	}
}

func TestSurveyLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, hrAdmin)
	alice := srv.token(t, employee)

	var survey model.MicroSurvey
	resp := srv.do(t, "POST", "/v1/microsurveys", admin, pulseDefinition(), &survey)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, model.SurveyDraft, survey.Status)
	base := "/v1/microsurveys/" + survey.ID

	resp = srv.do(t, "POST", base+"/responses", alice, map[string]interface{}{
		"answers": []map[string]interface{}{{"questionId": "team", "value": 0}},
	}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode, "draft surveys reject submissions")

	resp = srv.do(t, "POST", base+"/status", admin, model.StatusRequest{Status: model.SurveyActive}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var invites model.InvitationResponse
	resp = srv.do(t, "POST", base+"/invitations", admin, model.InvitationRequest{Count: 2}, &invites)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Len(t, invites.Tokens, 2)

	submit := func(token string, team int, mood int, notes string) *http.Response {
		return srv.do(t, "POST", base+"/responses", alice, map[string]interface{}{
			"answers": []map[string]interface{}{
				{"questionId": "team", "value": team},
				{"questionId": "mood", "value": mood},
				{"questionId": "notes", "value": notes},
			},
			"invitationToken": token,
		}, nil)
	}

	var result model.SubmitResult
	resp = srv.do(t, "POST", base+"/responses", alice, map[string]interface{}{
		"answers": []map[string]interface{}{
			{"questionId": "team", "value": 1},
			{"questionId": "mood", "value": 5},
			{"questionId": "notes", "value": "Loving the new roadmap"},
		},
		"invitationToken": invites.Tokens[0],
	}, &result)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), result.ResponseCount)

	assert.Equal(t, http.StatusForbidden, submit(invites.Tokens[0], 0, 3, "again").StatusCode)
	assert.Equal(t, http.StatusUnprocessableEntity, submit(invites.Tokens[1], 5, 3, "bad option").StatusCode)
	assert.Equal(t, http.StatusOK, submit(invites.Tokens[1], 0, 1, "roadmap unclear").StatusCode)

	var snap model.LiveSnapshot
	resp = srv.do(t, "GET", base+"/live?top=3", alice, nil, &snap)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), snap.ResponseCount)
	assert.Equal(t, map[string]int64{"0": 1, "1": 1}, snap.OptionTally["team"])
	assert.Equal(t, model.WordCount{Word: "roadmap", Count: 2}, snap.TopWords[0])
	assert.Equal(t, int64(4), snap.Sentiment.SampleCount)
	assert.InDelta(t, 0.5, snap.ParticipationRate, 1e-9)
	assert.NotEmpty(t, resp.Header.Get("ETag"))

	resp = srv.do(t, "GET", base+"/live", srv.token(t, outsider), nil, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = srv.do(t, "GET", base+"/report", admin, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = srv.do(t, "POST", base+"/status", admin, model.StatusRequest{Status: model.SurveyCompleted}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = srv.do(t, "POST", base+"/status", admin, model.StatusRequest{Status: model.SurveyActive}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var report model.FinalSnapshot
	resp = srv.do(t, "GET", base+"/report", admin, nil, &report)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(2), report.Live.ResponseCount)
	assert.Equal(t, model.SurveyCompleted, report.Live.Status)

	var list struct {
		Surveys []model.MicroSurvey `json:"surveys"`
	}
	resp = srv.do(t, "GET", "/v1/microsurveys", admin, nil, &list)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, list.Surveys, 1)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, "POST", "/v1/microsurveys", srv.token(t, employee), pulseDefinition(), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = srv.do(t, "GET", "/v1/microsurveys", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = srv.do(t, "POST", "/v1/microsurveys/s1/responses", "", map[string]interface{}{}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateRejectsInvalidDefinitions(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.token(t, hrAdmin)

	noScale := pulseDefinition()
	noScale["questions"] = []map[string]interface{}{{"id": "mood", "kind": "scale"}}
	noWindow := pulseDefinition()
	noWindow["window"] = map[string]interface{}{"durationSec": 60}

	for name, body := range map[string]map[string]interface{}{"no scale": noScale, "no window": noWindow} {
		t.Run(name, func(t *testing.T) {
			resp := srv.do(t, "POST", "/v1/microsurveys", admin, body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestParallelSubmissionsOverHTTP(t *testing.T) {
	const n = 40
	srv := newTestServer(t)
	admin := srv.token(t, hrAdmin)
	alice := srv.token(t, employee)

	var survey model.MicroSurvey
	require.Equal(t, http.StatusCreated, srv.do(t, "POST", "/v1/microsurveys", admin, pulseDefinition(), &survey).StatusCode)
	base := "/v1/microsurveys/" + survey.ID
	require.Equal(t, http.StatusOK, srv.do(t, "POST", base+"/status", admin, model.StatusRequest{Status: model.SurveyActive}, nil).StatusCode)

	var wg sync.WaitGroup
	codes := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp := srv.do(t, "POST", base+"/responses", alice, map[string]interface{}{
				"answers": []map[string]interface{}{
					{"questionId": "team", "value": i % 2},
					{"questionId": "mood", "value": 5},
				},
			}, nil)
			codes <- resp.StatusCode
		}(i)
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}

	var snap model.LiveSnapshot
	require.Equal(t, http.StatusOK, srv.do(t, "GET", base+"/live", admin, nil, &snap).StatusCode)
	assert.Equal(t, int64(n), snap.ResponseCount)
	assert.Equal(t, int64(n), snap.OptionTally["team"]["0"]+snap.OptionTally["team"]["1"])
	assert.InDelta(t, 1.0, snap.Sentiment.Average, 1e-9)
	assert.Equal(t, model.EngagementHigh, snap.EngagementLevel)
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp := srv.do(t, "GET", "/health", "", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pulse_live_subscribers")
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest("OPTIONS", fmt.Sprintf("%s/v1/microsurveys/s1/responses", srv.URL), nil)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
