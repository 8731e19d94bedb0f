package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-receptionist/internal/audit"
	"voice-receptionist/internal/auth"
	"voice-receptionist/internal/calls"
	"voice-receptionist/internal/config"
	"voice-receptionist/internal/knowledge"
	"voice-receptionist/internal/rbac"

	"github.com/gin-gonic/gin"
)

type stubIngester struct {
	file knowledge.File
	err  error
	got  knowledge.Upload
}

func (s *stubIngester) Ingest(_ context.Context, _ audit.Actor, u knowledge.Upload) (knowledge.File, error) {
	s.got = u
	return s.file, s.err
}

type env struct {
	r        *gin.Engine
	calls    *calls.MemoryRepo
	bots     *knowledge.MemoryRepo
	audit    *audit.MemoryRepo
	ingester *stubIngester
	auth     *auth.Manager
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	e := &env{
		calls:    calls.NewMemoryRepo(),
		bots:     knowledge.NewMemoryRepo(),
		audit:    audit.NewMemoryRepo(),
		ingester: &stubIngester{},
		auth:     m,
	}
	h := Handlers{
		Auth:      m,
		Calls:     calls.NewService(e.calls, audit.NewService(e.audit)),
		Bots:      e.bots,
		Knowledge: e.ingester,
	}

	e.r = gin.New()
	e.r.POST("/v1/auth/refresh", h.Refresh)
	v1 := e.r.Group("/v1", auth.RequireAccessToken(m))
	read := v1.Group("", rbac.RequireAnyRole(rbac.Readers...))
	read.GET("/me", h.Me)
	read.GET("/calls", h.ListCalls)
	read.GET("/calls/:id", h.GetCall)
	read.GET("/leads", h.ListLeads)
	read.GET("/bots", h.ListBots)
	write := v1.Group("", rbac.RequireAnyRole(rbac.Writers...))
	write.PATCH("/leads/:id", h.UpdateLeadStatus)
	write.POST("/bots/:bot_id/files", h.UploadKnowledgeFile)
	return e
}

func (e *env) token(t *testing.T, userID, role string) string {
	t.Helper()
	p, err := e.auth.IssuePair(time.Now(), userID, role)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return p.AccessToken
}

func (e *env) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

// seedCall stores a summarized call with a lead for botID.
func (e *env) seedCall(t *testing.T, sid, botID string) (calls.Call, calls.Lead) {
	t.Helper()
	ctx := context.Background()
	c, err := e.calls.UpsertCall(ctx, calls.Call{ProviderCallID: sid, BotID: &botID, From: "+15551234567", RoutedVia: calls.RouteDirect, Status: calls.CallStatusCompleted})
	if err != nil {
		t.Fatalf("seed call: %v", err)
	}
	_, l, err := e.calls.UpsertSummaryAndLead(ctx,
		calls.Summary{CallID: c.ID, Summary: "Leak", Intent: calls.IntentSupport, Urgency: calls.UrgencyHigh},
		calls.Lead{CallID: c.ID, BotID: &botID, Urgency: calls.UrgencyHigh, Status: calls.LeadStatusNew})
	if err != nil {
		t.Fatalf("seed lead: %v", err)
	}
	return c, l
}

func TestListCalls_ScopedToMembership(t *testing.T) {
	e := newEnv(t)
	e.calls.AddMember("u1", "bot-1", "Plumbing Co")
	e.seedCall(t, "CA1", "bot-1")
	e.seedCall(t, "CA2", "bot-2")

	w := e.do(httptest.NewRequest(http.MethodGet, "/v1/calls", nil), e.token(t, "u1", rbac.RoleViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Calls []calls.CallListItem `json:"calls"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Calls) != 1 || body.Calls[0].ProviderCallID != "CA1" {
		t.Fatalf("unexpected calls %+v", body.Calls)
	}
}

func TestListCalls_RejectsBadLimit(t *testing.T) {
	e := newEnv(t)
	for _, q := range []string{"limit=abc", "limit=-1"} {
		w := e.do(httptest.NewRequest(http.MethodGet, "/v1/calls?"+q, nil), e.token(t, "u1", rbac.RoleViewer))
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, w.Code)
		}
	}
}

func TestListCalls_RequiresToken(t *testing.T) {
	e := newEnv(t)
	w := e.do(httptest.NewRequest(http.MethodGet, "/v1/calls", nil), "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestGetCall(t *testing.T) {
	e := newEnv(t)
	e.calls.AddMember("u1", "bot-1", "Plumbing Co")
	own, _ := e.seedCall(t, "CA1", "bot-1")
	other, _ := e.seedCall(t, "CA2", "bot-2")
	tok := e.token(t, "u1", rbac.RoleViewer)

	w := e.do(httptest.NewRequest(http.MethodGet, "/v1/calls/"+own.ID, nil), tok)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var detail calls.CallDetail
	if err := json.Unmarshal(w.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if detail.Summary == nil || detail.Summary.Urgency != calls.UrgencyHigh {
		t.Fatalf("expected summary in detail, got %+v", detail.Summary)
	}

	w = e.do(httptest.NewRequest(http.MethodGet, "/v1/calls/"+other.ID, nil), tok)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another business's call, got %d", w.Code)
	}
}

func patchLead(id, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPatch, "/v1/leads/"+id, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestUpdateLeadStatus(t *testing.T) {
	e := newEnv(t)
	e.calls.AddMember("u1", "bot-1", "Plumbing Co")
	_, lead := e.seedCall(t, "CA1", "bot-1")

	cases := []struct {
		name string
		role string
		id   string
		body string
		want int
	}{
		{"viewer is read only", rbac.RoleViewer, lead.ID, `{"status":"contacted"}`, http.StatusForbidden},
		{"invalid status", rbac.RoleOperator, lead.ID, `{"status":"won"}`, http.StatusBadRequest},
		{"missing status", rbac.RoleOperator, lead.ID, `{}`, http.StatusBadRequest},
		{"unknown lead", rbac.RoleOperator, "nope", `{"status":"contacted"}`, http.StatusNotFound},
		{"operator updates", rbac.RoleOperator, lead.ID, `{"status":"contacted"}`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := e.do(patchLead(tc.id, tc.body), e.token(t, "u1", tc.role))
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}

	l, _ := e.calls.Lead(lead.CallID)
	if l.Status != calls.LeadStatusContacted {
		t.Fatalf("expected contacted, got %q", l.Status)
	}
	ev := e.audit.Events()
	if len(ev) != 1 || ev[0].Type != audit.EventTypeLeadStatusChanged || ev[0].ActorUserID != "u1" {
		t.Fatalf("unexpected audit trail %+v", ev)
	}
}

func TestListBots(t *testing.T) {
	e := newEnv(t)
	e.bots.AddBot(knowledge.Bot{ID: "bot-1", Name: "Plumbing Co"})
	e.bots.AddBot(knowledge.Bot{ID: "bot-2", Name: "Dental"})
	e.bots.AddMember("u1", "bot-1")

	w := e.do(httptest.NewRequest(http.MethodGet, "/v1/bots", nil), e.token(t, "u1", rbac.RoleViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Bots []knowledge.BotWithFiles `json:"bots"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Bots) != 1 || body.Bots[0].ID != "bot-1" {
		t.Fatalf("unexpected bots %+v", body.Bots)
	}
}

func uploadRequest(t *testing.T, botID string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if data != nil {
		fw, err := mw.CreateFormFile("file", "menu.txt")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		_, _ = fw.Write(data)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/v1/bots/%s/files", botID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadKnowledgeFile_StatusMapping(t *testing.T) {
	failed := knowledge.File{ID: "f1", Status: knowledge.FileStatusFailed}
	cases := []struct {
		name string
		file knowledge.File
		err  error
		want int
	}{
		{"created", knowledge.File{ID: "f1", Status: knowledge.FileStatusReady}, nil, http.StatusCreated},
		{"validation", knowledge.File{}, &knowledge.ValidationError{Message: "Please select a file."}, http.StatusBadRequest},
		{"not a member", knowledge.File{}, knowledge.ErrForbidden, http.StatusForbidden},
		{"unknown bot", knowledge.File{}, knowledge.ErrBotNotFound, http.StatusNotFound},
		{"busy", knowledge.File{}, knowledge.ErrBusy, http.StatusConflict},
		{"duplicate path", knowledge.File{}, fmt.Errorf("record file metadata: %w", knowledge.ErrDuplicateFile), http.StatusConflict},
		{"ingestion failed", failed, fmt.Errorf("%w: %w", knowledge.ErrIngestFailed, errors.New("index down")), http.StatusBadGateway},
		{"store setup failed", knowledge.File{}, fmt.Errorf("%w: set up search store: boom", knowledge.ErrIngestFailed), http.StatusBadGateway},
		{"unexpected", knowledge.File{}, errors.New("db down"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			e.ingester.file, e.ingester.err = tc.file, tc.err

			w := e.do(uploadRequest(t, "bot-1", []byte("open 9-5")), e.token(t, "u1", rbac.RoleOperator))
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
			if e.ingester.got.BotID != "bot-1" || string(e.ingester.got.Data) != "open 9-5" || e.ingester.got.FileName != "menu.txt" {
				t.Fatalf("unexpected upload %+v", e.ingester.got)
			}
		})
	}
}

func TestUploadKnowledgeFile_FailedBodyIncludesFile(t *testing.T) {
	e := newEnv(t)
	msg := "unsupported file type"
	e.ingester.file = knowledge.File{ID: "f1", Status: knowledge.FileStatusFailed, ErrorMessage: &msg}
	e.ingester.err = fmt.Errorf("%w: %w", knowledge.ErrIngestFailed, errors.New(msg))

	w := e.do(uploadRequest(t, "bot-1", []byte("x")), e.token(t, "u1", rbac.RoleAdmin))
	var body struct {
		Error string         `json:"error"`
		File  knowledge.File `json:"file"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(body.Error, msg) || body.File.Status != knowledge.FileStatusFailed {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestUploadKnowledgeFile_RejectsBeforeIngest(t *testing.T) {
	e := newEnv(t)
	tok := e.token(t, "u1", rbac.RoleOperator)

	w := e.do(uploadRequest(t, "bot-1", nil), tok)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing file: expected 400, got %d", w.Code)
	}
	w = e.do(uploadRequest(t, "bot-1", make([]byte, knowledge.MaxFileBytes)), tok)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("oversized: expected 400, got %d", w.Code)
	}
	if e.ingester.got.BotID != "" {
		t.Fatalf("ingester should not have been called")
	}

	w = e.do(uploadRequest(t, "bot-1", []byte("x")), e.token(t, "u1", rbac.RoleViewer))
	if w.Code != http.StatusForbidden {
		t.Fatalf("viewer: expected 403, got %d", w.Code)
	}
}

func TestRefresh(t *testing.T) {
	e := newEnv(t)
	p, _ := e.auth.IssuePair(time.Now(), "u1", rbac.RoleOperator)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(`{"refresh_token":"`+p.RefreshToken+`"}`))
	req.Header.Set("Content-Type", "application/json")
	w := e.do(req, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var pair auth.TokenPair
	if err := json.Unmarshal(w.Body.Bytes(), &pair); err != nil || pair.AccessToken == "" {
		t.Fatalf("unexpected body %s", w.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", strings.NewReader(`{"refresh_token":"`+p.AccessToken+`"}`))
	req.Header.Set("Content-Type", "application/json")
	if w := e.do(req, ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for access token, got %d", w.Code)
	}
}
