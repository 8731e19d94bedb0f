package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), Options{APIKey: "test-key", BaseURL: srv.URL + "/", Model: "m1", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c, srv
}

func TestNewClient_RequiresAPIKey(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := NewClient(context.Background(), Options{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestGenerateText(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1beta/models/m1:generateContent" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"text":"hello"`) {
			t.Errorf("unexpected body %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"a\":"},{"text":"1}"}]}}]}`)
	}))

	got, err := c.GenerateText(context.Background(), "hello")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if got != `{"a":1}` {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestGenerateText_Errors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusInternalServerError, `{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`},
		{"no candidates", http.StatusOK, `{"candidates":[]}`},
		{"blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			if _, err := c.GenerateText(context.Background(), "x"); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

// storeServer serves the store list and create endpoints.
type storeServer struct {
	mu        sync.Mutex
	stores    []map[string]string
	createErr int // status returned by create; 0 creates the store
	creates   int
	raced     map[string]string // appears on the list once create has been attempted
}

func (s *storeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.URL.Path != "/v1beta/fileSearchStores" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.Method {
	case http.MethodGet:
		_ = json.NewEncoder(w).Encode(map[string]any{"fileSearchStores": s.stores})
	case http.MethodPost:
		s.creates++
		if s.raced != nil {
			s.stores = append(s.stores, s.raced)
		}
		if s.createErr != 0 {
			w.WriteHeader(s.createErr)
			_, _ = io.WriteString(w, `{"error":{"code":409,"message":"store exists","status":"ALREADY_EXISTS"}}`)
			return
		}
		var in struct {
			DisplayName string `json:"displayName"`
		}
		_ = json.NewDecoder(r.Body).Decode(&in)
		st := map[string]string{"name": "fileSearchStores/new-1", "displayName": in.DisplayName}
		s.stores = append(s.stores, st)
		_ = json.NewEncoder(w).Encode(st)
	}
}

func TestEnsureStore_Creates(t *testing.T) {
	srv := &storeServer{stores: []map[string]string{{"name": "fileSearchStores/other", "displayName": "bot-9"}}}
	c, _ := newTestClient(t, srv)

	s, err := c.EnsureStore(context.Background(), "bot-42")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if s.Name != "fileSearchStores/new-1" || s.DisplayName != "bot-42" {
		t.Fatalf("unexpected store %+v", s)
	}
	if srv.creates != 1 {
		t.Fatalf("expected one create, got %d", srv.creates)
	}
}

func TestEnsureStore_ReusesExistingByName(t *testing.T) {
	srv := &storeServer{stores: []map[string]string{
		{"name": "fileSearchStores/newer", "displayName": "bot-42", "createTime": "2025-02-01T00:00:00Z"},
		{"name": "fileSearchStores/older", "displayName": "bot-42", "createTime": "2025-01-01T00:00:00Z"},
	}}
	c, _ := newTestClient(t, srv)

	s, err := c.EnsureStore(context.Background(), "bot-42")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if s.Name != "fileSearchStores/older" {
		t.Fatalf("expected oldest matching store, got %+v", s)
	}
	if srv.creates != 0 {
		t.Fatalf("expected no create, got %d", srv.creates)
	}
}

func TestCreateStore_AlreadyExists(t *testing.T) {
	srv := &storeServer{
		createErr: http.StatusConflict,
		raced:     map[string]string{"name": "fileSearchStores/winner", "displayName": "bot-42"},
	}
	c, _ := newTestClient(t, srv)

	s, err := c.EnsureStore(context.Background(), "bot-42")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if s.Name != "fileSearchStores/winner" {
		t.Fatalf("expected the racing store, got %+v", s)
	}
}

func TestCreateStore_AlreadyExistsButMissing(t *testing.T) {
	srv := &storeServer{createErr: http.StatusConflict}
	c, _ := newTestClient(t, srv)

	_, err := c.EnsureStore(context.Background(), "bot-42")
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestUploadFileAndPoll(t *testing.T) {
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/upload/v1beta/fileSearchStores/bot-42:uploadToFileSearchStore", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Goog-Upload-Protocol") != "resumable" {
			t.Errorf("expected resumable upload start")
		}
		if r.Header.Get("X-Goog-Upload-Header-Content-Type") != "text/plain" {
			t.Errorf("unexpected content type %q", r.Header.Get("X-Goog-Upload-Header-Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"displayName":"faq.txt"`) {
			t.Errorf("unexpected start body %s", body)
		}
		w.Header().Set("X-Goog-Upload-Url", srvURL+"/resumable/session-1")
		_, _ = io.WriteString(w, `{}`)
	})
	mux.HandleFunc("/resumable/session-1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if string(body) != "hours: 9-5" {
			t.Errorf("unexpected upload bytes %q", body)
		}
		if !strings.Contains(r.Header.Get("X-Goog-Upload-Command"), "finalize") {
			t.Errorf("expected finalize command, got %q", r.Header.Get("X-Goog-Upload-Command"))
		}
		w.Header().Set("X-Goog-Upload-Status", "final")
		_, _ = io.WriteString(w, `{"name":"fileSearchStores/bot-42/upload/operations/op-1","done":false}`)
	})
	mux.HandleFunc("/v1beta/fileSearchStores/bot-42/upload/operations/op-1", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		_, _ = io.WriteString(w, `{"name":"fileSearchStores/bot-42/upload/operations/op-1","done":true,"response":{"parent":"fileSearchStores/bot-42","documentName":"fileSearchStores/bot-42/documents/abc"}}`)
	})
	c, srv := newTestClient(t, mux)
	srvURL = srv.URL

	op, err := c.UploadFile(context.Background(), "fileSearchStores/bot-42", UploadInput{FileName: "faq.txt", MIMEType: "text/plain", Data: []byte("hours: 9-5")})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if op.Done || op.Name != "fileSearchStores/bot-42/upload/operations/op-1" {
		t.Fatalf("unexpected op %+v", op)
	}
	op, err = c.GetOperation(context.Background(), op.Name)
	if err != nil {
		t.Fatalf("get op: %v", err)
	}
	if !op.Done || op.FileID() != "fileSearchStores/bot-42/documents/abc" {
		t.Fatalf("unexpected op %+v", op)
	}
}

func TestGetOperation_Error(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"name":"operations/op-2","done":true,"error":{"code":3,"message":"unsupported file type"}}`)
	}))
	op, err := c.GetOperation(context.Background(), "operations/op-2")
	if err != nil {
		t.Fatalf("get op: %v", err)
	}
	if op.Error == nil || op.Error.Code != 3 || op.Error.Message != "unsupported file type" {
		t.Fatalf("unexpected op error %+v", op.Error)
	}
	if op.FileID() != "" {
		t.Fatalf("expected no file id on failure")
	}
}
