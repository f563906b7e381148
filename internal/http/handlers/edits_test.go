package handlers_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"editserver/internal/chain"
	"editserver/internal/domain"
	"editserver/internal/edits"
	"editserver/internal/http/handlers"
	"editserver/internal/http/httpapi"
)

const (
	doneUUID    = "0c6f1f3a-9f93-4a7f-8e35-0f2f4b6e1111"
	runningUUID = "9b7a4a10-1d0e-4d2a-b7c1-aa5502a22222"
)

type stubEditStore struct {
	edits map[string]*domain.Edit
}

func (s *stubEditStore) Create(ctx context.Context, edit *domain.Edit) error {
	edit.ID = 1
	edit.Status = domain.EditStatusPending
	edit.Stage = domain.StagePending
	return nil
}

func (s *stubEditStore) GetByUUID(ctx context.Context, uuid string) (*domain.Edit, error) {
	e, ok := s.edits[uuid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (s *stubEditStore) ChainPosition(ctx context.Context, uuid string) (int, error) {
	if _, ok := s.edits[uuid]; !ok {
		return 0, domain.ErrNotFound
	}
	return 1, nil
}

func (s *stubEditStore) InsertChainLink(ctx context.Context, link domain.ChainLink) error {
	return nil
}

func (s *stubEditStore) ChainHistory(ctx context.Context, uuid string) ([]domain.ChainEntry, error) {
	e, ok := s.edits[uuid]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return []domain.ChainEntry{{Edit: *e, Position: 1}}, nil
}

type stubFeedbackStore struct {
	existing map[string]*domain.Feedback
}

func (s *stubFeedbackStore) Create(ctx context.Context, fb *domain.Feedback) error {
	if _, ok := s.existing[fb.EditUUID]; ok {
		return domain.ErrFeedbackExists
	}
	s.existing[fb.EditUUID] = fb
	return nil
}

func (s *stubFeedbackStore) GetByEditUUID(ctx context.Context, editUUID string) (*domain.Feedback, error) {
	fb, ok := s.existing[editUUID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return fb, nil
}

type stubQueue struct{ ids []int64 }

func (q *stubQueue) Enqueue(ctx context.Context, editID int64) error {
	q.ids = append(q.ids, editID)
	return nil
}

type stubUploads struct{}

func (stubUploads) Put(ctx context.Context, key string, data []byte) (string, error) {
	return "http://localhost/media/" + key, nil
}

func newTestRouter(t *testing.T) (http.Handler, *stubQueue) {
	t.Helper()
	store := &stubEditStore{edits: map[string]*domain.Edit{
		doneUUID: {
			ID:             1,
			UUID:           doneUUID,
			Prompt:         "first edit",
			Status:         domain.EditStatusCompleted,
			Stage:          domain.StageCompleted,
			EditedImageURL: "http://localhost/media/edited.png",
		},
		runningUUID: {
			ID:     2,
			UUID:   runningUUID,
			Prompt: "second edit",
			Status: domain.EditStatusProcessing,
			Stage:  domain.StageProcessingWithAI,
		},
	}}
	queue := &stubQueue{}
	svc := edits.NewService(
		store,
		&stubFeedbackStore{existing: map[string]*domain.Feedback{}},
		chain.NewResolver(store, 5),
		queue,
		nil,
		stubUploads{},
		nil,
		zerolog.Nop(),
	)
	router := httpapi.NewRouter(httpapi.Options{
		App:            handlers.NewApp(svc, zerolog.Nop()),
		Logger:         zerolog.Nop(),
		AllowedOrigins: []string{"*"},
		SubmitPerDay:   100,
		StatusPerMin:   100,
	})
	return router, queue
}

func doJSON(t *testing.T, router http.Handler, method, path string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not JSON: %v\n%s", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestSubmitEditEndpoint(t *testing.T) {
	router, queue := newTestRouter(t)
	image := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png"))

	body, _ := json.Marshal(map[string]string{"prompt": "add snow", "image": image})
	rec, resp := doJSON(t, router, http.MethodPost, "/edit-image/", string(body))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if resp["status"] != "pending" {
		t.Fatalf("response = %v", resp)
	}
	if len(queue.ids) != 1 {
		t.Fatalf("enqueued = %v", queue.ids)
	}
}

func TestSubmitEditEndpointRejectsBadPayloads(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, resp := doJSON(t, router, http.MethodPost, "/edit-image/", "{not json")
	if rec.Code != http.StatusBadRequest || resp["error"] != "bad_request" {
		t.Fatalf("status = %d, resp = %v", rec.Code, resp)
	}

	body, _ := json.Marshal(map[string]string{"prompt": "", "image": "aGk="})
	rec, resp = doJSON(t, router, http.MethodPost, "/edit-image/", string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty prompt status = %d, resp = %v", rec.Code, resp)
	}

	body, _ = json.Marshal(map[string]string{"prompt": "ok", "image": "aGk=", "parent_edit_uuid": "not-a-uuid"})
	rec, _ = doJSON(t, router, http.MethodPost, "/edit-image/", string(body))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad parent uuid status = %d", rec.Code)
	}
}

func TestSubmitEditEndpointFollowUpConflicts(t *testing.T) {
	router, _ := newTestRouter(t)
	image := base64.StdEncoding.EncodeToString([]byte("png"))

	body, _ := json.Marshal(map[string]string{"prompt": "again", "image": image, "parent_edit_uuid": runningUUID})
	rec, resp := doJSON(t, router, http.MethodPost, "/edit-image/", string(body))
	if rec.Code != http.StatusConflict || resp["error"] != "parent_not_ready" {
		t.Fatalf("status = %d, resp = %v", rec.Code, resp)
	}
}

func TestEditStatusEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, resp := doJSON(t, router, http.MethodGet, "/edit/"+doneUUID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if resp["status"] != "completed" || resp["progress_percent"] != float64(100) {
		t.Fatalf("resp = %v", resp)
	}
	if resp["edited_image_url"] != "http://localhost/media/edited.png" {
		t.Fatalf("resp = %v", resp)
	}

	rec, resp = doJSON(t, router, http.MethodGet, "/edit/"+runningUUID, "")
	if rec.Code != http.StatusOK || resp["progress_percent"] != float64(60) {
		t.Fatalf("running resp = %d %v", rec.Code, resp)
	}

	rec, resp = doJSON(t, router, http.MethodGet, "/edit/3f0c9a6e-aaaa-bbbb-cccc-000000000000", "")
	if rec.Code != http.StatusNotFound || resp["error"] != "not_found" {
		t.Fatalf("unknown edit = %d %v", rec.Code, resp)
	}

	rec, _ = doJSON(t, router, http.MethodGet, "/edit/not-a-uuid", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed uuid = %d", rec.Code)
	}
}

func TestEditChainEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	rec, resp := doJSON(t, router, http.MethodGet, "/edit/"+doneUUID+"/chain", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	entries, ok := resp["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("entries = %v", resp["entries"])
	}
	if resp["max_length"] != float64(5) {
		t.Fatalf("resp = %v", resp)
	}
}

func TestFeedbackEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]any{"edit_uuid": doneUUID, "rating": 1})
	rec, resp := doJSON(t, router, http.MethodPost, "/feedback/", string(body))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, resp = %v", rec.Code, resp)
	}

	rec, resp = doJSON(t, router, http.MethodPost, "/feedback/", string(body))
	if rec.Code != http.StatusConflict || resp["error"] != "feedback_exists" {
		t.Fatalf("duplicate = %d %v", rec.Code, resp)
	}

	body, _ = json.Marshal(map[string]any{"edit_uuid": runningUUID, "rating": 1})
	rec, resp = doJSON(t, router, http.MethodPost, "/feedback/", string(body))
	if rec.Code != http.StatusConflict || resp["error"] != "edit_not_completed" {
		t.Fatalf("incomplete edit = %d %v", rec.Code, resp)
	}

	rec, resp = doJSON(t, router, http.MethodGet, "/feedback/"+doneUUID, "")
	if rec.Code != http.StatusOK || resp["rating"] != float64(1) {
		t.Fatalf("get feedback = %d %v", rec.Code, resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)
	rec, resp := doJSON(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || resp["status"] != "ok" {
		t.Fatalf("health = %d %v", rec.Code, resp)
	}
}
