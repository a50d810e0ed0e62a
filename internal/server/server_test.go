package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"intraops/internal/bridge"
	"intraops/internal/comments"
	"intraops/internal/config"
	"intraops/internal/db"
	"intraops/internal/domain"
	"intraops/internal/engine"
	"intraops/internal/migrate"
	"intraops/internal/notify"
	"intraops/internal/repo"
	"intraops/internal/server"
)

const testSecret = "server-test-secret"

type testServer struct {
	Base     string
	Client   *http.Client
	Dir      string
	ClientID int64
	Ana      int64
	Bruno    int64
}

func newTestServer(t *testing.T) testServer {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	sender := &notify.Sender{Dispatcher: notify.LogDispatcher{}}
	eng := engine.New(conn, cfg, sender)
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	mgr := comments.NewManager(conn, cfg, sender)
	mgr.Now = eng.Now

	ctx := context.Background()
	r := repo.Repo{DB: conn}
	clientID, err := r.EnsureClient(ctx, domain.Client{Name: "Acme"})
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
	ana, _ := r.EnsurePerson(ctx, domain.Person{Name: "Ana"})
	bruno, _ := r.EnsurePerson(ctx, domain.Person{Name: "Bruno"})

	handler, err := server.New(server.Config{
		Engine:   eng,
		Comments: mgr,
		Bridge:   bridge.Disk{Root: dir},
		Auth:     server.AuthConfig{JWTSecret: testSecret},
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	t.Cleanup(func() {
		srv.Shutdown(context.Background())
		sender.Wait()
	})
	return testServer{
		Base:     "http://" + ln.Addr().String() + "/v1",
		Client:   &http.Client{Timeout: 5 * time.Second},
		Dir:      dir,
		ClientID: clientID,
		Ana:      ana,
		Bruno:    bruno,
	}
}

func signToken(t *testing.T, personID int64, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": fmt.Sprintf("%d", personID),
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (s testServer) doJSON(t *testing.T, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.Base+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		raw, _ := io.ReadAll(resp.Body)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
			}
		}
	}
	return resp.StatusCode
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	var body map[string]string
	if code := s.doJSON(t, http.MethodGet, "/health", "", nil, &body); code != http.StatusOK {
		t.Fatalf("health: status %d", code)
	}
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body: %v", body)
	}
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t)
	if code := s.doJSON(t, http.MethodGet, "/tareas", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := s.doJSON(t, http.MethodGet, "/tareas", signToken(t, 0), nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for zero subject, got %d", code)
	}
	bad, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "1"}).SignedString([]byte("wrong"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if code := s.doJSON(t, http.MethodGet, "/tareas", bad, nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", code)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, s.Ana)

	var created domain.Task
	code := s.doJSON(t, http.MethodPost, "/tareas", token, map[string]any{
		"client_id":    s.ClientID,
		"title":        "Desplegar demo",
		"impact":       2,
		"urgency":      3,
		"responsables": []map[string]any{{"feder_id": s.Bruno, "es_lider": true}},
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	if created.ID == 0 || created.KanbanColumn != "backlog" {
		t.Fatalf("unexpected task: %+v", created)
	}
	if len(created.Responsibles) != 1 || !created.Responsibles[0].IsLeader {
		t.Fatalf("responsibles not hydrated: %+v", created.Responsibles)
	}

	var fetched domain.Task
	path := fmt.Sprintf("/tareas/%d", created.ID)
	if code := s.doJSON(t, http.MethodGet, path, token, nil, &fetched); code != http.StatusOK {
		t.Fatalf("get: status %d", code)
	}
	if fetched.Title != "Desplegar demo" || fetched.Boost == 0 {
		t.Fatalf("unexpected fetched task: %+v", fetched)
	}

	var listed []domain.Task
	if code := s.doJSON(t, http.MethodGet, "/tareas", token, nil, &listed); code != http.StatusOK {
		t.Fatalf("list: status %d", code)
	}
	if len(listed) != 1 {
		t.Fatalf("expected one task, got %d", len(listed))
	}

	// validation errors come back in the envelope with a field detail
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	code = s.doJSON(t, http.MethodPost, "/tareas", token, map[string]any{"client_id": s.ClientID}, &envelope)
	if code != http.StatusBadRequest || envelope.Error.Code != "bad_request" {
		t.Fatalf("expected bad_request envelope, got %d %+v", code, envelope)
	}
}

func TestElevatedEndpoints(t *testing.T) {
	s := newTestServer(t)
	plain := signToken(t, s.Ana)
	admin := signToken(t, s.Bruno, "admin")

	var created domain.Task
	code := s.doJSON(t, http.MethodPost, "/tareas", plain, map[string]any{
		"client_id": s.ClientID, "title": "Efimera",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}
	path := fmt.Sprintf("/tareas/%d", created.ID)

	if code := s.doJSON(t, http.MethodDelete, path, plain, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 trash for plain role, got %d", code)
	}
	if code := s.doJSON(t, http.MethodGet, "/papelera", plain, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 trash list for plain role, got %d", code)
	}
	if code := s.doJSON(t, http.MethodDelete, path, admin, nil, nil); code != http.StatusNoContent {
		t.Fatalf("expected 204 trash for admin, got %d", code)
	}
	if code := s.doJSON(t, http.MethodGet, path, plain, nil, nil); code != http.StatusNotFound {
		t.Fatalf("trashed task should be 404, got %d", code)
	}

	var trash []domain.Task
	if code := s.doJSON(t, http.MethodGet, "/papelera", admin, nil, &trash); code != http.StatusOK {
		t.Fatalf("trash list: status %d", code)
	}
	if len(trash) != 1 || trash[0].ID != created.ID {
		t.Fatalf("unexpected trash: %+v", trash)
	}

	var restored domain.Task
	restore := fmt.Sprintf("/papelera/%d/restaurar", created.ID)
	if code := s.doJSON(t, http.MethodPost, restore, admin, nil, &restored); code != http.StatusOK {
		t.Fatalf("restore: status %d", code)
	}
	if restored.ID != created.ID {
		t.Fatalf("unexpected restored task: %+v", restored)
	}
}

func TestAttachmentUpload(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, s.Ana)

	var created domain.Task
	code := s.doJSON(t, http.MethodPost, "/tareas", token, map[string]any{
		"client_id": s.ClientID, "title": "Con ficheros",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}

	upload := func(taskID int64) int {
		path := fmt.Sprintf("%s/tareas/%d/adjuntos?filename=nota.txt", s.Base, taskID)
		req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader([]byte("hola")))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "text/plain")
		resp, err := s.Client.Do(req)
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := upload(created.ID); code != http.StatusCreated {
		t.Fatalf("upload: status %d", code)
	}
	stored, err := os.ReadDir(filepath.Join(s.Dir, "task", fmt.Sprintf("%d", created.ID)))
	if err != nil || len(stored) != 1 {
		t.Fatalf("expected one stored file, got %v (%v)", stored, err)
	}

	// an unknown task is rejected before any bytes land on disk
	if code := upload(9999); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task, got %d", code)
	}
	if _, err := os.Stat(filepath.Join(s.Dir, "task", "9999")); !os.IsNotExist(err) {
		t.Fatalf("orphaned upload directory left behind: %v", err)
	}
}

func TestCommentWithAttachment(t *testing.T) {
	s := newTestServer(t)
	token := signToken(t, s.Ana)

	var created domain.Task
	code := s.doJSON(t, http.MethodPost, "/tareas", token, map[string]any{
		"client_id": s.ClientID, "title": "Comentada",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}

	var thread []domain.Comment
	path := fmt.Sprintf("/tareas/%d/comentarios", created.ID)
	code = s.doJSON(t, http.MethodPost, path, token, map[string]any{
		"content": "adjunto el acta",
		"attachments": []map[string]any{
			{"name": "acta.pdf", "mime": "application/pdf", "size": 1024, "drive_id": "d-9"},
		},
	}, &thread)
	if code != http.StatusCreated {
		t.Fatalf("post comment: status %d", code)
	}
	if len(thread) != 1 || len(thread[0].Attachments) != 1 {
		t.Fatalf("attachment missing from thread: %+v", thread)
	}
	if thread[0].Attachments[0].Name != "acta.pdf" {
		t.Fatalf("unexpected attachment: %+v", thread[0].Attachments[0])
	}
}

func TestCancelNeedsElevation(t *testing.T) {
	s := newTestServer(t)
	plain := signToken(t, s.Ana)
	admin := signToken(t, s.Bruno, "rrhh")

	var created domain.Task
	code := s.doJSON(t, http.MethodPost, "/tareas", plain, map[string]any{
		"client_id": s.ClientID, "title": "Cancelable",
	}, &created)
	if code != http.StatusCreated {
		t.Fatalf("create: status %d", code)
	}

	var statuses []domain.Status
	if code := s.doJSON(t, http.MethodGet, "/catalogo/estados", plain, nil, &statuses); code != http.StatusOK {
		t.Fatalf("statuses: %d", code)
	}
	var cancelled int64
	for _, st := range statuses {
		if st.IsCancelled {
			cancelled = st.ID
		}
	}
	if cancelled == 0 {
		t.Fatalf("no cancelled status seeded")
	}

	path := fmt.Sprintf("/tareas/%d/estado", created.ID)
	body := map[string]any{"status_id": cancelled, "reason": "duplicada"}
	if code := s.doJSON(t, http.MethodPatch, path, plain, body, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 cancel for plain role, got %d", code)
	}
	var task domain.Task
	if code := s.doJSON(t, http.MethodPatch, path, admin, body, &task); code != http.StatusOK {
		t.Fatalf("cancel as rrhh: status %d", code)
	}
	if task.CancelReason == nil || *task.CancelReason != "duplicada" {
		t.Fatalf("cancel reason missing: %+v", task)
	}
}
