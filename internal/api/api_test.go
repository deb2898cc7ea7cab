package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"sheetattend/internal/attendance"
	"sheetattend/internal/auth"
	"sheetattend/internal/config"
	"sheetattend/internal/history"
	"sheetattend/internal/sheets"
	"sheetattend/internal/upload"
	"sheetattend/internal/users"
)

const eventLink = "https://docs.google.com/spreadsheets/d/event-1/edit"

type fixture struct {
	mem    *sheets.Memory
	router *gin.Engine
	hist   *history.Store
	signer auth.Signer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, config.App{CORSOrigins: "*"})
}

func newFixtureWith(t *testing.T, cfg config.App) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	mem := sheets.NewMemory()
	mem.Create("users", "Users", "Sheet1", nil)
	mem.Create("hist", "History", "Sheet1", nil)
	mem.Create("event-1", "Hackathon", "Sheet1", [][]any{
		{"name", "roll_number", "mail_id", "department", "attendance"},
		{"Asha", "101", "asha@example.com", "CS", "FALSE"},
		{"Ravi", "102", "ravi@example.com", "EE", "FALSE"},
	})

	hist := history.NewStore(mem, "hist", "Sheet1")
	usr := users.NewStore(mem, "users", "Sheet1", users.SchemeSHA256)
	if err := hist.EnsureHeader(ctx); err != nil {
		t.Fatalf("history header: %v", err)
	}
	if err := usr.EnsureHeader(ctx); err != nil {
		t.Fatalf("users header: %v", err)
	}

	signer := auth.Signer{Key: "k", Issuer: "test", AccessTTL: time.Minute, RefreshTTL: time.Hour}
	router := NewRouter(Deps{
		Config:     cfg,
		Attendance: attendance.NewService(mem, attendance.Options{Sessions: hist}),
		History:    hist,
		Users:      usr,
		Upload:     upload.NewService(mem, hist, nil, "Sheet1"),
		Signer:     signer,
	})
	return &fixture{mem: mem, router: router, hist: hist, signer: signer}
}

// send issues a request with a raw body and an optional bearer token for user.
func (f *fixture) send(t *testing.T, method, path, user string, admin bool, raw string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		pair, err := f.signer.Issue(user, admin)
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w, body := f.do(t, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("unexpected health %d %v", w.Code, body)
	}
}

func TestUserSignupAndLogin(t *testing.T) {
	f := newFixture(t)
	user := map[string]string{
		"username": "asha", "name": "Asha", "roll_number": "101",
		"department": "CS", "team": "core", "role": "lead", "password": "pw",
	}
	if w, _ := f.do(t, http.MethodPost, "/api/createuser", user); w.Code != http.StatusCreated {
		t.Fatalf("createuser: expected 201, got %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/createuser", user); w.Code != http.StatusConflict {
		t.Fatalf("duplicate createuser: expected 409, got %d", w.Code)
	}

	w, body := f.do(t, http.MethodPost, "/api/login", map[string]string{"username": "asha", "password": "pw"})
	if w.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d", w.Code)
	}
	row, _ := body["user"].([]any)
	if len(row) != 6 || row[0] != "asha" || body["admin"] != "FALSE" {
		t.Errorf("unexpected login body %v", body)
	}
	if tokens, _ := body["tokens"].(map[string]any); tokens["access_token"] == "" {
		t.Errorf("missing tokens in %v", body)
	}

	if w, _ := f.do(t, http.MethodPost, "/api/login", map[string]string{"username": "asha", "password": "nope"}); w.Code != http.StatusUnauthorized {
		t.Errorf("bad password: expected 401, got %d", w.Code)
	}

	w, body = f.do(t, http.MethodPost, "/api/profile", map[string]string{"username": "asha"})
	if w.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", w.Code)
	}
	if u, _ := body["user"].(map[string]any); u["team"] != "core" {
		t.Errorf("unexpected profile %v", body)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/profile", map[string]string{"username": "ghost"}); w.Code != http.StatusNotFound {
		t.Errorf("unknown profile: expected 404, got %d", w.Code)
	}
}

func TestAttendanceFlow(t *testing.T) {
	f := newFixture(t)

	if w, _ := f.do(t, http.MethodGet, "/api/attendance/display?spreadsheet_id=event-1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("display before fetch: expected 404, got %d", w.Code)
	}

	w, body := f.do(t, http.MethodGet, "/api/attendance?sheet_link="+eventLink, nil)
	if w.Code != http.StatusOK || body["cached"] != false || body["commitColumnAdded"] != true {
		t.Fatalf("details: %d %v", w.Code, body)
	}
	w, body = f.do(t, http.MethodGet, "/api/attendance?sheet_link="+eventLink, nil)
	if body["cached"] != true {
		t.Errorf("expected cached details, got %v", body)
	}

	w, body = f.do(t, http.MethodGet, "/api/attendance/display?spreadsheet_id=event-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("display: expected 200, got %d", w.Code)
	}
	data := body["data"].(map[string]any)
	if data["registered"] != float64(2) || len(data["students"].([]any)) != 2 {
		t.Errorf("unexpected display %v", data)
	}

	w, body = f.do(t, http.MethodPost, "/api/attendance/commit", map[string]any{
		"spreadsheet_id": "event-1", "roll_numbers": []string{"101"}, "username": "desk",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("commit: expected 200, got %d %v", w.Code, body)
	}
	if res := body["data"].(map[string]any); res["updatedCount"] != float64(1) {
		t.Errorf("unexpected commit result %v", res)
	}

	if w, _ := f.do(t, http.MethodPost, "/api/attendance/commit", map[string]any{"spreadsheet_id": "event-1", "roll_numbers": []string{}}); w.Code != http.StatusBadRequest {
		t.Errorf("empty commit: expected 400, got %d", w.Code)
	}

	onspot := map[string]string{
		"spreadsheet_id": "event-1", "name": "Kiran", "roll_number": "204",
		"mail_id": "kiran@example.com", "department": "ME", "username": "desk",
	}
	if w, _ := f.do(t, http.MethodPost, "/api/attendance/addonspot", onspot); w.Code != http.StatusOK {
		t.Fatalf("addonspot: expected 200, got %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/attendance/addonspot", onspot); w.Code != http.StatusConflict {
		t.Errorf("duplicate addonspot: expected 409, got %d", w.Code)
	}

	w, body = f.do(t, http.MethodGet, "/api/history/event?sheet_link="+eventLink, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history event: expected 200, got %d", w.Code)
	}
	stats := body["data"].(map[string]any)
	if stats["registered"] != float64(2) || stats["onSpotCount"] != float64(1) || stats["presentCount"] != float64(2) || stats["absentCount"] != float64(1) {
		t.Errorf("unexpected stats %v", stats)
	}

	w, _ = f.do(t, http.MethodGet, "/api/attendance/export?spreadsheet_id=event-1", nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("export: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("export is not a zip: %v", err)
	}
	if len(zr.File) != 2 || zr.File[0].Name != "present_students.xlsx" || zr.File[1].Name != "all_students.xlsx" {
		t.Errorf("unexpected zip entries")
	}

	if w, _ := f.do(t, http.MethodDelete, "/api/attendance/cache?spreadsheet_id=missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("clear missing cache: expected 404, got %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodDelete, "/api/attendance/cache", nil); w.Code != http.StatusOK {
		t.Errorf("clear all cache: expected 200, got %d", w.Code)
	}
}

func TestUploadAndCloseSession(t *testing.T) {
	f := newFixture(t)

	w, body := f.do(t, http.MethodPost, "/api/upload/validate", map[string]string{"sheetlink": eventLink})
	if w.Code != http.StatusOK || body["rowsValidated"] != float64(2) {
		t.Fatalf("validate: %d %v", w.Code, body)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/upload/validate", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("validate without link: expected 400, got %d", w.Code)
	}

	up := map[string]string{"sheet_link": eventLink, "event_name": "Hackathon 2024", "uploaded_by": "asha"}
	if w, _ := f.do(t, http.MethodPost, "/api/upload/uploadSheet", up); w.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/upload/uploadSheet", up); w.Code != http.StatusConflict {
		t.Errorf("duplicate upload: expected 409, got %d", w.Code)
	}

	w, body = f.do(t, http.MethodPost, "/api/profile/getsession", map[string]string{"username": "asha"})
	if w.Code != http.StatusOK {
		t.Fatalf("getsession: expected 200, got %d", w.Code)
	}
	sessions := body["data"].([]any)
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %v", sessions)
	}
	s := sessions[0].(map[string]any)
	if s["id"] != "event-1" || s["name"] != "Hackathon 2024" || s["status"] != "active" {
		t.Errorf("unexpected session %v", s)
	}

	if w, _ := f.do(t, http.MethodPost, "/api/profile/close", map[string]string{"username": "ravi", "sheet_id": "event-1"}); w.Code != http.StatusForbidden {
		t.Errorf("close by stranger: expected 403, got %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/profile/close", map[string]string{"username": "asha", "sheet_id": "nope"}); w.Code != http.StatusNotFound {
		t.Errorf("close unknown: expected 404, got %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/profile/close", map[string]string{"username": "asha", "sheet_link": eventLink}); w.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", w.Code)
	}
	if w, _ := f.do(t, http.MethodPost, "/api/profile/close", map[string]string{"username": "asha", "sheet_id": "event-1"}); w.Code != http.StatusConflict {
		t.Errorf("close twice: expected 409, got %d", w.Code)
	}

	w, _ = f.do(t, http.MethodPost, "/api/attendance/commit", map[string]any{"spreadsheet_id": "event-1", "roll_numbers": []string{"101"}})
	if w.Code != http.StatusConflict {
		t.Errorf("commit on closed session: expected 409, got %d", w.Code)
	}

	w, body = f.do(t, http.MethodGet, "/api/history", nil)
	if w.Code != http.StatusOK || len(body["data"].([]any)) != 1 {
		t.Errorf("history: %d %v", w.Code, body)
	}
}

func TestEventQR(t *testing.T) {
	f := newFixture(t)
	w, _ := f.do(t, http.MethodGet, "/api/history/event/qr?sheet_link="+eventLink, nil)
	if w.Code != http.StatusOK || w.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("qr: %d %s", w.Code, w.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")) {
		t.Error("expected PNG payload")
	}
	if w, _ := f.do(t, http.MethodGet, "/api/history/event/qr?sheet_link=https://example.com", nil); w.Code != http.StatusBadRequest {
		t.Errorf("invalid link: expected 400, got %d", w.Code)
	}
}

func TestTokenSubjectIsTheActor(t *testing.T) {
	f := newFixtureWith(t, config.App{CORSOrigins: "*", RequireAuth: true})
	for _, name := range []string{"boss", "asha", "ravi"} {
		user := map[string]string{"username": name, "name": name, "roll_number": "1", "department": "CS", "password": "pw"}
		if w, _ := f.do(t, http.MethodPost, "/api/createuser", user); w.Code != http.StatusCreated {
			t.Fatalf("createuser %s: expected 201, got %d", name, w.Code)
		}
	}
	if err := f.mem.Update(context.Background(), "users", "Sheet1!I2", [][]any{{"TRUE"}}); err != nil {
		t.Fatalf("promote boss: %v", err)
	}

	if w := f.send(t, http.MethodPost, "/api/upload/uploadSheet", "asha", false, `{"sheet_link":"`+eventLink+`","event_name":"Hackathon"}`); w.Code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d %s", w.Code, w.Body)
	}
	rec, err := f.hist.Find(context.Background(), "event-1")
	if err != nil || rec.UploadedBy != "asha" {
		t.Fatalf("expected upload by token subject, got %+v %v", rec, err)
	}

	if w := f.send(t, http.MethodPost, "/api/profile/close", "", false, `{"username":"boss","sheet_id":"event-1"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("close without token: expected 401, got %d", w.Code)
	}
	if w := f.send(t, http.MethodPost, "/api/profile/close", "ravi", false, `{"username":"boss","sheet_id":"event-1"}`); w.Code != http.StatusForbidden {
		t.Errorf("close naming another user: expected 403, got %d", w.Code)
	}
	if w := f.send(t, http.MethodPost, "/api/profile/close", "ravi", false, `{"sheet_id":"event-1"}`); w.Code != http.StatusForbidden {
		t.Errorf("close by non-owner: expected 403, got %d", w.Code)
	}
	if w := f.send(t, http.MethodPost, "/api/attendance/commit", "ravi", false, `{"spreadsheet_id":"event-1","roll_numbers":["101"],"username":"asha"}`); w.Code != http.StatusForbidden {
		t.Errorf("commit naming another user: expected 403, got %d", w.Code)
	}

	if rec, _ := f.hist.Find(context.Background(), "event-1"); rec.Closed() {
		t.Fatal("session closed by a rejected request")
	}
	if w := f.send(t, http.MethodPost, "/api/profile/close", "boss", false, `{"username":"boss","sheet_id":"event-1"}`); w.Code != http.StatusOK {
		t.Errorf("close by admin: expected 200, got %d %s", w.Code, w.Body)
	}
}

func TestMalformedBodyIsRejected(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/upload/validate", "/api/upload/uploadSheet", "/api/profile", "/api/profile/getsession", "/api/profile/close"} {
		w := f.send(t, http.MethodPost, path, "", false, `{"username":`)
		if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "invalid request body") {
			t.Errorf("%s: expected invalid request body, got %d %s", path, w.Code, w.Body)
		}
	}
	if w := f.send(t, http.MethodDelete, "/api/attendance/cache", "", false, `{bad`); w.Code != http.StatusBadRequest {
		t.Errorf("clear cache: expected 400, got %d", w.Code)
	}
}
