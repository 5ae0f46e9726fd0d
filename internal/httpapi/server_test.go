package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fellowship-tools/assembly/server/internal/assembly/service"
	"github.com/fellowship-tools/assembly/server/internal/assembly/store/memory"
	"github.com/fellowship-tools/assembly/server/internal/assembly/types"
	"github.com/fellowship-tools/assembly/server/internal/httpapi"
)

type testServer struct {
	ts         *httptest.Server
	events     *memory.EventStore
	attendance *memory.AttendanceStore
}

// newTestServer wires up the full dependency graph using in-memory stores
// and returns an httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	events := memory.NewEventStore()
	attendance := memory.NewAttendanceStore()
	audits := memory.NewAuditStore()
	logger := log.New(io.Discard, "", 0)
	clock := service.SystemClock()

	aggregator := service.NewAggregator(events, attendance)
	recorder := service.NewRecorder(events, attendance, aggregator, audits, clock, logger,
		service.RecorderConfig{})
	detector := service.NewConflictDetector(events)
	lifecycle := service.NewLifecycle(events, attendance, detector, recorder, aggregator,
		audits, &service.LogNotifier{Logger: logger}, clock, logger, service.LifecycleConfig{})

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       ":0",
		Lifecycle:  lifecycle,
		Recorder:   recorder,
		Events:     events,
		Attendance: attendance,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{ts: ts, events: events, attendance: attendance}
}

// do issues a request with the identity headers an authenticating gateway
// would set.
func (s *testServer) do(t *testing.T, method, path string, body string, actorID, role, scopes string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, s.ts.URL+path, bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if actorID != "" {
		req.Header.Set("X-Actor-Id", actorID)
		req.Header.Set("X-Actor-Role", role)
	}
	if scopes != "" {
		req.Header.Set("X-Actor-Scopes", scopes)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *testServer) seedEvent(t *testing.T, id string, status types.EventStatus, start, end time.Time) {
	t.Helper()
	err := s.events.Create(context.Background(), &types.Event{
		ID: id, Title: "Seeded " + id, Start: start, End: end, Status: status,
		Scope:                types.Scope{Type: types.ScopeDepartment, TargetID: "ushers"},
		CreatedBy:            "pastor-1",
		ExpectedParticipants: []string{"u-1", "u-2"},
		AllowWalkIns:         false,
	})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func createBody(start, end time.Time) string {
	return fmt.Sprintf(`{
  "title": "Prayer Meeting",
  "start": %q,
  "end": %q,
  "scope": {"type": "department", "target_id": "ushers"},
  "expected_participants": ["u-1", "u-2"]
}`, start.Format(time.RFC3339), end.Format(time.RFC3339))
}

func TestCreateEvent_Created(t *testing.T) {
	s := newTestServer(t)
	start := time.Now().UTC().Add(24 * time.Hour)

	resp := s.do(t, http.MethodPost, "/v1/events", createBody(start, start.Add(2*time.Hour)),
		"pastor-1", "pastor", "department:ushers")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var ev types.Event
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Status != types.StatusUpcoming {
		t.Errorf("status = %s, want upcoming", ev.Status)
	}
	if ev.ID == "" {
		t.Error("expected a generated id")
	}
}

func TestCreateEvent_MissingActor_401(t *testing.T) {
	s := newTestServer(t)
	start := time.Now().UTC().Add(24 * time.Hour)

	resp := s.do(t, http.MethodPost, "/v1/events", createBody(start, start.Add(time.Hour)),
		"", "", "")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestCreateEvent_MemberRole_403(t *testing.T) {
	s := newTestServer(t)
	start := time.Now().UTC().Add(24 * time.Hour)

	resp := s.do(t, http.MethodPost, "/v1/events", createBody(start, start.Add(time.Hour)),
		"member-1", "member", "department:ushers")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestCreateEvent_Overlap_409(t *testing.T) {
	s := newTestServer(t)
	start := time.Now().UTC().Add(24 * time.Hour)
	s.seedEvent(t, "ev-existing", types.StatusUpcoming, start, start.Add(2*time.Hour))

	resp := s.do(t, http.MethodPost, "/v1/events", createBody(start.Add(time.Hour), start.Add(3*time.Hour)),
		"pastor-1", "pastor", "department:ushers")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestCreateEvent_BadJSON_400(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodPost, "/v1/events", `not json`,
		"pastor-1", "pastor", "")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestGetEvent_Missing_404(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/v1/events/nope", "", "", "", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestTransition_OK(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedEvent(t, "ev-1", types.StatusUpcoming, now.Add(-time.Hour), now.Add(time.Hour))

	resp := s.do(t, http.MethodPost, "/v1/events/ev-1/transition", `{"target":"started"}`,
		"pastor-1", "pastor", "department:ushers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var ev types.Event
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Status != types.StatusStarted {
		t.Errorf("status = %s, want started", ev.Status)
	}
}

func TestTransition_Disallowed_409(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedEvent(t, "ev-1", types.StatusClosed, now.Add(-3*time.Hour), now.Add(-2*time.Hour))

	resp := s.do(t, http.MethodPost, "/v1/events/ev-1/transition", `{"target":"active"}`,
		"pastor-1", "pastor", "department:ushers")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}
}

func TestMarkAttendance_OK(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedEvent(t, "ev-1", types.StatusActive, now.Add(-time.Hour), now.Add(time.Hour))

	resp := s.do(t, http.MethodPost, "/v1/events/ev-1/attendance",
		`{"user_id":"u-1","status":"present"}`,
		"pastor-1", "pastor", "department:ushers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var rec types.AttendanceRecord
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Status != types.AttendancePresent || rec.UserID != "u-1" {
		t.Errorf("record = %s/%s", rec.UserID, rec.Status)
	}
}

func TestMarkAttendance_ClosedEvent_422(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedEvent(t, "ev-1", types.StatusClosed, now.Add(-6*time.Hour), now.Add(-5*time.Hour))

	resp := s.do(t, http.MethodPost, "/v1/events/ev-1/attendance",
		`{"user_id":"u-1","status":"present"}`,
		"pastor-1", "pastor", "department:ushers")
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestBulkMark_PartialFailureReported(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedEvent(t, "ev-1", types.StatusActive, now.Add(-time.Hour), now.Add(time.Hour))

	resp := s.do(t, http.MethodPost, "/v1/events/ev-1/attendance/bulk",
		`{"rows":[{"user_id":"u-1","status":"present"},{"user_id":"stranger","status":"present"}]}`,
		"pastor-1", "pastor", "department:ushers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var res service.BulkResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Successful != 1 || res.Failed != 1 {
		t.Errorf("result = %+v, want 1 successful / 1 failed", res)
	}
}

func TestListAttendance_RecordsAndSummary(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedEvent(t, "ev-1", types.StatusActive, now.Add(-time.Hour), now.Add(time.Hour))

	mark := s.do(t, http.MethodPost, "/v1/events/ev-1/attendance",
		`{"user_id":"u-1","status":"present"}`,
		"pastor-1", "pastor", "department:ushers")
	if mark.StatusCode != http.StatusOK {
		t.Fatalf("mark: expected 200, got %d", mark.StatusCode)
	}

	resp := s.do(t, http.MethodGet, "/v1/events/ev-1/attendance", "", "", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		Records []types.AttendanceRecord `json:"records"`
		Summary types.AttendanceSummary  `json:"summary"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Records) != 1 || body.Records[0].UserID != "u-1" {
		t.Errorf("records = %+v", body.Records)
	}
	if body.Summary.Present != 1 || body.Summary.Total != 1 {
		t.Errorf("summary = %+v", body.Summary)
	}
}

func TestDeleteEvent_HardDelete(t *testing.T) {
	s := newTestServer(t)
	now := time.Now().UTC()
	s.seedEvent(t, "ev-1", types.StatusUpcoming, now.Add(24*time.Hour), now.Add(26*time.Hour))

	resp := s.do(t, http.MethodDelete, "/v1/events/ev-1", "",
		"pastor-1", "pastor", "department:ushers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body map[string]bool
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body["deleted"] {
		t.Error("expected deleted=true for upcoming event without attendance")
	}

	get := s.do(t, http.MethodGet, "/v1/events/ev-1", "", "", "", "")
	if get.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", get.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)

	resp := s.do(t, http.MethodGet, "/healthz", "", "", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
