package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	auditadapter "github.com/campushub/activity-registration-api/internal/adapters/audit"
	memactivitystore "github.com/campushub/activity-registration-api/internal/adapters/memory/activitystore"
	memidemstore "github.com/campushub/activity-registration-api/internal/adapters/memory/idemstore"
	"github.com/campushub/activity-registration-api/internal/app/activities"
	"github.com/campushub/activity-registration-api/internal/app/registrations"
	"github.com/campushub/activity-registration-api/internal/domain"
	platformclock "github.com/campushub/activity-registration-api/internal/platform/clock"
	"github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) (http.Handler, *memactivitystore.Store) {
	t.Helper()

	store := memactivitystore.NewStore()
	idem := memidemstore.NewStore()
	sink := auditadapter.NewMemorySink()
	clk := platformclock.NewFixedClock(testNow)

	api := NewServer(
		activities.NewService(store, idem, sink, clk),
		registrations.NewService(store, idem, sink, clk),
	)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(api, log, NewHeaderAuthMiddleware()), store
}

func seedPublished(t *testing.T, store *memactivitystore.Store, id domain.ActivityID, capacity int) {
	t.Helper()
	if err := store.CreateActivity(context.Background(), activitystore.Activity{
		ID:             id,
		Title:          "Robotics Workshop",
		Date:           testNow.Add(48 * time.Hour),
		Deadline:       testNow.Add(24 * time.Hour),
		Capacity:       capacity,
		RemainingSlots: capacity,
		Status:         domain.StatusPublished,
		CreatedBy:      "owner-1",
		CreatedAt:      testNow,
		UpdatedAt:      testNow,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func doJSON(t *testing.T, h http.Handler, method, path, user string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-User-Id", user)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_RequiresUserHeader(t *testing.T) {
	t.Parallel()

	h, store := newTestRouter(t)
	seedPublished(t, store, "a1", 2)

	rec := doJSON(t, h, http.MethodPost, "/activities/a1/registration", "", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}

	// Health stays open.
	rec = doJSON(t, h, http.MethodGet, "/healthz", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", rec.Code)
	}
}

func TestRegister_EndToEnd(t *testing.T) {
	t.Parallel()

	h, store := newTestRouter(t)
	seedPublished(t, store, "a1", 2)

	rec := doJSON(t, h, http.MethodPost, "/activities/a1/registration", "u1", nil, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var res registrations.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.State != registrations.StateActive || res.Activity.RemainingSlots != 1 || res.Activity.Status != domain.StatusPublished {
		t.Fatalf("res=%+v", res)
	}

	// Re-registering is already_active with 200.
	rec = doJSON(t, h, http.MethodPost, "/activities/a1/registration", "u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.State != registrations.StateAlreadyActive || res.Activity.RemainingSlots != 1 {
		t.Fatalf("res=%+v", res)
	}

	// A second user takes the last slot and the activity flips full.
	rec = doJSON(t, h, http.MethodPost, "/activities/a1/registration", "u2", nil, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Activity.RemainingSlots != 0 || res.Activity.Status != domain.StatusFull {
		t.Fatalf("res=%+v", res)
	}

	// A third user hits FULL.
	rec = doJSON(t, h, http.MethodPost, "/activities/a1/registration", "u3", nil, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var errRes struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errRes); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errRes.Error.Code != "FULL" {
		t.Fatalf("code=%s", errRes.Error.Code)
	}
}

func TestRegister_IdempotencyKeyReplay(t *testing.T) {
	t.Parallel()

	h, store := newTestRouter(t)
	seedPublished(t, store, "a1", 5)

	hdr := map[string]string{"Idempotency-Key": "key-1"}
	first := doJSON(t, h, http.MethodPost, "/activities/a1/registration", "u1", nil, hdr)
	if first.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", first.Code, first.Body)
	}
	second := doJSON(t, h, http.MethodPost, "/activities/a1/registration", "u1", nil, hdr)
	if second.Body.String() != first.Body.String() {
		t.Fatalf("replay differs:\n%s\n%s", first.Body, second.Body)
	}

	act, _ := store.GetActivity(context.Background(), "a1")
	if act.RemainingSlots != 4 {
		t.Fatalf("remaining=%d", act.RemainingSlots)
	}

	// Same key against another activity is rejected.
	seedPublished(t, store, "a2", 5)
	rec := doJSON(t, h, http.MethodPost, "/activities/a2/registration", "u1", nil, hdr)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
}

func TestCancel_EndToEnd(t *testing.T) {
	t.Parallel()

	h, store := newTestRouter(t)
	seedPublished(t, store, "a1", 1)

	if rec := doJSON(t, h, http.MethodPost, "/activities/a1/registration", "u1", nil, nil); rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d", rec.Code)
	}
	rec := doJSON(t, h, http.MethodDelete, "/activities/a1/registration", "u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var res registrations.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.State != registrations.StateCanceled || res.Activity.RemainingSlots != 1 {
		t.Fatalf("res=%+v", res)
	}

	// Cancel is idempotent at the API surface.
	rec = doJSON(t, h, http.MethodDelete, "/activities/a1/registration", "u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
}

func TestActivities_CreateStatusGetList(t *testing.T) {
	t.Parallel()

	h, _ := newTestRouter(t)

	create := activityRequest{
		Title:    "Robotics Workshop",
		Date:     testNow.Add(48 * time.Hour),
		Deadline: testNow.Add(24 * time.Hour),
		Capacity: 2,
	}
	rec := doJSON(t, h, http.MethodPost, "/activities", "owner-1", create, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rec.Code, rec.Body)
	}
	var created activityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != domain.StatusDraft || created.RemainingSlots != 2 {
		t.Fatalf("created=%+v", created)
	}

	base := "/activities/" + string(created.ID)

	rec = doJSON(t, h, http.MethodPost, base+"/status", "owner-1", statusChangeRequest{Action: "publish"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("publish status=%d body=%s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, base, "u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status=%d", rec.Code)
	}
	var got activityResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != domain.StatusPublished {
		t.Fatalf("got=%+v", got)
	}

	rec = doJSON(t, h, http.MethodGet, "/activities", "u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status=%d", rec.Code)
	}

	// Unknown action is a validation error before the service runs.
	rec = doJSON(t, h, http.MethodPost, base+"/status", "owner-1", statusChangeRequest{Action: "explode"}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
}

func TestMyRegistrations(t *testing.T) {
	t.Parallel()

	h, store := newTestRouter(t)
	seedPublished(t, store, "a1", 2)

	if rec := doJSON(t, h, http.MethodPost, "/activities/a1/registration", "u1", nil, nil); rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/me/registrations", "u1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
	var res struct {
		Registrations []registrations.MyRegistration `json:"registrations"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Registrations) != 1 || res.Registrations[0].Activity.ID != "a1" {
		t.Fatalf("res=%+v", res)
	}
}

func TestRoster_OwnerScoped(t *testing.T) {
	t.Parallel()

	h, store := newTestRouter(t)
	seedPublished(t, store, "a1", 2)
	if rec := doJSON(t, h, http.MethodPost, "/activities/a1/registration", "u1", nil, nil); rec.Code != http.StatusCreated {
		t.Fatalf("register status=%d", rec.Code)
	}

	rec := doJSON(t, h, http.MethodGet, "/activities/a1/roster", "owner-1", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/activities/a1/roster", "u1", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body)
	}
}
