package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/campushub/activity-registration-api/internal/app/activities"
	"github.com/campushub/activity-registration-api/internal/app/apperr"
	"github.com/campushub/activity-registration-api/internal/app/registrations"
	"github.com/campushub/activity-registration-api/internal/domain"
	"github.com/campushub/activity-registration-api/internal/ports/out/activitystore"
)

// Server is the HTTP adapter. It decodes requests, delegates to the app
// services, and maps results and errors onto the wire.
type Server struct {
	Activities    *activities.Service
	Registrations *registrations.Service
}

func NewServer(activitiesSvc *activities.Service, registrationsSvc *registrations.Service) *Server {
	return &Server{
		Activities:    activitiesSvc,
		Registrations: registrationsSvc,
	}
}

func idempotencyKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("Idempotency-Key"))
}

type activityRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Date        time.Time `json:"date"`
	Deadline    time.Time `json:"deadline"`
	Capacity    int       `json:"capacity"`
	Status      string    `json:"status,omitempty"`
}

type activityResponse struct {
	ID             domain.ActivityID `json:"id"`
	Title          string            `json:"title"`
	Description    string            `json:"description"`
	Location       string            `json:"location"`
	Date           time.Time         `json:"date"`
	Deadline       time.Time         `json:"deadline"`
	Capacity       int               `json:"capacity"`
	RemainingSlots int               `json:"remaining_slots"`
	Status         domain.Status     `json:"status"`
	CreatedBy      domain.UserID     `json:"created_by"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toActivityResponse(a activitystore.Activity) activityResponse {
	return activityResponse{
		ID:             a.ID,
		Title:          a.Title,
		Description:    a.Description,
		Location:       a.Location,
		Date:           a.Date,
		Deadline:       a.Deadline,
		Capacity:       a.Capacity,
		RemainingSlots: a.RemainingSlots,
		Status:         a.Status,
		CreatedBy:      a.CreatedBy,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusUnprocessableEntity, apperr.CodeValidationError, "invalid request body", nil)
		return false
	}
	return true
}

func (s *Server) handleCreateActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing actor", nil)
		return
	}
	var req activityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	status := domain.Status(req.Status)
	if req.Status == "" {
		status = domain.StatusDraft
	}
	a, err := s.Activities.Create(r.Context(), actor, activities.CreateActivityInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Date:        req.Date,
		Deadline:    req.Deadline,
		Capacity:    req.Capacity,
		Status:      status,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityResponse(a))
}

func (s *Server) handleUpdateActivity(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing actor", nil)
		return
	}
	var req activityRequest
	if !decodeBody(w, r, &req) {
		return
	}
	a, err := s.Activities.Update(r.Context(), actor, pathActivityID(r), activities.UpdateActivityInput{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Date:        req.Date,
		Deadline:    req.Deadline,
		Capacity:    req.Capacity,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityResponse(a))
}

type statusChangeRequest struct {
	Action string `json:"action"`
}

func (s *Server) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing actor", nil)
		return
	}
	var req statusChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	action, ok := domain.ParseStatusAction(req.Action)
	if !ok {
		writeError(w, r, http.StatusUnprocessableEntity, apperr.CodeValidationError, "unknown status action", map[string]any{"action": req.Action})
		return
	}
	a, err := s.Activities.ChangeStatus(r.Context(), actor, pathActivityID(r), action, idempotencyKey(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityResponse(a))
}

func (s *Server) handleGetActivity(w http.ResponseWriter, r *http.Request) {
	a, err := s.Activities.Get(r.Context(), pathActivityID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityResponse(a))
}

func (s *Server) handleListActivities(w http.ResponseWriter, r *http.Request) {
	as, err := s.Activities.List(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]activityResponse, 0, len(as))
	for _, a := range as {
		out = append(out, toActivityResponse(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"activities": out})
}

type rosterEntry struct {
	UserID     domain.UserID `json:"user_id"`
	CreatedAt  time.Time     `json:"created_at"`
	CanceledAt *time.Time    `json:"canceled_at,omitempty"`
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing actor", nil)
		return
	}
	regs, err := s.Activities.Roster(r.Context(), actor, pathActivityID(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	out := make([]rosterEntry, 0, len(regs))
	for _, reg := range regs {
		out = append(out, rosterEntry{
			UserID:     reg.UserID,
			CreatedAt:  reg.CreatedAt,
			CanceledAt: reg.CanceledAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"registrations": out})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing actor", nil)
		return
	}
	res, err := s.Registrations.Register(r.Context(), actor, pathActivityID(r), idempotencyKey(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.State == registrations.StateAlreadyActive {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing actor", nil)
		return
	}
	res, err := s.Registrations.Cancel(r.Context(), actor, pathActivityID(r), idempotencyKey(r))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleMyRegistrations(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing actor", nil)
		return
	}
	items, err := s.Registrations.ListMine(r.Context(), actor)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"registrations": items})
}

func pathActivityID(r *http.Request) domain.ActivityID {
	return domain.ActivityID(chi.URLParam(r, "activityID"))
}
