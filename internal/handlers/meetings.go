package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/connecthub/backend/internal/meetings"
	"github.com/connecthub/backend/internal/models"
)

// MeetingStore is the slice of the meetings service the HTTP API needs.
type MeetingStore interface {
	CreateMeeting(ctx context.Context, req meetings.CreateRequest) (*models.Meeting, error)
	GetMeeting(ctx context.Context, meetingID string) (*models.Meeting, error)
	UpdateStatus(ctx context.Context, meetingID, status string) (*models.Meeting, error)
}

type MeetingHandler struct {
	store MeetingStore
}

func NewMeetingHandler(store MeetingStore) *MeetingHandler {
	return &MeetingHandler{store: store}
}

// Create handles POST /api/meetings: the host's scheduling action.
func (h *MeetingHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req meetings.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.HostID == "" || req.Participant == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "host, participant and title are required")
		return
	}
	if !req.EndTime.After(req.StartTime) {
		writeError(w, http.StatusBadRequest, "endTime must be after startTime")
		return
	}

	m, err := h.store.CreateMeeting(r.Context(), req)
	if err != nil {
		log.Printf("[HTTP] create meeting: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create meeting")
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// Get handles GET /api/meetings/{meetingId}.
func (h *MeetingHandler) Get(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["meetingId"]

	m, err := h.store.GetMeeting(r.Context(), meetingID)
	if errors.Is(err, meetings.ErrNotFound) {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}
	if err != nil {
		log.Printf("[HTTP] get meeting %s: %v", meetingID, err)
		writeError(w, http.StatusInternalServerError, "failed to load meeting")
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// UpdateStatus handles PATCH /api/meetings/{meetingId}/status.
func (h *MeetingHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	meetingID := mux.Vars(r)["meetingId"]

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.store.UpdateStatus(r.Context(), meetingID, req.Status)
	if errors.Is(err, meetings.ErrInvalidStatus) {
		writeError(w, http.StatusBadRequest, "status must be scheduled, completed or cancelled")
		return
	}
	if errors.Is(err, meetings.ErrNotFound) {
		writeError(w, http.StatusNotFound, "meeting not found")
		return
	}
	if err != nil {
		log.Printf("[HTTP] update meeting %s: %v", meetingID, err)
		writeError(w, http.StatusInternalServerError, "failed to update meeting")
		return
	}

	writeJSON(w, http.StatusOK, m)
}
