// Package meetings is the durable store for scheduled meetings. Scheduling
// happens over HTTP; the signaling layer reads meetings only to resolve a
// display title.
package meetings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/connecthub/backend/internal/models"
)

var (
	ErrNotFound      = errors.New("meetings: meeting not found")
	ErrInvalidStatus = errors.New("meetings: invalid status")
)

type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// CreateRequest carries the host's scheduling action.
type CreateRequest struct {
	HostID      string    `json:"host"`
	Participant string    `json:"participant"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// CreateMeeting schedules a meeting and mints its globally unique
// meeting id, which clients later use to join the meeting room.
func (s *Service) CreateMeeting(ctx context.Context, req CreateRequest) (*models.Meeting, error) {
	m := &models.Meeting{
		ID:          uuid.New(),
		MeetingID:   uuid.New().String(),
		HostID:      req.HostID,
		Participant: req.Participant,
		Title:       req.Title,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Status:      models.MeetingScheduled,
		CreatedAt:   time.Now(),
	}

	query := `
		INSERT INTO meetings (id, meeting_id, host_id, participant_id, title, description,
		                      start_time, end_time, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.MeetingID, m.HostID, m.Participant, m.Title, m.Description,
		m.StartTime, m.EndTime, m.Status, m.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create meeting: %w", err)
	}

	return m, nil
}

// GetMeeting looks a meeting up by its meeting id.
func (s *Service) GetMeeting(ctx context.Context, meetingID string) (*models.Meeting, error) {
	query := `
		SELECT id, meeting_id, host_id, participant_id, title, description,
		       start_time, end_time, status, created_at
		FROM meetings
		WHERE meeting_id = $1
	`

	var m models.Meeting
	err := s.db.QueryRowContext(ctx, query, meetingID).Scan(
		&m.ID, &m.MeetingID, &m.HostID, &m.Participant, &m.Title, &m.Description,
		&m.StartTime, &m.EndTime, &m.Status, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query meeting: %w", err)
	}

	return &m, nil
}

// UpdateStatus moves a meeting between scheduled, completed and cancelled.
// Either party may call this; no transition rules beyond the enum itself.
func (s *Service) UpdateStatus(ctx context.Context, meetingID, status string) (*models.Meeting, error) {
	if !models.ValidMeetingStatus(status) {
		return nil, ErrInvalidStatus
	}

	query := `UPDATE meetings SET status = $1 WHERE meeting_id = $2`
	res, err := s.db.ExecContext(ctx, query, status, meetingID)
	if err != nil {
		return nil, fmt.Errorf("failed to update meeting status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	return s.GetMeeting(ctx, meetingID)
}
