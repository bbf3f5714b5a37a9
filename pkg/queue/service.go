// Package queue manages a clinic's appointment queue. Every change goes
// through storage.Mutator, so each committed mutation leaves one audit entry
// in the owning tenant's audit trail.
package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/clinicq/pkg/audit"
	"github.com/platinummonkey/clinicq/pkg/contextkeys"
	"github.com/platinummonkey/clinicq/pkg/models"
	"github.com/platinummonkey/clinicq/pkg/storage"
)

var (
	// ErrNotFound is returned for unknown or deleted queue entries
	ErrNotFound = errors.New("queue entry not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrInvalidRequest is returned for incomplete create requests
	ErrInvalidRequest = errors.New("invalid queue request")
)

const schema = `
CREATE TABLE IF NOT EXISTS queues (
	id VARCHAR(36) PRIMARY KEY,
	patient_id VARCHAR(36) NOT NULL,
	doctor_id VARCHAR(36) NOT NULL,
	branch_id VARCHAR(36) NOT NULL,
	service_id VARCHAR(36),
	number INTEGER NOT NULL,
	status VARCHAR(20) NOT NULL,
	scheduled_at TIMESTAMPTZ NOT NULL,
	called_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	deleted_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_queues_doctor_scheduled ON queues(doctor_id, scheduled_at);
CREATE UNIQUE INDEX IF NOT EXISTS idx_queues_doctor_day_number
	ON queues(doctor_id, ((scheduled_at AT TIME ZONE 'UTC')::date), number);
`

const selectColumns = `id, patient_id, doctor_id, branch_id, service_id, number, status,
	scheduled_at, called_at, created_at, updated_at, deleted_at`

// EnsureSchema creates the queues table in a tenant database
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure queues table: %w", err)
	}
	return nil
}

var transitions = map[models.QueueStatus][]models.QueueStatus{
	models.QueueBooked:    {models.QueueCalled, models.QueueCanceled, models.QueueNoShow},
	models.QueueCalled:    {models.QueueInService, models.QueueNoShow, models.QueueCanceled},
	models.QueueInService: {models.QueueCompleted},
}

// CanTransition reports whether a queue entry may move from one status to another
func CanTransition(from, to models.QueueStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CreateRequest holds the fields of a new queue entry
type CreateRequest struct {
	PatientID   string    `json:"patient_id"`
	DoctorID    string    `json:"doctor_id"`
	BranchID    string    `json:"branch_id"`
	ServiceID   string    `json:"service_id,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
}

func (r CreateRequest) validate() error {
	var missing []string
	if r.PatientID == "" {
		missing = append(missing, "patient_id")
	}
	if r.DoctorID == "" {
		missing = append(missing, "doctor_id")
	}
	if r.BranchID == "" {
		missing = append(missing, "branch_id")
	}
	if r.ScheduledAt.IsZero() {
		missing = append(missing, "scheduled_at")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Service reads and mutates the queue of the tenant bound to the context
type Service struct {
	source  audit.DBSource
	mutator *storage.Mutator
	now     func() time.Time
	newID   func() string
}

// NewService creates a queue service
func NewService(source audit.DBSource, mutator *storage.Mutator) *Service {
	return &Service{
		source:  source,
		mutator: mutator,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.New().String() },
	}
}

// Get returns a live queue entry
func (s *Service) Get(ctx context.Context, id string) (*models.Queue, error) {
	tenant := contextkeys.GetTenant(ctx)
	if tenant == "" {
		return nil, audit.ErrNoTenant
	}

	db, err := s.source.Tenant(ctx, tenant)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM queues WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanQueue(row)
}

// Create books a new queue entry, numbering it after the doctor's last entry of the day
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Queue, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	q := &models.Queue{
		ID:          s.newID(),
		PatientID:   req.PatientID,
		DoctorID:    req.DoctorID,
		BranchID:    req.BranchID,
		ServiceID:   req.ServiceID,
		Status:      models.QueueBooked,
		ScheduledAt: req.ScheduledAt.UTC(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.mutator.Create(ctx, q, func(ctx context.Context, tx *sql.Tx) error {
		day := q.ScheduledAt.Truncate(24 * time.Hour)

		// numbers are handed out one booking at a time per doctor and day
		_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, numberingKey(q.DoctorID, day))
		if err != nil {
			return fmt.Errorf("failed to lock queue numbering: %w", err)
		}

		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(number), 0) + 1 FROM queues
			WHERE doctor_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3`,
			q.DoctorID, day, day.Add(24*time.Hour),
		).Scan(&q.Number)
		if err != nil {
			return fmt.Errorf("failed to number queue entry: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO queues (id, patient_id, doctor_id, branch_id, service_id, number, status,
				scheduled_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			q.ID, q.PatientID, q.DoctorID, q.BranchID, nullString(q.ServiceID), q.Number, q.Status,
			q.ScheduledAt, q.CreatedAt, q.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert queue entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return q, nil
}

// UpdateStatus moves a queue entry to a new status
func (s *Service) UpdateStatus(ctx context.Context, id string, status models.QueueStatus) (*models.Queue, error) {
	before := &models.Queue{}
	after := &models.Queue{}
	touched := []string{"status", "updated_at"}
	if status == models.QueueCalled {
		touched = append(touched, "called_at")
	}

	err := s.mutator.Update(ctx, before, after, touched, func(ctx context.Context, tx *sql.Tx) error {
		current, err := lockQueue(ctx, tx, id)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, status)
		}

		*before = *current
		*after = *current
		after.Status = status
		after.UpdatedAt = s.now()
		if status == models.QueueCalled {
			calledAt := after.UpdatedAt
			after.CalledAt = &calledAt
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE queues SET status = $1, called_at = $2, updated_at = $3 WHERE id = $4`,
			after.Status, after.CalledAt, after.UpdatedAt, id,
		)
		if err != nil {
			return fmt.Errorf("failed to update queue entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return after, nil
}

// Remove soft-deletes a queue entry
func (s *Service) Remove(ctx context.Context, id string) error {
	before := &models.Queue{}
	after := &models.Queue{}

	return s.mutator.SoftDelete(ctx, before, after, func(ctx context.Context, tx *sql.Tx) error {
		current, err := lockQueue(ctx, tx, id)
		if err != nil {
			return err
		}

		*before = *current
		*after = *current
		deletedAt := s.now()
		after.DeletedAt = &deletedAt
		after.UpdatedAt = deletedAt

		_, err = tx.ExecContext(ctx,
			`UPDATE queues SET deleted_at = $1, updated_at = $1 WHERE id = $2`, deletedAt, id)
		if err != nil {
			return fmt.Errorf("failed to remove queue entry: %w", err)
		}
		return nil
	})
}

// Restore brings back a soft-deleted queue entry
func (s *Service) Restore(ctx context.Context, id string) (*models.Queue, error) {
	restored := &models.Queue{}

	err := s.mutator.Restore(ctx, restored, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+selectColumns+` FROM queues WHERE id = $1 AND deleted_at IS NOT NULL FOR UPDATE`, id)
		current, err := scanQueue(row)
		if err != nil {
			return err
		}

		*restored = *current
		restored.DeletedAt = nil
		restored.UpdatedAt = s.now()

		_, err = tx.ExecContext(ctx,
			`UPDATE queues SET deleted_at = NULL, updated_at = $1 WHERE id = $2`, restored.UpdatedAt, id)
		if err != nil {
			return fmt.Errorf("failed to restore queue entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return restored, nil
}

func numberingKey(doctorID string, day time.Time) string {
	return "queues:" + doctorID + ":" + day.Format("2006-01-02")
}

func lockQueue(ctx context.Context, tx *sql.Tx, id string) (*models.Queue, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM queues WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, id)
	return scanQueue(row)
}

func scanQueue(row *sql.Row) (*models.Queue, error) {
	var (
		q         models.Queue
		serviceID sql.NullString
	)

	err := row.Scan(
		&q.ID, &q.PatientID, &q.DoctorID, &q.BranchID, &serviceID, &q.Number, &q.Status,
		&q.ScheduledAt, &q.CalledAt, &q.CreatedAt, &q.UpdatedAt, &q.DeletedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read queue entry: %w", err)
	}

	q.ServiceID = serviceID.String
	return &q, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
