package sequence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const insertEnrollment = `INSERT INTO sequence_enrollments (id, user_id, sequence_id, context, status, enrolled_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, sequence_id) DO NOTHING`

// PostgresTrigger records enrollments in the sequence_enrollments table,
// where the delivery system picks them up.
type PostgresTrigger struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresTrigger creates a trigger over an open database.
func NewPostgresTrigger(db *sql.DB) *PostgresTrigger {
	return &PostgresTrigger{db: db, now: time.Now}
}

func (p *PostgresTrigger) TriggerSequence(ctx context.Context, userID, sequenceID string, contextData map[string]any) error {
	if err := validate(userID, sequenceID); err != nil {
		return err
	}
	if contextData == nil {
		contextData = map[string]any{}
	}
	data, err := json.Marshal(contextData)
	if err != nil {
		return fmt.Errorf("failed to encode context for %s: %w", sequenceID, err)
	}
	_, err = p.db.ExecContext(ctx, insertEnrollment,
		uuid.NewString(), userID, sequenceID, data, StatusPending, p.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to enroll %s in %s: %w", userID, sequenceID, err)
	}
	return nil
}
