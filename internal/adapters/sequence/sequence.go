// Package sequence enrolls users into follow-up message sequences.
package sequence

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Enrollment status values.
const (
	StatusPending = "pending"
)

var (
	// ErrEmptySequence is returned when no sequence ID is given.
	ErrEmptySequence = errors.New("sequence id is empty")
	// ErrEmptyUser is returned when no user ID is given.
	ErrEmptyUser = errors.New("user id is empty")
)

// Trigger starts a sequence for a user. Re-triggering an active
// enrollment is a no-op.
type Trigger interface {
	TriggerSequence(ctx context.Context, userID, sequenceID string, contextData map[string]any) error
}

// Enrollment is one user's membership in a sequence.
type Enrollment struct {
	ID         string         `json:"id"`
	UserID     string         `json:"user_id"`
	SequenceID string         `json:"sequence_id"`
	Context    map[string]any `json:"context"`
	Status     string         `json:"status"`
	EnrolledAt time.Time      `json:"enrolled_at"`
}

func validate(userID, sequenceID string) error {
	if userID == "" {
		return ErrEmptyUser
	}
	if sequenceID == "" {
		return ErrEmptySequence
	}
	return nil
}

// Memory keeps enrollments in process.
type Memory struct {
	mu          sync.Mutex
	enrollments map[[2]string]Enrollment
	order       [][2]string
	now         func() time.Time
}

// NewMemory creates an empty in-memory trigger.
func NewMemory() *Memory {
	return &Memory{
		enrollments: map[[2]string]Enrollment{},
		now:         time.Now,
	}
}

func (m *Memory) TriggerSequence(_ context.Context, userID, sequenceID string, contextData map[string]any) error {
	if err := validate(userID, sequenceID); err != nil {
		return err
	}
	key := [2]string{userID, sequenceID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.enrollments[key]; ok {
		return nil
	}
	m.enrollments[key] = Enrollment{
		UserID:     userID,
		SequenceID: sequenceID,
		Context:    contextData,
		Status:     StatusPending,
		EnrolledAt: m.now().UTC(),
	}
	m.order = append(m.order, key)
	return nil
}

// Enrollments returns a user's enrollments in trigger order.
func (m *Memory) Enrollments(userID string) []Enrollment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Enrollment{}
	for _, k := range m.order {
		if k[0] == userID {
			out = append(out, m.enrollments[k])
		}
	}
	return out
}
