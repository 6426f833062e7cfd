package sequence

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_TriggerSequence(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.TriggerSequence(ctx, "u-1", "soft_member_welcome", map[string]any{"score": 72.0}))
	require.NoError(t, m.TriggerSequence(ctx, "u-1", "advanced_content_access", nil))
	require.NoError(t, m.TriggerSequence(ctx, "u-1", "soft_member_welcome", map[string]any{"score": 90.0}))
	require.NoError(t, m.TriggerSequence(ctx, "u-2", "engaged_visitor_welcome", nil))

	got := m.Enrollments("u-1")
	require.Len(t, got, 2)
	assert.Equal(t, "soft_member_welcome", got[0].SequenceID)
	assert.Equal(t, 72.0, got[0].Context["score"])
	assert.Equal(t, StatusPending, got[1].Status)
	assert.Empty(t, m.Enrollments("nobody"))

	assert.ErrorIs(t, m.TriggerSequence(ctx, "", "x", nil), ErrEmptyUser)
	assert.ErrorIs(t, m.TriggerSequence(ctx, "u-1", "", nil), ErrEmptySequence)
}

func TestPostgresTrigger_TriggerSequence(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	p := NewPostgresTrigger(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sequence_enrollments")).
		WithArgs(sqlmock.AnyArg(), "u-1", "win_back_series", []byte(`{"previous_tier":"engaged"}`), StatusPending, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (user_id, sequence_id) DO NOTHING")).
		WithArgs(sqlmock.AnyArg(), "u-1", "engaged_visitor_welcome", []byte(`{}`), StatusPending, sqlmock.AnyArg()).
		WillReturnError(errors.New("connection refused"))

	require.NoError(t, p.TriggerSequence(context.Background(), "u-1", "win_back_series", map[string]any{"previous_tier": "engaged"}))

	err = p.TriggerSequence(context.Background(), "u-1", "engaged_visitor_welcome", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engaged_visitor_welcome")

	assert.ErrorIs(t, p.TriggerSequence(context.Background(), "u-1", "", nil), ErrEmptySequence)
	assert.NoError(t, mock.ExpectationsWereMet())
}
