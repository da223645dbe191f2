//go:build integration

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/testutil"
)

func testFeedback(department string) *domain.Feedback {
	return &domain.Feedback{
		ID:               uuid.NewString(),
		Department:       department,
		UserID:           "user-1",
		OriginalQuestion: "How many vacation days do employees get?",
		OriginalAnswer:   "Employees get 10 days.",
		CorrectedAnswer:  "Employees get 25 days per year.",
		Status:           domain.FeedbackStatusPending,
		CreatedAt:        time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestFeedbackRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewFeedbackRepository(pool)

	fb := testFeedback("hr")
	require.NoError(t, repo.Create(ctx, fb))

	got, err := repo.GetByID(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, fb.OriginalQuestion, got.OriginalQuestion)
	assert.Equal(t, domain.FeedbackStatusPending, got.Status)
	assert.Empty(t, got.ReviewedBy)

	err = repo.UpdateStatus(ctx, fb.ID, domain.FeedbackStatusApproved, "admin-1", "verified against the handbook")
	require.NoError(t, err)

	got, err = repo.GetByID(ctx, fb.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FeedbackStatusApproved, got.Status)
	assert.Equal(t, "admin-1", got.ReviewedBy)
	assert.Equal(t, "verified against the handbook", got.AdminNotes)
	require.NotNil(t, got.ReviewedAt)
	assert.False(t, got.ReviewedAt.IsZero())
}

func TestFeedbackRepository_GetByID_NotFound(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewFeedbackRepository(pool)

	_, err := repo.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrFeedbackNotFound)
}

func TestFeedbackRepository_UpdateStatus_InvalidStatus(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewFeedbackRepository(pool)

	fb := testFeedback("hr")
	require.NoError(t, repo.Create(ctx, fb))

	err := repo.UpdateStatus(ctx, fb.ID, domain.FeedbackStatus("archived"), "admin-1", "")
	assert.Error(t, err)
}

func TestFeedbackRepository_ListByStatus(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	pool := testutil.NewTestPool(ctx, t, pc, "../../migrations")
	defer pool.Close()

	repo := NewFeedbackRepository(pool)

	first := testFeedback("hr")
	second := testFeedback("finance")
	second.CreatedAt = first.CreatedAt.Add(time.Second)
	third := testFeedback("hr")
	third.CreatedAt = first.CreatedAt.Add(2 * time.Second)

	for _, fb := range []*domain.Feedback{first, second, third} {
		require.NoError(t, repo.Create(ctx, fb))
	}
	require.NoError(t, repo.UpdateStatus(ctx, second.ID, domain.FeedbackStatusApproved, "admin-1", ""))

	pending, err := repo.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	// Oldest first.
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, third.ID, pending[1].ID)

	approved, err := repo.ListApproved(ctx)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Equal(t, second.ID, approved[0].ID)
}
