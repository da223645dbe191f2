package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/service"
)

func TestBuildChunkPredicate_Primary(t *testing.T) {
	pred, args := buildChunkPredicate(service.ChunkQuery{
		Tier:         domain.TierPrimary,
		Department:   "hr",
		AccessLevels: []domain.AccessLevel{domain.AccessPublic, domain.AccessEmployee},
	}, 2)

	assert.Equal(t, "source_tier = $2 AND access_level = ANY($3) AND (department = $4 OR is_cross_dept)", pred)
	assert.Equal(t, []any{"primary", []string{"public", "employee"}, "hr"}, args)
}

func TestBuildChunkPredicate_SecondarySkipsDepartment(t *testing.T) {
	pred, args := buildChunkPredicate(service.ChunkQuery{
		Tier:         domain.TierSecondary,
		Department:   "hr",
		AccessLevels: []domain.AccessLevel{domain.AccessEmployee},
	}, 1)

	assert.Equal(t, "source_tier = $1 AND access_level = ANY($2)", pred)
	assert.Equal(t, []any{"secondary", []string{"employee"}}, args)
}
