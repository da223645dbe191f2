package repository

import (
	"fmt"
	"strings"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/service"
)

// buildChunkPredicate renders the WHERE clause for a scoped chunk query.
// Column names are fixed here; caller input only ever flows into bind
// arguments. The secondary tier is shared knowledge: it keeps the access
// level filter but skips department scoping.
func buildChunkPredicate(q service.ChunkQuery, argStart int) (string, []any) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, 3)
	n := argStart

	conds = append(conds, fmt.Sprintf("source_tier = $%d", n))
	args = append(args, string(q.Tier))
	n++

	levels := make([]string, len(q.AccessLevels))
	for i, l := range q.AccessLevels {
		levels[i] = string(l)
	}
	conds = append(conds, fmt.Sprintf("access_level = ANY($%d)", n))
	args = append(args, levels)
	n++

	if q.Tier != domain.TierSecondary {
		conds = append(conds, fmt.Sprintf("(department = $%d OR is_cross_dept)", n))
		args = append(args, q.Department)
	}

	return strings.Join(conds, " AND "), args
}
