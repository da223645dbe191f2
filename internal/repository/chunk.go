package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/ragdesk/ragdesk/internal/domain"
	"github.com/ragdesk/ragdesk/internal/pagination"
	"github.com/ragdesk/ragdesk/internal/service"
)

const insertBatchSize = 50

const candidateColumns = `id, department, content, access_level, source_tier, is_cross_dept, document_name, document_type, feedback_id`

type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

// InsertBatch stores chunks in batches of 50. Inside a batch each row runs
// under a savepoint: a failing row is rolled back, logged, and skipped
// without aborting the rest. Returns how many rows were actually stored.
func (r *ChunkRepository) InsertBatch(ctx context.Context, chunks []*domain.DocumentChunk) (int, error) {
	inserted := 0
	for start := 0; start < len(chunks); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		n, err := r.insertBatch(ctx, chunks[start:end])
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (r *ChunkRepository) insertBatch(ctx context.Context, batch []*domain.DocumentChunk) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, domain.NewStorageError("begin insert batch", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	inserted := 0
	for _, c := range batch {
		// Begin on a tx opens a savepoint, so one bad row does not
		// poison the batch.
		sp, err := tx.Begin(ctx)
		if err != nil {
			return inserted, domain.NewStorageError("open savepoint", err)
		}

		_, execErr := sp.Exec(ctx,
			`INSERT INTO document_chunks
				(id, department, content, embedding, access_level, source_tier, is_cross_dept,
				 document_name, document_type, content_hash, feedback_id, uploaded_by, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			c.ID,
			c.Department,
			c.Content,
			pgvector.NewVector(c.Embedding),
			c.AccessLevel,
			c.SourceTier,
			c.IsCrossDept,
			c.DocumentName,
			c.DocumentType,
			nullableString(c.ContentHash),
			nullableString(c.FeedbackID),
			nullableString(c.UploadedBy),
			c.CreatedAt,
		)
		if execErr != nil {
			_ = sp.Rollback(ctx)
			log.Printf("Skipping chunk %s of %s: %v", c.ID, c.DocumentName, execErr)
			continue
		}
		if err := sp.Commit(ctx); err != nil {
			return inserted, domain.NewStorageError("release savepoint", err)
		}
		inserted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, domain.NewStorageError("commit insert batch", err)
	}
	return inserted, nil
}

// VectorSearch returns the closest chunks by cosine similarity within the
// query's tier, department, and access scope.
func (r *ChunkRepository) VectorSearch(ctx context.Context, embedding []float32, q service.ChunkQuery) ([]*service.ChunkCandidate, error) {
	pred, predArgs := buildChunkPredicate(q, 2)
	args := append([]any{pgvector.NewVector(embedding)}, predArgs...)
	args = append(args, q.Limit)

	sql := fmt.Sprintf(
		`SELECT %s, 1 - (embedding <=> $1) AS similarity
		 FROM document_chunks
		 WHERE %s
		 ORDER BY embedding <=> $1
		 LIMIT $%d`,
		candidateColumns, pred, len(args),
	)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*service.ChunkCandidate
	for rows.Next() {
		c, err := scanCandidate(rows, true)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// KeywordSearch returns chunks whose content matches any keyword, scored by
// the fraction of keywords each chunk matches. Keywords arrive pre-extracted
// and are bound as ILIKE patterns, never interpolated.
func (r *ChunkRepository) KeywordSearch(ctx context.Context, keywords []string, q service.ChunkQuery) ([]*service.ChunkCandidate, error) {
	if len(keywords) == 0 {
		return nil, nil
	}

	patterns := make([]string, len(keywords))
	for i, kw := range keywords {
		patterns[i] = "%" + escapeLike(kw) + "%"
	}

	pred, predArgs := buildChunkPredicate(q, 2)
	args := append([]any{patterns}, predArgs...)
	args = append(args, q.Limit)

	sql := fmt.Sprintf(
		`SELECT %s
		 FROM document_chunks
		 WHERE content ILIKE ANY($1) AND %s
		 LIMIT $%d`,
		candidateColumns, pred, len(args),
	)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*service.ChunkCandidate
	for rows.Next() {
		c, err := scanCandidate(rows, false)
		if err != nil {
			return nil, err
		}
		c.KeywordScore = keywordScore(c.Content, keywords)
		results = append(results, c)
	}
	return results, rows.Err()
}

// DeleteByDocument removes every chunk of the named document within a
// department.
func (r *ChunkRepository) DeleteByDocument(ctx context.Context, department, documentName string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE department = $1 AND document_name = $2`,
		department, documentName,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteByFeedback removes exactly the chunks promoted from one feedback
// entry.
func (r *ChunkRepository) DeleteByFeedback(ctx context.Context, feedbackID string) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE feedback_id = $1`,
		feedbackID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteSecondary wipes the entire admin-reviewed tier.
func (r *ChunkRepository) DeleteSecondary(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM document_chunks WHERE source_tier = $1`,
		domain.TierSecondary,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// FindInheritContext returns the access scoping of the department's most
// recently ingested primary chunk, or nil when the department has none.
func (r *ChunkRepository) FindInheritContext(ctx context.Context, department string) (*service.InheritContext, error) {
	var inherit service.InheritContext
	err := r.db.QueryRow(ctx,
		`SELECT access_level, is_cross_dept
		 FROM document_chunks
		 WHERE department = $1 AND source_tier = $2
		 ORDER BY created_at DESC
		 LIMIT 1`,
		department, domain.TierPrimary,
	).Scan(&inherit.AccessLevel, &inherit.IsCrossDept)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inherit, nil
}

// Stats aggregates document and chunk counts per department and tier.
func (r *ChunkRepository) Stats(ctx context.Context) ([]*service.TierStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT department, source_tier, COUNT(DISTINCT document_name), COUNT(*)
		 FROM document_chunks
		 GROUP BY department, source_tier
		 ORDER BY department, source_tier`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []*service.TierStats
	for rows.Next() {
		var s service.TierStats
		if err := rows.Scan(&s.Department, &s.SourceTier, &s.Documents, &s.Chunks); err != nil {
			return nil, err
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// ListDocuments pages through a department's primary documents, newest
// first, using keyset pagination on (uploaded_at, document_name).
func (r *ChunkRepository) ListDocuments(ctx context.Context, department string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*service.DocumentInfo], error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT document_name, document_type, department, access_level, is_cross_dept,
			        COUNT(*) AS chunks, MAX(created_at) AS uploaded_at
			 FROM document_chunks
			 WHERE department = $1 AND source_tier = $2
			 GROUP BY document_name, document_type, department, access_level, is_cross_dept
			 HAVING (MAX(created_at), document_name) < ($3, $4)
			 ORDER BY uploaded_at DESC, document_name DESC
			 LIMIT $5`,
			department, domain.TierPrimary, cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT document_name, document_type, department, access_level, is_cross_dept,
			        COUNT(*) AS chunks, MAX(created_at) AS uploaded_at
			 FROM document_chunks
			 WHERE department = $1 AND source_tier = $2
			 GROUP BY document_name, document_type, department, access_level, is_cross_dept
			 ORDER BY uploaded_at DESC, document_name DESC
			 LIMIT $3`,
			department, domain.TierPrimary, limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*service.DocumentInfo
	for rows.Next() {
		var d service.DocumentInfo
		if err := rows.Scan(&d.DocumentName, &d.DocumentType, &d.Department, &d.AccessLevel, &d.IsCrossDept, &d.Chunks, &d.UploadedAt); err != nil {
			return nil, err
		}
		items = append(items, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &pagination.PageResult[*service.DocumentInfo]{Items: items}
	if len(items) > limit {
		result.Items = items[:limit]
		result.HasMore = true
		last := result.Items[limit-1]
		result.Cursor = pagination.EncodeCursor(last.DocumentName, last.UploadedAt)
	}
	return result, nil
}

// scanCandidate reads one candidate row, with or without the trailing
// similarity column.
func scanCandidate(rows pgx.Rows, withSimilarity bool) (*service.ChunkCandidate, error) {
	var c service.ChunkCandidate
	var feedbackID pgtype.Text

	dest := []any{
		&c.ID, &c.Department, &c.Content, &c.AccessLevel, &c.SourceTier,
		&c.IsCrossDept, &c.DocumentName, &c.DocumentType, &feedbackID,
	}
	if withSimilarity {
		dest = append(dest, &c.VectorScore)
	}
	if err := rows.Scan(dest...); err != nil {
		return nil, err
	}
	if feedbackID.Valid {
		c.FeedbackID = feedbackID.String
	}
	return &c, nil
}

// keywordScore is the fraction of keywords present in the content,
// case-insensitive.
func keywordScore(content string, keywords []string) float32 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			matched++
		}
	}
	return float32(matched) / float32(len(keywords))
}

// escapeLike escapes LIKE metacharacters in a keyword.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
