//go:build e2e

package e2e

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestE2E_DocumentLifecycle tests synchronous upload, search, listing, and
// deletion through the HTTP surface.
func TestE2E_DocumentLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	hrManager := Manager("hr")

	t.Run("upload document", func(t *testing.T) {
		resp, err := env.Post("/documents", map[string]interface{}{
			"document_name": "vacation-policy.md",
			"content":       "Employees receive 25 vacation days per year. Vacation requests need manager approval two weeks in advance.",
		}, hrManager)
		require.NoError(t, err)

		var result struct {
			Department   string `json:"department"`
			DocumentName string `json:"document_name"`
			ChunksStored int    `json:"chunks_stored"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.Equal(t, "hr", result.Department)
		assert.Equal(t, "vacation-policy.md", result.DocumentName)
		assert.GreaterOrEqual(t, result.ChunksStored, 1)
	})

	t.Run("search finds the document", func(t *testing.T) {
		resp, err := env.Post("/search", map[string]interface{}{
			"query": "vacation days approval",
		}, Employee("hr"))
		require.NoError(t, err)

		var search struct {
			Hits []struct {
				DocumentName  string  `json:"document_name"`
				SourceTier    string  `json:"source_tier"`
				CombinedScore float32 `json:"combined_score"`
			} `json:"hits"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &search))
		require.NotEmpty(t, search.Hits)
		assert.Equal(t, "vacation-policy.md", search.Hits[0].DocumentName)
		assert.Equal(t, "primary", search.Hits[0].SourceTier)
		assert.Greater(t, search.Hits[0].CombinedScore, float32(0))
	})

	t.Run("list documents", func(t *testing.T) {
		resp, err := env.Get("/documents", hrManager)
		require.NoError(t, err)

		var page struct {
			Items []struct {
				DocumentName string `json:"document_name"`
				Department   string `json:"department"`
			} `json:"items"`
			HasMore bool `json:"has_more"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &page))
		require.Len(t, page.Items, 1)
		assert.Equal(t, "vacation-policy.md", page.Items[0].DocumentName)
		assert.False(t, page.HasMore)
	})

	t.Run("kb stats reflect the upload", func(t *testing.T) {
		resp, err := env.Get("/kb/stats", hrManager)
		require.NoError(t, err)

		var stats []struct {
			Department string `json:"department"`
			SourceTier string `json:"source_tier"`
			Documents  int64  `json:"documents"`
			Chunks     int64  `json:"chunks"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &stats))
		require.Len(t, stats, 1)
		assert.Equal(t, "hr", stats[0].Department)
		assert.Equal(t, "primary", stats[0].SourceTier)
		assert.Equal(t, int64(1), stats[0].Documents)
	})

	t.Run("delete document removes chunks", func(t *testing.T) {
		resp, err := env.Delete("/documents/vacation-policy.md", hrManager)
		require.NoError(t, err)

		var result struct {
			ChunksDeleted int64 `json:"chunks_deleted"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.GreaterOrEqual(t, result.ChunksDeleted, int64(1))

		searchResp, err := env.Post("/search", map[string]interface{}{
			"query": "vacation days approval",
		}, Employee("hr"))
		require.NoError(t, err)

		var search struct {
			Hits []json.RawMessage `json:"hits"`
		}
		require.NoError(t, json.Unmarshal(searchResp.Data, &search))
		assert.Empty(t, search.Hits)
	})
}

// TestE2E_DepartmentScoping tests that retrieval respects department and
// access-level boundaries.
func TestE2E_DepartmentScoping(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	_, err := env.Post("/documents", map[string]interface{}{
		"document_name": "salary-bands.md",
		"access_level":  "manager",
		"content":       "Salary bands for engineering roles range from band one through band five.",
	}, Manager("hr"))
	require.NoError(t, err)

	_, err = env.Post("/documents", map[string]interface{}{
		"document_name": "travel-policy.md",
		"is_cross_dept": true,
		"content":       "Company travel policy: economy flights under six hours, book through the portal.",
	}, Manager("finance"))
	require.NoError(t, err)

	search := func(query string, id Identity) []string {
		resp, err := env.Post("/search", map[string]interface{}{"query": query}, id)
		require.NoError(t, err)

		var out struct {
			Hits []struct {
				DocumentName string `json:"document_name"`
			} `json:"hits"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &out))

		names := make([]string, 0, len(out.Hits))
		for _, h := range out.Hits {
			names = append(names, h.DocumentName)
		}
		return names
	}

	t.Run("other department cannot see hr documents", func(t *testing.T) {
		assert.NotContains(t, search("salary bands engineering", Manager("finance")), "salary-bands.md")
	})

	t.Run("employee cannot see manager-level documents", func(t *testing.T) {
		assert.NotContains(t, search("salary bands engineering", Employee("hr")), "salary-bands.md")
	})

	t.Run("manager in department sees the document", func(t *testing.T) {
		assert.Contains(t, search("salary bands engineering", Manager("hr")), "salary-bands.md")
	})

	t.Run("cross-department documents are visible everywhere", func(t *testing.T) {
		assert.Contains(t, search("travel policy flights", Employee("hr")), "travel-policy.md")
	})

	t.Run("missing identity headers are rejected", func(t *testing.T) {
		_, err := env.Post("/search", map[string]interface{}{"query": "anything"}, Identity{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("employee cannot use the admin surface", func(t *testing.T) {
		_, err := env.Get("/documents", Employee("hr"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})
}

// TestE2E_ChatAndFeedback tests the conversational flow and the
// feedback-to-knowledge-base promotion cycle.
func TestE2E_ChatAndFeedback(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	hrManager := Manager("hr")
	hrEmployee := Employee("hr")

	_, err := env.Post("/documents", map[string]interface{}{
		"document_name": "vacation-policy.md",
		"content":       "Employees receive 25 vacation days per year. Vacation requests need manager approval.",
	}, hrManager)
	require.NoError(t, err)

	t.Run("ask returns an answered response with sources", func(t *testing.T) {
		resp, err := env.Post("/chat/ask", map[string]interface{}{
			"session_id": "s1",
			"question":   "How many vacation days per year do employees receive?",
		}, hrEmployee)
		require.NoError(t, err)

		var answer struct {
			Kind    string   `json:"kind"`
			Answer  string   `json:"answer"`
			Sources []string `json:"sources"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &answer))
		assert.Equal(t, "answered", answer.Kind)
		assert.NotEmpty(t, answer.Answer)
		require.NotEmpty(t, answer.Sources)
		assert.Contains(t, answer.Sources[0], "vacation-policy.md")
	})

	t.Run("unrelated question returns low confidence", func(t *testing.T) {
		resp, err := env.Post("/chat/ask", map[string]interface{}{
			"session_id": "s1",
			"question":   "quarterly derivatives settlement logistics",
		}, hrEmployee)
		require.NoError(t, err)

		var answer struct {
			Kind    string   `json:"kind"`
			Sources []string `json:"sources"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &answer))
		assert.Equal(t, "low_confidence", answer.Kind)
		assert.Empty(t, answer.Sources)
	})

	t.Run("clear history is idempotent", func(t *testing.T) {
		_, err := env.Post("/chat/clear", map[string]interface{}{"session_id": "s1"}, hrEmployee)
		require.NoError(t, err)
		_, err = env.Post("/chat/clear", map[string]interface{}{"session_id": "s1"}, hrEmployee)
		require.NoError(t, err)
	})

	var feedbackID string

	t.Run("submit feedback", func(t *testing.T) {
		resp, err := env.Post("/feedback", map[string]interface{}{
			"original_question": "How many sick days do employees get?",
			"original_answer":   "Employees get 5 sick days.",
			"corrected_answer":  "Employees get 10 sick days per year, with a doctor's note after three consecutive days.",
		}, hrEmployee)
		require.NoError(t, err)

		var fb struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &fb))
		assert.NotEmpty(t, fb.ID)
		assert.Equal(t, "pending", fb.Status)
		feedbackID = fb.ID
	})

	t.Run("pending list shows the submission", func(t *testing.T) {
		resp, err := env.Get("/feedback/pending", hrManager)
		require.NoError(t, err)

		var pending []struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &pending))
		require.Len(t, pending, 1)
		assert.Equal(t, feedbackID, pending[0].ID)
	})

	t.Run("approve promotes into the admin-reviewed tier", func(t *testing.T) {
		resp, err := env.Post("/feedback/"+feedbackID+"/approve", nil, hrManager)
		require.NoError(t, err)

		var result struct {
			ChunksCreated int `json:"chunks_created"`
			VectorsStored int `json:"vectors_stored"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.GreaterOrEqual(t, result.ChunksCreated, 1)
		assert.Equal(t, result.ChunksCreated, result.VectorsStored)
	})

	t.Run("promoted knowledge is searchable", func(t *testing.T) {
		resp, err := env.Post("/search", map[string]interface{}{
			"query": "sick days doctor note",
		}, hrEmployee)
		require.NoError(t, err)

		var search struct {
			Hits []struct {
				SourceTier string `json:"source_tier"`
				Content    string `json:"content"`
			} `json:"hits"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &search))
		require.NotEmpty(t, search.Hits)

		found := false
		for _, hit := range search.Hits {
			if hit.SourceTier == "secondary" && strings.Contains(hit.Content, "10 sick days") {
				found = true
				break
			}
		}
		assert.True(t, found, "promoted feedback should surface as a secondary-tier hit")
	})

	t.Run("retract removes the promoted chunks", func(t *testing.T) {
		resp, err := env.Post("/feedback/"+feedbackID+"/retract", nil, hrManager)
		require.NoError(t, err)

		var result struct {
			ChunksDeleted int64 `json:"chunks_deleted"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.GreaterOrEqual(t, result.ChunksDeleted, int64(1))
	})

	t.Run("rebuild restores approved feedback", func(t *testing.T) {
		// Retraction flipped the feedback out of approved, so rebuild from an
		// empty approved set yields zero chunks.
		resp, err := env.Post("/kb/rebuild", nil, hrManager)
		require.NoError(t, err)

		var result struct {
			ChunksCreated int `json:"chunks_created"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &result))
		assert.Equal(t, 0, result.ChunksCreated)
	})
}

// TestE2E_AsyncIngest tests the spool-to-object-storage job path end to end.
func TestE2E_AsyncIngest(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	itManager := Manager("it")

	var jobID string

	t.Run("enqueue returns a pending job", func(t *testing.T) {
		resp, err := env.Post("/documents/jobs", map[string]interface{}{
			"document_name": "vpn-setup.md",
			"content":       "Connect to the corporate VPN using the gateway client with your employee credentials.",
		}, itManager)
		require.NoError(t, err)

		var job struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &job))
		assert.NotEmpty(t, job.ID)
		assert.Equal(t, "pending", job.Status)
		jobID = job.ID
	})

	t.Run("worker completes the job", func(t *testing.T) {
		require.Eventually(t, func() bool {
			resp, err := env.Get("/documents/jobs/"+jobID, itManager)
			if err != nil {
				return false
			}
			var job struct {
				Status string `json:"status"`
			}
			if json.Unmarshal(resp.Data, &job) != nil {
				return false
			}
			return job.Status == "completed"
		}, 15*time.Second, 250*time.Millisecond, "ingest job should complete")
	})

	t.Run("ingested document is searchable", func(t *testing.T) {
		resp, err := env.Post("/search", map[string]interface{}{
			"query": "corporate VPN gateway credentials",
		}, Employee("it"))
		require.NoError(t, err)

		var search struct {
			Hits []struct {
				DocumentName string `json:"document_name"`
			} `json:"hits"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &search))
		require.NotEmpty(t, search.Hits)
		assert.Equal(t, "vpn-setup.md", search.Hits[0].DocumentName)
	})
}
