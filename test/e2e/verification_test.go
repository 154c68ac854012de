//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/urlverifier/pkg/client"
)

func submitter(t *testing.T) *client.Client {
	t.Helper()
	return newClient(testCtx.TestServer, createTestAPIKey(t, testCtx.Store, "e2e-"+t.Name()))
}

func TestVerification_SubmitAndRead(t *testing.T) {
	ctx := context.Background()
	c := submitter(t)
	target := uniqueURL(t, "ok")

	resp, err := c.Submit(ctx, client.SubmitRequest{URL: "  " + target + "  ", Query: "Is it up?"})
	require.NoError(t, err)
	assert.Equal(t, "ACCEPTED", resp.Status)
	assert.Equal(t, 2, resp.Attempts)
	assert.NotEmpty(t, resp.TxHash)
	assert.NotEmpty(t, resp.SubmissionID)

	t.Run("history highlights the submitted url", func(t *testing.T) {
		view, err := c.Verifications(ctx, client.ViewOptions{View: "all", URL: target})
		require.NoError(t, err)
		assert.Equal(t, "chain", view.Source)
		require.NotNil(t, view.Highlight)

		rec := view.Data[view.Highlight.Index]
		assert.Equal(t, target, rec.URL)
		assert.Equal(t, "Is it up?", rec.Query)
		assert.Equal(t, 200, rec.StatusCode)
		require.NotNil(t, rec.IsAccessible)
		assert.True(t, *rec.IsAccessible)
	})

	t.Run("second read is served from redis", func(t *testing.T) {
		view, err := c.Verifications(ctx, client.ViewOptions{View: "all"})
		require.NoError(t, err)
		assert.Equal(t, "cache", view.Source)
	})

	t.Run("journal records the confirmation", func(t *testing.T) {
		sub, err := c.Submission(ctx, resp.SubmissionID)
		require.NoError(t, err)
		assert.Equal(t, "confirmed", sub.State)
		assert.Equal(t, target, sub.URL)
		assert.Equal(t, resp.TxHash, sub.TxHash)
		assert.Equal(t, contractAddress, sub.Contract)
		assert.NotNil(t, sub.CompletedAt)
	})
}

func TestVerification_Categories(t *testing.T) {
	ctx := context.Background()
	c := submitter(t)

	accessible := uniqueURL(t, "fine")
	broken := uniqueURL(t, "broken")
	noContent := uniqueURL(t, "sparse")

	for _, req := range []client.SubmitRequest{
		{URL: accessible},
		{URL: broken},
		{URL: noContent, Query: "Is the missing section there?"},
	} {
		_, err := c.Submit(ctx, req)
		require.NoError(t, err, req.URL)
	}

	t.Run("filter inaccessible", func(t *testing.T) {
		view, err := c.Verifications(ctx, client.ViewOptions{View: "all", Filter: "inaccessible", URL: broken})
		require.NoError(t, err)
		require.NotNil(t, view.Highlight)
		for _, r := range view.Data {
			require.NotNil(t, r.IsAccessible)
			assert.False(t, *r.IsAccessible)
		}
	})

	t.Run("filter no-content", func(t *testing.T) {
		view, err := c.Verifications(ctx, client.ViewOptions{View: "all", Filter: "no-content", URL: noContent})
		require.NoError(t, err)
		require.NotNil(t, view.Highlight)
		assert.Equal(t, "Not found", view.Data[view.Highlight.Index].ConciseAnswer)
	})

	t.Run("search is case-insensitive", func(t *testing.T) {
		view, err := c.Verifications(ctx, client.ViewOptions{View: "all", Search: "MISSING SECTION"})
		require.NoError(t, err)
		require.NotEmpty(t, view.Data)
		for _, r := range view.Data {
			assert.Contains(t, r.Query, "missing section")
		}
	})

	t.Run("summary respects quotas", func(t *testing.T) {
		view, err := c.Verifications(ctx, client.ViewOptions{})
		require.NoError(t, err)
		assert.Equal(t, "summary", view.View)
		assert.LessOrEqual(t, len(view.Data), 5)

		var inaccessible, noContentCount int
		for _, r := range view.Data {
			switch {
			case r.IsAccessible == nil || !*r.IsAccessible:
				inaccessible++
			case r.Query != "" && (r.ContentFound == nil || !*r.ContentFound):
				noContentCount++
			}
		}
		assert.Equal(t, 1, inaccessible)
		assert.Equal(t, 1, noContentCount)
	})

	t.Run("stats partition the records", func(t *testing.T) {
		stats, err := c.Stats(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, stats.Total, stats.Accessible+stats.Inaccessible+stats.NoContent)
		assert.GreaterOrEqual(t, stats.Inaccessible, 1)
		assert.GreaterOrEqual(t, stats.NoContent, 1)
	})

	t.Run("unknown filter is rejected", func(t *testing.T) {
		_, err := c.Verifications(ctx, client.ViewOptions{View: "all", Filter: "sideways"})
		require.Error(t, err)
		assert.True(t, client.IsCode(err, "INVALID_REQUEST"))
	})
}

func TestVerification_OfflineSnapshot(t *testing.T) {
	ctx := context.Background()
	c := submitter(t)
	target := uniqueURL(t, "snap")

	_, err := c.Submit(ctx, client.SubmitRequest{URL: target})
	require.NoError(t, err)

	// The first read after a confirmed submit goes to the chain and
	// stores a snapshot.
	live, err := c.Verifications(ctx, client.ViewOptions{View: "all"})
	require.NoError(t, err)
	require.Equal(t, "chain", live.Source)

	offline, err := c.Verifications(ctx, client.ViewOptions{View: "all", Offline: true, URL: target})
	require.NoError(t, err)
	assert.Equal(t, "snapshot", offline.Source)
	assert.Equal(t, live.Stats, offline.Stats)
	require.NotNil(t, offline.Highlight)
	assert.Equal(t, target, offline.Data[offline.Highlight.Index].URL)
}

func TestVerification_Rejections(t *testing.T) {
	ctx := context.Background()
	c := submitter(t)

	t.Run("blank url", func(t *testing.T) {
		_, err := c.Submit(ctx, client.SubmitRequest{URL: "   "})
		require.Error(t, err)
		assert.True(t, client.IsCode(err, "INVALID_REQUEST"))
	})

	t.Run("confirmation timeout is journaled as timed_out", func(t *testing.T) {
		_, err := c.Submit(ctx, client.SubmitRequest{URL: slowURL})
		require.Error(t, err)
		assert.True(t, client.IsCode(err, "CONFIRMATION_TIMEOUT"))

		page, err := c.Submissions(ctx, client.SubmissionQuery{URL: slowURL, Limit: 1})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "timed_out", page.Data[0].State)
		assert.NotEmpty(t, page.Data[0].TxHash)
	})
}

func TestSubmissions_Pagination(t *testing.T) {
	ctx := context.Background()
	c := submitter(t)

	for i := 0; i < 3; i++ {
		_, err := c.Submit(ctx, client.SubmitRequest{URL: uniqueURL(t, "page"), ForceRefresh: i > 0})
		require.NoError(t, err)
	}

	first, err := c.Submissions(ctx, client.SubmissionQuery{State: "confirmed", Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	require.True(t, first.Pagination.HasMore)
	require.NotEmpty(t, first.Pagination.NextCursor)

	second, err := c.Submissions(ctx, client.SubmissionQuery{State: "confirmed", Limit: 2, Cursor: first.Pagination.NextCursor})
	require.NoError(t, err)
	require.NotEmpty(t, second.Data)

	seen := map[string]bool{}
	for _, s := range append(first.Data, second.Data...) {
		assert.False(t, seen[s.ID], "duplicate %s across pages", s.ID)
		seen[s.ID] = true
		assert.Equal(t, "confirmed", s.State)
	}
	assert.True(t, !first.Data[0].CreatedAt.Before(first.Data[1].CreatedAt), "newest first")

	t.Run("malformed id is not found", func(t *testing.T) {
		_, err := c.Submission(ctx, "not-a-uuid")
		assert.True(t, client.IsCode(err, "NOT_FOUND"))
	})

	t.Run("bad cursor is rejected", func(t *testing.T) {
		_, err := c.Submissions(ctx, client.SubmissionQuery{Cursor: "%%%"})
		assert.True(t, client.IsCode(err, "INVALID_REQUEST"))
	})
}
