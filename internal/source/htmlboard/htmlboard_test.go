package htmlboard

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jobscout/jobscout/internal/scout"
)

func TestSearchURLs(t *testing.T) {
	t.Parallel()

	ex, err := New(Config{BaseURL: "https://board.example.com", Pages: 2})
	require.NoError(t, err)

	urls := ex.SearchURLs("site reliability")
	require.Len(t, urls, 2)
	require.Contains(t, urls[0], "page=1")
	require.Contains(t, urls[0], "q=site+reliability")
}

func TestExtract(t *testing.T) {
	t.Parallel()

	ex, err := New(Config{BaseURL: "https://board.example.com"})
	require.NoError(t, err)

	content := `<html><body>
	<div class="job-card">
		<h2><a class="job-title" href="/jobs/42">Senior Go Developer</a></h2>
		<span class="company">Acme Corp</span>
		<span class="location">London, UK</span>
		<span class="job-type">Full Time</span>
		<span class="salary">£80k-£95k</span>
		<time datetime="2026-08-29T09:30:00Z">yesterday</time>
		<p class="description">Ship backend services.</p>
	</div>
	<div class="job-card">
		<h2><a class="job-title" href="">Broken Card</a></h2>
	</div>
	</body></html>`

	got := ex.Extract(content)
	require.Len(t, got, 1)

	c := got[0]
	require.Equal(t, "Senior Go Developer", c.Title)
	require.Equal(t, "Acme Corp", c.Company)
	require.Equal(t, "https://board.example.com/jobs/42", c.Link)
	require.Equal(t, "London, UK", c.Location)
	require.Equal(t, scout.JobTypeFullTime, c.JobType)
	require.Equal(t, "htmlboard", c.SourceID)
	require.NotNil(t, c.PostedAt)
}

func TestExtractEmptyPage(t *testing.T) {
	t.Parallel()

	ex, err := New(Config{})
	require.NoError(t, err)
	require.Empty(t, ex.Extract("<html><body><p>No jobs found</p></body></html>"))
}

func TestTraits(t *testing.T) {
	t.Parallel()

	ex, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, "htmlboard", ex.ID())
	require.True(t, ex.RequiresBrowser())
	require.False(t, ex.APIBacked())
}
