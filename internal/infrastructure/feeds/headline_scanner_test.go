package feeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DailyDigest/internal/scanner"
)

const listingHTML = `
<div class="stories">
  <div class="story">
    <a class="title" href="/2026/quantum-chips">Quantum Chips Ship</a>
    <p class="teaser">Commercial availability announced.</p>
  </div>
  <div class="story">
    <a class="title" href="https://example.org/fusion">Fusion Milestone</a>
    <p class="teaser">Net gain sustained for an hour.</p>
  </div>
  <div class="story">
    <a class="title" href="/2026/quantum-chips">Quantum Chips Ship</a>
    <p class="teaser">Duplicate entry.</p>
  </div>
  <div class="story">
    <span class="teaser">No title here.</span>
  </div>
</div>`

func TestHeadlineScannerScan(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(listingHTML))
	}))
	defer server.Close()

	sc := NewHeadlineScanner(server.Client())
	req := scanner.Request{
		Day:      time.Now().UTC(),
		SiteName: "example",
		Sections: []scanner.Section{{Name: "tech", URL: server.URL + "/tech"}},
		Options: map[string]string{
			"itemSelector":    ".story",
			"titleSelector":   ".title",
			"linkSelector":    ".title",
			"summarySelector": ".teaser",
		},
	}

	items, err := sc.Scan(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, items, 2, "duplicates and title-less entries are dropped")

	assert.Equal(t, "Quantum Chips Ship", items[0].Headline)
	assert.Equal(t, server.URL+"/2026/quantum-chips", items[0].URL, "relative links resolve against the section URL")
	assert.Equal(t, "Commercial availability announced.", items[0].Summary)
	assert.Equal(t, "example/tech", items[0].Source)

	assert.Equal(t, "Fusion Milestone", items[1].Headline)
	assert.Equal(t, "https://example.org/fusion", items[1].URL)
}

func TestHeadlineScannerRequiresItemSelector(t *testing.T) {
	t.Parallel()

	sc := NewHeadlineScanner(nil)
	_, err := sc.Scan(context.Background(), scanner.Request{
		SiteName: "example",
		Sections: []scanner.Section{{Name: "tech", URL: "http://127.0.0.1/none"}},
	})
	assert.Error(t, err)
}

func TestHeadlineScannerNoSections(t *testing.T) {
	t.Parallel()

	sc := NewHeadlineScanner(nil)
	_, err := sc.Scan(context.Background(), scanner.Request{SiteName: "example"})
	assert.Error(t, err)
}
