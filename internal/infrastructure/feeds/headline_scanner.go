package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"DailyDigest/internal/domain"
	"DailyDigest/internal/scanner"
)

// Selector option keys understood by the headline scanner. Each site
// configures them under options in the sites list.
const (
	optItemSelector    = "itemSelector"
	optTitleSelector   = "titleSelector"
	optLinkSelector    = "linkSelector"
	optSummarySelector = "summarySelector"
	optDateSelector    = "dateSelector"
	optDateFormat      = "dateFormat"
)

// HeadlineScanner extracts candidate items from listing pages using
// config-provided CSS selectors, so one strategy covers most news sites.
type HeadlineScanner struct {
	client *http.Client
}

// NewHeadlineScanner wires an HTTP client; a nil client gets a 20s timeout
// default.
func NewHeadlineScanner(client *http.Client) *HeadlineScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HeadlineScanner{client: client}
}

// Name identifies the strategy inside the registry.
func (h *HeadlineScanner) Name() string {
	return "headline"
}

// Scan walks each section URL and returns the items found on its listing
// page, deduplicated by link.
func (h *HeadlineScanner) Scan(ctx context.Context, req scanner.Request) ([]domain.SourceItem, error) {
	if len(req.Sections) == 0 {
		return nil, fmt.Errorf("no sections provided for site %s", req.SiteName)
	}

	itemSel := req.Options[optItemSelector]
	if itemSel == "" {
		return nil, fmt.Errorf("site %s: %s option is required", req.SiteName, optItemSelector)
	}

	results := make([]domain.SourceItem, 0)
	seen := map[string]struct{}{}

	for _, section := range req.Sections {
		doc, err := h.fetchDocument(ctx, section.URL)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", section.Name, err)
		}

		base, _ := url.Parse(section.URL)
		doc.Find(itemSel).Each(func(i int, sel *goquery.Selection) {
			item, ok := h.extractItem(sel, req, base, section.Name)
			if !ok {
				return
			}
			if _, dup := seen[item.ID]; dup {
				return
			}
			seen[item.ID] = struct{}{}
			results = append(results, item)
		})
	}

	return results, nil
}

func (h *HeadlineScanner) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "DailyDigest/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func (h *HeadlineScanner) extractItem(sel *goquery.Selection, req scanner.Request, base *url.URL, section string) (domain.SourceItem, bool) {
	title := strings.TrimSpace(firstText(sel, req.Options[optTitleSelector]))
	if title == "" {
		return domain.SourceItem{}, false
	}

	link := firstAttr(sel, req.Options[optLinkSelector], "href")
	if link != "" && base != nil {
		if parsed, err := url.Parse(link); err == nil {
			link = base.ResolveReference(parsed).String()
		}
	}

	publishedAt := time.Now().UTC()
	if dateSel := req.Options[optDateSelector]; dateSel != "" {
		raw := strings.TrimSpace(firstText(sel, dateSel))
		layout := req.Options[optDateFormat]
		if layout == "" {
			layout = "2006-01-02"
		}
		if parsed, err := time.Parse(layout, raw); err == nil {
			publishedAt = parsed
		}
	}

	source := req.SiteName
	if section != "" {
		source = fmt.Sprintf("%s/%s", req.SiteName, section)
	}

	id := link
	if id == "" {
		id = title
	}

	return domain.SourceItem{
		ID:          id,
		Headline:    title,
		Summary:     strings.TrimSpace(firstText(sel, req.Options[optSummarySelector])),
		URL:         link,
		Source:      source,
		PublishedAt: publishedAt,
	}, true
}

func firstText(sel *goquery.Selection, sub string) string {
	if sub == "" {
		return ""
	}
	return sel.Find(sub).First().Text()
}

func firstAttr(sel *goquery.Selection, sub, attr string) string {
	if sub == "" {
		return ""
	}
	v, _ := sel.Find(sub).First().Attr(attr)
	return v
}
