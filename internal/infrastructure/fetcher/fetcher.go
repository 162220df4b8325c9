package fetcher

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/totoufu/archi-input/internal/config"
	"github.com/totoufu/archi-input/internal/domain"
	"github.com/totoufu/archi-input/internal/ports"
)

// textBudget bounds the extracted body text so downstream prompts stay
// within a predictable size.
const textBudget = 3000

// maxImageBytes caps preview-image downloads.
const maxImageBytes = 10 << 20

// strippedTags are removed before extracting visible body text.
var strippedTags = []string{"script", "style", "nav", "header", "footer", "aside"}

// PageFetcher scrapes a URL into a snapshot. Every failure degrades to
// empty snapshot fields so the enrichment pipeline can proceed with
// whatever information survived.
type PageFetcher struct {
	client       *http.Client
	imageClient  *http.Client
	userAgent    string
	logger       *slog.Logger
}

var _ ports.PageFetcher = (*PageFetcher)(nil)

// New wires HTTP clients with the configured bounds.
func New(cfg config.ScraperConfig, logger *slog.Logger) *PageFetcher {
	return &PageFetcher{
		client:      &http.Client{Timeout: cfg.Timeout()},
		imageClient: &http.Client{Timeout: cfg.ImageTimeout()},
		userAgent:   cfg.UserAgent,
		logger:      logger,
	}
}

// Fetch retrieves the URL and extracts page title, OGP metadata, and a
// bounded plain-text excerpt. If an og:image was found, it is downloaded
// as well; image failures never fail the overall fetch.
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) domain.Snapshot {
	var snap domain.Snapshot

	doc, err := f.fetchDocument(ctx, pageURL)
	if err != nil {
		f.warn("page fetch failed", "url", pageURL, "error", err)
	} else {
		snap = extract(doc)
	}

	snap.ImageMime = "image/jpeg"
	if snap.OGImageURL != "" {
		data, mime, err := f.fetchImage(ctx, snap.OGImageURL)
		if err != nil {
			f.warn("og:image download failed, continuing without it", "url", snap.OGImageURL, "error", err)
		} else {
			snap.ImageData = data
			snap.ImageMime = mime
			f.debug("downloaded og:image", "bytes", len(data), "mime", mime)
		}
	}

	return snap
}

func (f *PageFetcher) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.Status}
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

func (f *PageFetcher) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.imageClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", &statusError{status: resp.Status}
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	mime = strings.TrimSpace(mime)
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", &statusError{status: "content-type " + mime}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", err
	}

	return data, mime, nil
}

func extract(doc *goquery.Document) domain.Snapshot {
	var snap domain.Snapshot

	snap.PageTitle = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find(`meta[property]`).Each(func(_ int, sel *goquery.Selection) {
		prop, _ := sel.Attr("property")
		content, _ := sel.Attr("content")
		switch prop {
		case "og:title":
			snap.OGTitle = content
		case "og:description":
			snap.OGDescription = content
		case "og:image":
			snap.OGImageURL = content
		}
	})

	if snap.OGDescription == "" {
		if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
			snap.OGDescription = content
		}
	}

	snap.Text = visibleText(doc)

	return snap
}

// visibleText strips non-content tags, joins the remaining visible text
// with newlines, and truncates to the text budget.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body")
	if body.Length() == 0 {
		return ""
	}

	body.Find(strings.Join(strippedTags, ", ")).Remove()

	var lines []string
	var walk func(*goquery.Selection)
	walk = func(sel *goquery.Selection) {
		sel.Contents().Each(func(_ int, node *goquery.Selection) {
			if goquery.NodeName(node) == "#text" {
				if text := strings.TrimSpace(node.Text()); text != "" {
					lines = append(lines, text)
				}
				return
			}
			walk(node)
		})
	}
	walk(body)

	text := strings.Join(lines, "\n")
	if len(text) > textBudget {
		text = truncate(text, textBudget)
	}
	return text
}

// truncate cuts at the byte budget without splitting a UTF-8 sequence.
func truncate(s string, budget int) string {
	if len(s) <= budget {
		return s
	}
	cut := budget
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

type statusError struct {
	status string
}

func (e *statusError) Error() string {
	return "unexpected response: " + e.status
}

func (f *PageFetcher) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}

func (f *PageFetcher) debug(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Debug(msg, args...)
	}
}
