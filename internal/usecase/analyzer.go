package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/totoufu/archi-input/internal/domain"
	"github.com/totoufu/archi-input/internal/ports"
)

// Analyzer composes the page fetcher, model gateway, and response parser
// into the enrichment use cases. Entry points never panic; failures come
// back as wrapped errors alongside a best-effort record so the caller
// always has something displayable.
type Analyzer struct {
	fetcher ports.PageFetcher
	gateway ports.ModelGateway
	repo    ports.WorkRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewAnalyzer wires the enrichment orchestrator.
func NewAnalyzer(fetcher ports.PageFetcher, gateway ports.ModelGateway, repo ports.WorkRepository, logger *slog.Logger) *Analyzer {
	return &Analyzer{
		fetcher: fetcher,
		gateway: gateway,
		repo:    repo,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// AnalyzeByURL scrapes the URL, asks the model for structured metadata
// (attaching the preview image when one was downloaded), and parses the
// reply. On failure the returned record still carries the best title and
// thumbnail the snapshot could offer.
func (a *Analyzer) AnalyzeByURL(ctx context.Context, pageURL, fallbackTitle string) (domain.Enrichment, error) {
	snap := a.fetcher.Fetch(ctx, pageURL)
	prompt := buildAnalyzePrompt(snap, fallbackTitle)

	raw, err := a.gateway.Generate(ctx, prompt, snap.ImageData, snap.ImageMime)
	if err != nil {
		return bestEffort(snap, fallbackTitle), fmt.Errorf("analyze %s: %w", pageURL, err)
	}

	enrichment, err := parseEnrichment(raw, fallbackTitle)
	if err != nil {
		return bestEffort(snap, fallbackTitle), fmt.Errorf("analyze %s: %w", pageURL, err)
	}

	enrichment.ThumbnailURL = snap.OGImageURL
	return enrichment, nil
}

// AnalyzeByTitle asks the model for its general knowledge about a named
// work; no page is fetched.
func (a *Analyzer) AnalyzeByTitle(ctx context.Context, title string) (domain.Enrichment, error) {
	raw, err := a.gateway.Generate(ctx, buildTitleOnlyPrompt(title), nil, "")
	if err != nil {
		return domain.Enrichment{Title: title}, fmt.Errorf("analyze title %q: %w", title, err)
	}

	enrichment, err := parseEnrichment(raw, title)
	if err != nil {
		return domain.Enrichment{Title: title}, fmt.Errorf("analyze title %q: %w", title, err)
	}

	return enrichment, nil
}

// DeepDive answers a free-form question about one work, embedding the
// full record as structured context. The reply is prose, not JSON.
func (a *Analyzer) DeepDive(ctx context.Context, work domain.Work, question string) (string, error) {
	workJSON, err := marshalWork(work)
	if err != nil {
		return "", fmt.Errorf("deep dive %s: %w", work.ID, err)
	}

	reply, err := a.gateway.Generate(ctx, buildDeepDivePrompt(workJSON, question), nil, "")
	if err != nil {
		return "", fmt.Errorf("deep dive %s: %w", work.ID, err)
	}

	return reply, nil
}

// VisualCritique analyzes raw image bytes against a fixed architectural
// rubric and returns prose.
func (a *Analyzer) VisualCritique(ctx context.Context, image []byte, mime, titleHint string) (string, error) {
	reply, err := a.gateway.Generate(ctx, buildVisualPrompt(titleHint), image, mime)
	if err != nil {
		return "", fmt.Errorf("visual critique: %w", err)
	}

	return reply, nil
}

// Report generates the cross-collection analysis. A non-empty custom
// prompt takes priority over the fixed four-part default analysis.
func (a *Analyzer) Report(ctx context.Context, works []domain.Work, customPrompt string) (string, error) {
	items := make([]workPayload, 0, len(works))
	for _, w := range works {
		items = append(items, toPayload(w))
	}

	worksJSON, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: %w", err)
	}

	reply, err := a.gateway.Generate(ctx, buildReportPrompt(string(worksJSON), customPrompt), nil, "")
	if err != nil {
		return "", fmt.Errorf("report: %w", err)
	}

	return reply, nil
}

// EnrichWork loads a record, analyzes it by URL (or title when no URL is
// set), and commits all enrichment fields atomically. A failed analysis
// leaves the record untouched.
func (a *Analyzer) EnrichWork(ctx context.Context, id string) error {
	work, err := a.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load work %s: %w", id, err)
	}

	var enrichment domain.Enrichment
	switch {
	case work.URL != "":
		enrichment, err = a.AnalyzeByURL(ctx, work.URL, work.Title)
	case work.Title != "":
		enrichment, err = a.AnalyzeByTitle(ctx, work.Title)
	default:
		return fmt.Errorf("work %s has neither url nor title", id)
	}
	if err != nil {
		return err
	}

	domain.ApplyEnrichment(&work, enrichment, a.now())
	if err := a.repo.Update(ctx, &work); err != nil {
		return fmt.Errorf("persist work %s: %w", id, err)
	}

	a.info("analysis complete", "work_id", id, "title", work.Title)
	return nil
}

// EnrichWorkAsync runs EnrichWork in a background goroutine with its own
// context, since it outlives the triggering request. The returned channel
// delivers the final error (or nil) and may be discarded; concurrent
// analyses of the same record race and the later commit wins.
func (a *Analyzer) EnrichWorkAsync(id string) <-chan error {
	done := make(chan error, 1)
	go func() {
		defer close(done)
		err := a.EnrichWork(context.Background(), id)
		if err != nil {
			a.warn("background analysis failed", "work_id", id, "error", err)
		}
		done <- err
	}()
	return done
}

func bestEffort(snap domain.Snapshot, fallbackTitle string) domain.Enrichment {
	title := snap.OGTitle
	if title == "" {
		title = snap.PageTitle
	}
	if title == "" {
		title = fallbackTitle
	}
	return domain.Enrichment{Title: title, ThumbnailURL: snap.OGImageURL}
}

// workPayload is the JSON shape embedded into deep-dive and report
// prompts (and reused by the HTTP layer).
type workPayload struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	Notes          string `json:"notes"`
	IsReviewed     bool   `json:"is_reviewed"`
	Architect      string `json:"architect"`
	Year           *int   `json:"year"`
	Country        string `json:"country"`
	City           string `json:"city"`
	Usage          string `json:"usage"`
	Structure      string `json:"structure"`
	AIDescription  string `json:"ai_description"`
	ThumbnailURL   string `json:"thumbnail_url"`
	IsAnalyzed     bool   `json:"is_analyzed"`
	ImagePath      string `json:"image_path"`
	VisualAnalysis string `json:"visual_analysis"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toPayload(w domain.Work) workPayload {
	return workPayload{
		ID:             w.ID,
		Title:          w.Title,
		URL:            w.URL,
		Notes:          w.Notes,
		IsReviewed:     w.IsReviewed,
		Architect:      w.Architect,
		Year:           w.Year,
		Country:        w.Country,
		City:           w.City,
		Usage:          w.Usage,
		Structure:      w.Structure,
		AIDescription:  w.AIDescription,
		ThumbnailURL:   w.ThumbnailURL,
		IsAnalyzed:     w.IsAnalyzed,
		ImagePath:      w.ImagePath,
		VisualAnalysis: w.VisualAnalysis,
		CreatedAt:      w.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      w.UpdatedAt.Format(time.RFC3339),
	}
}

func marshalWork(w domain.Work) (string, error) {
	raw, err := json.MarshalIndent(toPayload(w), "", "  ")
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (a *Analyzer) info(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Info(msg, args...)
	}
}

func (a *Analyzer) warn(msg string, args ...any) {
	if a.logger != nil {
		a.logger.Warn(msg, args...)
	}
}
