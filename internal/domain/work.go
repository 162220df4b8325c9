package domain

import "time"

// Work is the core entity: one architectural reference tracked by the user.
type Work struct {
	ID         string
	Title      string
	URL        string
	Notes      string
	IsReviewed bool

	// Fields populated by the enrichment pipeline. IsAnalyzed is the
	// single flag gating whether they are trustworthy.
	Architect     string
	Year          *int
	Country       string
	City          string
	Usage         string
	Structure     string
	AIDescription string
	ThumbnailURL  string
	IsAnalyzed    bool

	// Locally stored image and its critique; independent of IsAnalyzed.
	ImagePath      string
	VisualAnalysis string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the transient bundle scraped from one URL. Produced by the
// page fetcher, consumed once by the analyzer, then discarded.
type Snapshot struct {
	PageTitle     string
	OGTitle       string
	OGDescription string
	OGImageURL    string
	Text          string
	ImageData     []byte
	ImageMime     string
}

// Enrichment is the normalized record extracted from a model reply.
// Optional string fields are always concrete strings; missing or null
// values arrive normalized to "". Year alone may stay nil.
type Enrichment struct {
	Title        string
	Architect    string
	Year         *int
	Country      string
	City         string
	Usage        string
	Structure    string
	Description  string
	ThumbnailURL string
}

// ApplyEnrichment overwrites all enrichment fields at once and flips
// IsAnalyzed. Callers invoke it only after a fully successful analysis,
// so a record never persists in a partially enriched state.
func ApplyEnrichment(w *Work, e Enrichment, now time.Time) {
	if e.Title != "" {
		w.Title = e.Title
	}
	w.Architect = e.Architect
	w.Year = e.Year
	w.Country = e.Country
	w.City = e.City
	w.Usage = e.Usage
	w.Structure = e.Structure
	w.AIDescription = e.Description
	w.ThumbnailURL = e.ThumbnailURL
	w.IsAnalyzed = true
	w.UpdatedAt = now
}

// Picks is the daily spaced-review selection: up to 3 main picks plus an
// optional bonus pick.
type Picks struct {
	Main  []Work
	Bonus *Work
}
