package ports

import (
	"context"
	"time"

	"github.com/totoufu/archi-input/internal/domain"
)

// WorkRepository persists Work records; the core never manages schema or
// connections itself.
type WorkRepository interface {
	Create(ctx context.Context, w *domain.Work) error
	Get(ctx context.Context, id string) (domain.Work, error)
	Update(ctx context.Context, w *domain.Work) error
	Delete(ctx context.Context, id string) error
	All(ctx context.Context) ([]domain.Work, error)
	Recent(ctx context.Context, limit int) ([]domain.Work, error)
	Search(ctx context.Context, query string) ([]domain.Work, error)
	ByReviewed(ctx context.Context, reviewed bool) ([]domain.Work, error)
	ByAnalyzed(ctx context.Context, analyzed bool) ([]domain.Work, error)
}

// PageFetcher scrapes a URL into a snapshot. It never fails: on any
// network or parsing error it degrades to empty snapshot fields.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) domain.Snapshot
}

// ModelGateway sends a prompt (optionally with an inline image) to the
// generative model and returns its raw text reply.
type ModelGateway interface {
	Generate(ctx context.Context, prompt string, image []byte, mime string) (string, error)
}

// ImageStore keeps uploaded work images on durable storage.
type ImageStore interface {
	Save(data []byte, mime string) (path string, err error)
	Read(path string) (data []byte, mime string, err error)
}

// Notifier pushes the daily digest to an outbound channel (Telegram).
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when the daily digest job executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
