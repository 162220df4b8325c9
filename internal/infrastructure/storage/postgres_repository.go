package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/totoufu/archi-input/internal/domain"
	"github.com/totoufu/archi-input/internal/ports"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var workColumns = []string{
	"id", "title", "url", "notes", "is_reviewed",
	"architect", "year", "country", "city", "usage", "structure",
	"ai_description", "thumbnail_url", "is_analyzed",
	"image_path", "visual_analysis",
	"created_at", "updated_at",
}

// searchColumns are matched case-insensitively by Search.
var searchColumns = []string{"title", "notes", "architect", "country", "city", "usage", "structure"}

// PostgresRepository persists work records into Postgres.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.WorkRepository = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new record, assigning an id and timestamps when the
// caller left them empty.
func (r *PostgresRepository) Create(ctx context.Context, w *domain.Work) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = now
	}

	query, args, err := psql.Insert("works").
		Columns(workColumns...).
		Values(
			w.ID, w.Title, w.URL, w.Notes, w.IsReviewed,
			w.Architect, w.Year, w.Country, w.City, w.Usage, w.Structure,
			w.AIDescription, w.ThumbnailURL, w.IsAnalyzed,
			w.ImagePath, w.VisualAnalysis,
			w.CreatedAt, w.UpdatedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert work: %w", err)
	}

	return nil
}

// Get loads one record by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (domain.Work, error) {
	query, args, err := psql.Select(workColumns...).
		From("works").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return domain.Work{}, fmt.Errorf("build select: %w", err)
	}

	w, err := scanWork(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Work{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Work{}, fmt.Errorf("get work %s: %w", id, err)
	}

	return w, nil
}

// Update overwrites all mutable columns of the record.
func (r *PostgresRepository) Update(ctx context.Context, w *domain.Work) error {
	query, args, err := psql.Update("works").
		Set("title", w.Title).
		Set("url", w.URL).
		Set("notes", w.Notes).
		Set("is_reviewed", w.IsReviewed).
		Set("architect", w.Architect).
		Set("year", w.Year).
		Set("country", w.Country).
		Set("city", w.City).
		Set("usage", w.Usage).
		Set("structure", w.Structure).
		Set("ai_description", w.AIDescription).
		Set("thumbnail_url", w.ThumbnailURL).
		Set("is_analyzed", w.IsAnalyzed).
		Set("image_path", w.ImagePath).
		Set("visual_analysis", w.VisualAnalysis).
		Set("updated_at", w.UpdatedAt).
		Where(sq.Eq{"id": w.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update work %s: %w", w.ID, err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// Delete removes one record by id.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query, args, err := psql.Delete("works").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete work %s: %w", id, err)
	}

	return nil
}

// All returns every record, newest first.
func (r *PostgresRepository) All(ctx context.Context) ([]domain.Work, error) {
	return r.list(ctx, psql.Select(workColumns...).From("works").OrderBy("created_at DESC"))
}

// Recent returns the newest records up to limit.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]domain.Work, error) {
	return r.list(ctx, psql.Select(workColumns...).
		From("works").
		OrderBy("created_at DESC").
		Limit(uint64(limit)))
}

// Search matches the query case-insensitively across the user-facing
// text columns.
func (r *PostgresRepository) Search(ctx context.Context, query string) ([]domain.Work, error) {
	pattern := "%" + query + "%"
	or := make(sq.Or, 0, len(searchColumns))
	for _, col := range searchColumns {
		or = append(or, sq.ILike{col: pattern})
	}

	return r.list(ctx, psql.Select(workColumns...).
		From("works").
		Where(or).
		OrderBy("created_at DESC"))
}

// ByReviewed filters on the is_reviewed flag.
func (r *PostgresRepository) ByReviewed(ctx context.Context, reviewed bool) ([]domain.Work, error) {
	return r.list(ctx, psql.Select(workColumns...).
		From("works").
		Where(sq.Eq{"is_reviewed": reviewed}).
		OrderBy("created_at DESC"))
}

// ByAnalyzed filters on the is_analyzed flag.
func (r *PostgresRepository) ByAnalyzed(ctx context.Context, analyzed bool) ([]domain.Work, error) {
	return r.list(ctx, psql.Select(workColumns...).
		From("works").
		Where(sq.Eq{"is_analyzed": analyzed}).
		OrderBy("created_at DESC"))
}

func (r *PostgresRepository) list(ctx context.Context, builder sq.SelectBuilder) ([]domain.Work, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query works: %w", err)
	}
	defer rows.Close()

	var works []domain.Work
	for rows.Next() {
		w, err := scanWork(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work: %w", err)
		}
		works = append(works, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return works, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWork(row rowScanner) (domain.Work, error) {
	var w domain.Work
	var year sql.NullInt64

	err := row.Scan(
		&w.ID, &w.Title, &w.URL, &w.Notes, &w.IsReviewed,
		&w.Architect, &year, &w.Country, &w.City, &w.Usage, &w.Structure,
		&w.AIDescription, &w.ThumbnailURL, &w.IsAnalyzed,
		&w.ImagePath, &w.VisualAnalysis,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return domain.Work{}, err
	}

	if year.Valid {
		v := int(year.Int64)
		w.Year = &v
	}

	return w, nil
}
