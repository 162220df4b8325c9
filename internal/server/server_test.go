package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/totoufu/archi-input/internal/domain"
	"github.com/totoufu/archi-input/internal/infrastructure/imagestore"
	"github.com/totoufu/archi-input/internal/usecase"
)

const validReply = `{"title":"国立西洋美術館","architect":"ル・コルビュジエ","year":1959,` +
	`"country":"日本","city":"東京","usage":"美術館","structure":"RC造","description":"本館の解説"}`

type fakeRepo struct {
	mu    sync.Mutex
	works map[string]domain.Work
	seq   int
}

func newFakeRepo(works ...domain.Work) *fakeRepo {
	r := &fakeRepo{works: map[string]domain.Work{}}
	for _, w := range works {
		r.works[w.ID] = w
	}
	return r
}

func (r *fakeRepo) Create(_ context.Context, w *domain.Work) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	if w.ID == "" {
		w.ID = "w" + string(rune('0'+r.seq))
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}
	r.works[w.ID] = *w
	return nil
}

func (r *fakeRepo) Get(_ context.Context, id string) (domain.Work, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.works[id]
	if !ok {
		return domain.Work{}, domain.ErrNotFound
	}
	return w, nil
}

func (r *fakeRepo) Update(_ context.Context, w *domain.Work) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.works[w.ID]; !ok {
		return domain.ErrNotFound
	}
	r.works[w.ID] = *w
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.works, id)
	return nil
}

func (r *fakeRepo) All(_ context.Context) ([]domain.Work, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Work, 0, len(r.works))
	for _, w := range r.works {
		out = append(out, w)
	}
	return out, nil
}

func (r *fakeRepo) Recent(ctx context.Context, limit int) ([]domain.Work, error) {
	all, err := r.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeRepo) Search(ctx context.Context, query string) ([]domain.Work, error) {
	all, _ := r.All(ctx)
	var out []domain.Work
	for _, w := range all {
		if strings.Contains(w.Title, query) || strings.Contains(w.Architect, query) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeRepo) ByReviewed(ctx context.Context, reviewed bool) ([]domain.Work, error) {
	all, _ := r.All(ctx)
	var out []domain.Work
	for _, w := range all {
		if w.IsReviewed == reviewed {
			out = append(out, w)
		}
	}
	return out, nil
}

func (r *fakeRepo) ByAnalyzed(ctx context.Context, analyzed bool) ([]domain.Work, error) {
	all, _ := r.All(ctx)
	var out []domain.Work
	for _, w := range all {
		if w.IsAnalyzed == analyzed {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeGateway struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
	images  [][]byte
}

func (g *fakeGateway) Generate(_ context.Context, prompt string, image []byte, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	g.images = append(g.images, image)
	return g.reply, g.err
}

func (g *fakeGateway) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

type fakeFetcher struct {
	snap domain.Snapshot
}

func (f *fakeFetcher) Fetch(context.Context, string) domain.Snapshot {
	return f.snap
}

func newTestServer(t *testing.T, repo *fakeRepo, gateway *fakeGateway) *Server {
	t.Helper()
	analyzer := usecase.NewAnalyzer(&fakeFetcher{}, gateway, repo, nil)
	images, err := imagestore.New(t.TempDir())
	if err != nil {
		t.Fatalf("imagestore: %v", err)
	}
	return NewServer(repo, analyzer, images, time.UTC, nil)
}

func doJSON(t *testing.T, srv *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, payload
}

func TestCreateWorkRequiresTitleOrURL(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeRepo(), &fakeGateway{reply: validReply})
	rec, payload := doJSON(t, srv, http.MethodPost, "/works", `{"title":"  ","url":""}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["message"] != "作品名またはURLを入力してください" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
}

func TestCreateWorkPersistsAndReportsAnalyzing(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	srv := newTestServer(t, repo, &fakeGateway{reply: validReply})
	rec, payload := doJSON(t, srv, http.MethodPost, "/works", `{"title":"落水荘"}`)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if payload["analyzing"] != true {
		t.Fatalf("expected analyzing flag, got %v", payload)
	}

	work := payload["work"].(map[string]any)
	if work["title"] != "落水荘" {
		t.Fatalf("unexpected title: %v", work["title"])
	}
	if _, err := repo.Get(context.Background(), work["id"].(string)); err != nil {
		t.Fatalf("work not persisted: %v", err)
	}
}

func TestListWorksUsesSearchQuery(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		domain.Work{ID: "a", Title: "サヴォア邸", Architect: "Le Corbusier"},
		domain.Work{ID: "b", Title: "落水荘", Architect: "Frank Lloyd Wright"},
	)
	srv := newTestServer(t, repo, &fakeGateway{})
	rec, payload := doJSON(t, srv, http.MethodGet, "/works?q=サヴォア", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	works := payload["works"].([]any)
	if len(works) != 1 {
		t.Fatalf("expected 1 match, got %d", len(works))
	}
	if works[0].(map[string]any)["id"] != "a" {
		t.Fatalf("unexpected match: %v", works[0])
	}
}

func TestGetWorkNotFound(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeRepo(), &fakeGateway{})
	rec, payload := doJSON(t, srv, http.MethodGet, "/works/missing", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["message"] != "作品が見つかりません" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
}

func TestUpdateNotesFlipsReviewed(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	repo := newFakeRepo(domain.Work{ID: "w1", Title: "中銀カプセルタワー", CreatedAt: created, UpdatedAt: created})
	srv := newTestServer(t, repo, &fakeGateway{})
	fixed := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	srv.now = func() time.Time { return fixed }

	rec, _ := doJSON(t, srv, http.MethodPost, "/works/w1/notes", `{"notes":"メタボリズムの代表作"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	got, _ := repo.Get(context.Background(), "w1")
	if !got.IsReviewed {
		t.Fatal("expected is_reviewed flipped")
	}
	if got.Notes != "メタボリズムの代表作" {
		t.Fatalf("notes not saved: %q", got.Notes)
	}
	if !got.UpdatedAt.Equal(fixed) {
		t.Fatalf("updated_at not bumped: %v", got.UpdatedAt)
	}
}

func TestAnalyzeUpdatesRecordSynchronously(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(domain.Work{ID: "w1", Title: "国立西洋美術館"})
	srv := newTestServer(t, repo, &fakeGateway{reply: validReply})

	rec, payload := doJSON(t, srv, http.MethodPost, "/works/w1/analyze", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	data := payload["data"].(map[string]any)
	if data["architect"] != "ル・コルビュジエ" {
		t.Fatalf("architect not enriched: %v", data["architect"])
	}
	if data["is_analyzed"] != true {
		t.Fatal("expected is_analyzed true")
	}

	got, _ := repo.Get(context.Background(), "w1")
	if got.Year == nil || *got.Year != 1959 {
		t.Fatalf("year not persisted: %v", got.Year)
	}
}

func TestDeepDiveRequiresPrompt(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(domain.Work{ID: "w1", Title: "サヴォア邸"})
	srv := newTestServer(t, repo, &fakeGateway{})

	rec, payload := doJSON(t, srv, http.MethodPost, "/works/w1/deep-dive", `{"prompt":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["message"] != "質問を入力してください" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
}

func TestDeepDiveReturnsProse(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(domain.Work{ID: "w1", Title: "サヴォア邸"})
	gateway := &fakeGateway{reply: "近代建築の五原則を体現した住宅である。"}
	srv := newTestServer(t, repo, gateway)

	rec, payload := doJSON(t, srv, http.MethodPost, "/works/w1/deep-dive", `{"prompt":"五原則との関係は？"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if payload["result"] != "近代建築の五原則を体現した住宅である。" {
		t.Fatalf("unexpected result: %v", payload["result"])
	}
	if !strings.Contains(gateway.lastPrompt(), "五原則との関係は？") {
		t.Fatal("question missing from prompt")
	}
}

func TestReportRejectsEmptyCollection(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, newFakeRepo(), &fakeGateway{})
	rec, payload := doJSON(t, srv, http.MethodPost, "/report", "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["message"] != "分析済みの作品がありません" {
		t.Fatalf("unexpected message: %v", payload["message"])
	}
}

func TestReportForwardsCustomPrompt(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(domain.Work{ID: "w1", Title: "サヴォア邸", IsAnalyzed: true})
	gateway := &fakeGateway{reply: "## コレクション分析"}
	srv := newTestServer(t, repo, gateway)

	rec, payload := doJSON(t, srv, http.MethodPost, "/report", `{"prompt":"構造種別に注目して"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if payload["report"] != "## コレクション分析" {
		t.Fatalf("unexpected report: %v", payload["report"])
	}
	if !strings.Contains(gateway.lastPrompt(), "構造種別に注目して") {
		t.Fatal("custom prompt missing from model prompt")
	}
}

func TestUploadImageStoresAndCritiques(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(domain.Work{ID: "w1", Title: "代々木体育館"})
	gateway := &fakeGateway{reply: "吊り構造が外観を決定づけている。"}
	srv := newTestServer(t, repo, gateway)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="photo.png"`)
	header.Set("Content-Type", "image/png")
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte("png-bytes")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/works/w1/image", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	got, _ := repo.Get(context.Background(), "w1")
	if got.ImagePath == "" {
		t.Fatal("image path not persisted")
	}
	if got.VisualAnalysis != "吊り構造が外観を決定づけている。" {
		t.Fatalf("visual analysis not persisted: %q", got.VisualAnalysis)
	}
}

func TestUploadImageRejectsUnsupportedType(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(domain.Work{ID: "w1"})
	srv := newTestServer(t, repo, &fakeGateway{})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="image"; filename="doc.txt"`)
	header.Set("Content-Type", "text/plain")
	part, _ := writer.CreatePart(header)
	part.Write([]byte("not an image"))
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/works/w1/image", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestTodayReturnsPicks(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	repo := newFakeRepo(
		domain.Work{ID: "u1", Title: "作品1", CreatedAt: now},
		domain.Work{ID: "u2", Title: "作品2", CreatedAt: now.Add(time.Second)},
		domain.Work{ID: "u3", Title: "作品3", CreatedAt: now.Add(2 * time.Second)},
		domain.Work{ID: "u4", Title: "作品4", CreatedAt: now.Add(3 * time.Second)},
		domain.Work{ID: "r1", Title: "復習対象", IsReviewed: true, CreatedAt: now},
	)
	srv := newTestServer(t, repo, &fakeGateway{})

	rec, payload := doJSON(t, srv, http.MethodGet, "/today", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	main := payload["main"].([]any)
	if len(main) != 3 {
		t.Fatalf("expected 3 main picks, got %d", len(main))
	}
	bonus := payload["bonus"].(map[string]any)
	if bonus["id"] != "r1" {
		t.Fatalf("expected reviewed bonus, got %v", bonus["id"])
	}
}

func TestReportStatsCounters(t *testing.T) {
	t.Parallel()

	year := 1959
	repo := newFakeRepo(
		domain.Work{ID: "a", Country: "日本", Usage: "美術館", Year: &year, IsAnalyzed: true},
		domain.Work{ID: "b", Country: "日本", Usage: "住宅"},
	)
	srv := newTestServer(t, repo, &fakeGateway{})

	rec, payload := doJSON(t, srv, http.MethodGet, "/report/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if payload["total"] != float64(2) || payload["analyzed"] != float64(1) {
		t.Fatalf("unexpected totals: %v", payload)
	}

	countries := payload["countries"].([]any)
	top := countries[0].(map[string]any)
	if top["name"] != "日本" || top["count"] != float64(2) {
		t.Fatalf("unexpected top country: %v", top)
	}
}
