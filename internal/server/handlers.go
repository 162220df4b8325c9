package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/totoufu/archi-input/internal/domain"
	"github.com/totoufu/archi-input/internal/infrastructure/imagestore"
	"github.com/totoufu/archi-input/internal/usecase"
)

const maxUploadBytes = 10 << 20

// workView is the JSON shape of a work record on the wire.
type workView struct {
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

func toView(w domain.Work) workView {
	return workView{
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

func toViews(works []domain.Work) []workView {
	views := make([]workView, 0, len(works))
	for _, w := range works {
		views = append(views, toView(w))
	}
	return views
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"status": "error", "message": message})
}

func (s *Server) handleCreateWork(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
		URL   string `json:"url"`
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	req.URL = strings.TrimSpace(req.URL)
	if req.Title == "" && req.URL == "" {
		respondError(w, http.StatusBadRequest, "作品名またはURLを入力してください")
		return
	}

	work := domain.Work{Title: req.Title, URL: req.URL, Notes: req.Notes}
	if err := s.repo.Create(r.Context(), &work); err != nil {
		s.warn("create work failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save work")
		return
	}

	// Enrichment runs out of band; clients poll /works/{id}/status.
	s.analyzer.EnrichWorkAsync(work.ID)

	respondJSON(w, http.StatusCreated, map[string]any{
		"status":    "ok",
		"analyzing": true,
		"work":      toView(work),
	})
}

func (s *Server) handleListWorks(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	var (
		works []domain.Work
		err   error
	)
	if query != "" {
		works, err = s.repo.Search(r.Context(), query)
	} else {
		works, err = s.repo.All(r.Context())
	}
	if err != nil {
		s.warn("list works failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load works")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"works": toViews(works), "query": query})
}

func (s *Server) handleGetWork(w http.ResponseWriter, r *http.Request) {
	work, ok := s.loadWork(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, toView(work))
}

func (s *Server) handleDeleteWork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.repo.Delete(r.Context(), id); err != nil {
		s.warn("delete work failed", "work_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to delete work")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpdateNotes saves the personal notes and marks the work as
// reviewed in the same update.
func (s *Server) handleUpdateNotes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	work, ok := s.loadWork(w, r)
	if !ok {
		return
	}

	work.Notes = req.Notes
	work.IsReviewed = true
	work.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(r.Context(), &work); err != nil {
		s.warn("update notes failed", "work_id", work.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save notes")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWorkStatus is the polling endpoint for background enrichment.
func (s *Server) handleWorkStatus(w http.ResponseWriter, r *http.Request) {
	work, ok := s.loadWork(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"is_analyzed": work.IsAnalyzed,
		"title":       work.Title,
		"architect":   work.Architect,
		"year":        work.Year,
		"country":     work.Country,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	work, ok := s.loadWork(w, r)
	if !ok {
		return
	}
	if work.URL == "" && work.Title == "" {
		respondError(w, http.StatusBadRequest, "URLまたは作品名が必要です")
		return
	}

	if err := s.analyzer.EnrichWork(r.Context(), work.ID); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	updated, err := s.repo.Get(r.Context(), work.ID)
	if err != nil {
		s.warn("reload after analyze failed", "work_id", work.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to reload work")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "data": toView(updated)})
}

func (s *Server) handleDeepDive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		respondError(w, http.StatusBadRequest, "質問を入力してください")
		return
	}

	work, ok := s.loadWork(w, r)
	if !ok {
		return
	}

	result, err := s.analyzer.DeepDive(r.Context(), work, req.Prompt)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("分析エラー: %s", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "result": result})
}

// handleUploadImage accepts a multipart image, stores it, and persists the
// model's visual critique on the record.
func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	work, ok := s.loadWork(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "画像ファイルを選択してください")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	mime := header.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}

	path, err := s.images.Save(data, mime)
	if err != nil {
		if errors.Is(err, imagestore.ErrUnsupportedMime) {
			respondError(w, http.StatusBadRequest, "対応していない画像形式です")
			return
		}
		s.warn("image save failed", "work_id", work.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to store image")
		return
	}

	critique, err := s.analyzer.VisualCritique(r.Context(), data, mime, work.Title)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("視覚分析エラー: %s", err))
		return
	}

	work.ImagePath = path
	work.VisualAnalysis = critique
	work.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(r.Context(), &work); err != nil {
		s.warn("persist visual analysis failed", "work_id", work.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to save analysis")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status":          "ok",
		"image_path":      path,
		"visual_analysis": critique,
	})
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	works, err := s.repo.All(r.Context())
	if err != nil {
		s.warn("load works failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load works")
		return
	}

	day := s.now().In(s.location)
	picks := usecase.TodayPicks(works, day)

	payload := map[string]any{
		"date":  day.Format("2006-01-02"),
		"main":  toViews(picks.Main),
		"bonus": nil,
		"empty": len(works) == 0,
	}
	if picks.Bonus != nil {
		payload["bonus"] = toView(*picks.Bonus)
	}

	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) handleReportStats(w http.ResponseWriter, r *http.Request) {
	works, err := s.repo.All(r.Context())
	if err != nil {
		s.warn("load works failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load works")
		return
	}

	respondJSON(w, http.StatusOK, usecase.Stats(works))
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	// The body is optional for the default four-part report.
	_ = json.NewDecoder(r.Body).Decode(&req)

	works, err := s.repo.ByAnalyzed(r.Context(), true)
	if err != nil {
		s.warn("load analyzed works failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load works")
		return
	}
	if len(works) == 0 {
		respondError(w, http.StatusBadRequest, "分析済みの作品がありません")
		return
	}

	report, err := s.analyzer.Report(r.Context(), works, req.Prompt)
	if err != nil {
		respondError(w, http.StatusBadGateway, fmt.Sprintf("レポート生成エラー: %s", err))
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "report": report})
}

func (s *Server) loadWork(w http.ResponseWriter, r *http.Request) (domain.Work, bool) {
	id := chi.URLParam(r, "id")
	work, err := s.repo.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		respondError(w, http.StatusNotFound, "作品が見つかりません")
		return domain.Work{}, false
	}
	if err != nil {
		s.warn("load work failed", "work_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to load work")
		return domain.Work{}, false
	}
	return work, true
}
