package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"charforge/internal/domain"
	refzip "charforge/pkg/zip"
)

type enqueueRequest struct {
	Views      []string `json:"views"`
	UserInput  string   `json:"user_input"`
	SampleKeys []string `json:"sample_keys"`
}

type jobResponse struct {
	JobID    string          `json:"job_id"`
	Status   string          `json:"status"`
	Progress json.RawMessage `json:"progress,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// EnqueueReferenceJob queues a multi-view generation run for a character.
// The avatar precondition is checked here, before any job row exists.
func (a *App) EnqueueReferenceJob(w http.ResponseWriter, r *http.Request) {
	characterID := chi.URLParam(r, "id")
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	views := make([]domain.ViewKind, 0, len(req.Views))
	for _, raw := range req.Views {
		view, ok := domain.ParseViewKind(raw)
		if !ok || view == domain.ViewAvatar {
			a.json(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unsupported view %q", raw)})
			return
		}
		views = append(views, view)
	}
	if len(views) == 0 {
		a.json(w, http.StatusBadRequest, map[string]string{"error": "at least one view is required"})
		return
	}
	if _, err := a.Characters.GetByID(r.Context(), characterID); err != nil {
		a.fail(w, err)
		return
	}
	set, err := a.Images.ListByCharacter(r.Context(), characterID)
	if err != nil {
		a.fail(w, err)
		return
	}
	if set.Avatar() == nil {
		a.fail(w, domain.ErrAvatarRequired)
		return
	}
	job := &domain.ReferenceJob{
		ID:          uuid.NewString(),
		CharacterID: characterID,
		Views:       views,
		UserInput:   req.UserInput,
		SampleKeys:  req.SampleKeys,
	}
	if err := a.Jobs.Enqueue(r.Context(), job); err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusAccepted, jobResponse{JobID: job.ID, Status: string(domain.JobStatusQueued)})
}

// GetJob reports a job's status and accumulated progress.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	a.json(w, http.StatusOK, jobResponse{
		JobID:    job.ID,
		Status:   string(job.Status),
		Progress: job.ProgressJSON,
		Error:    job.ErrorMessage,
	})
}

type referenceItem struct {
	View      string `json:"view"`
	URL       string `json:"url"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	CreatedAt string `json:"created_at"`
}

// ListReferences returns the character's persisted reference set.
func (a *App) ListReferences(w http.ResponseWriter, r *http.Request) {
	set, err := a.Images.ListByCharacter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, err)
		return
	}
	items := make([]referenceItem, 0, len(set))
	for _, img := range set {
		items = append(items, referenceItem{
			View:      string(img.View),
			URL:       img.URL,
			Width:     img.Width,
			Height:    img.Height,
			CreatedAt: img.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}
	a.json(w, http.StatusOK, map[string]any{"references": items})
}

// DownloadReferenceSet streams the character's reference set as a zip.
func (a *App) DownloadReferenceSet(w http.ResponseWriter, r *http.Request) {
	characterID := chi.URLParam(r, "id")
	set, err := a.Images.ListByCharacter(r.Context(), characterID)
	if err != nil {
		a.fail(w, err)
		return
	}
	if len(set) == 0 {
		a.fail(w, domain.ErrNotFound)
		return
	}
	entries := make([]refzip.Entry, 0, len(set))
	for _, img := range set {
		data, err := a.Objects.Fetch(r.Context(), img.StorageKey)
		if err != nil {
			a.fail(w, err)
			return
		}
		entries = append(entries, refzip.Entry{
			Filename: string(img.View) + ".jpg",
			View:     string(img.View),
			URL:      img.URL,
			Data:     data,
		})
	}
	payload := refzip.ArchiveReferenceSet(entries)
	if payload == nil {
		a.fail(w, fmt.Errorf("archive failed"))
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", characterID+"_references.zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
