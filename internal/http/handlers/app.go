package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"charforge/internal/domain"
	"charforge/internal/engine"
	"charforge/internal/infra"
)

// App bundles the collaborators the HTTP handlers need.
type App struct {
	Characters domain.CharacterRepository
	Images     domain.ReferenceImageRepository
	Jobs       domain.ReferenceJobRepository
	Objects    domain.ObjectStore
	Engine     *engine.Client
	Logger     infra.Logger
}

// NewApp constructs the handler set.
func NewApp(characters domain.CharacterRepository, images domain.ReferenceImageRepository, jobs domain.ReferenceJobRepository, objects domain.ObjectStore, eng *engine.Client, logger infra.Logger) *App {
	return &App{
		Characters: characters,
		Images:     images,
		Jobs:       jobs,
		Objects:    objects,
		Engine:     eng,
		Logger:     logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fail maps domain errors onto HTTP status codes.
func (a *App) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.json(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrRunInProgress):
		a.json(w, http.StatusConflict, map[string]string{"error": "a generation run is already in progress for this character"})
	case errors.Is(err, domain.ErrAvatarRequired):
		a.json(w, http.StatusPreconditionFailed, map[string]string{"error": "character has no avatar yet"})
	default:
		a.Logger.Error().Err(err).Msg("handlers: internal error")
		a.json(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
