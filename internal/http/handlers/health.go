package handlers

import "net/http"

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// EngineHealth probes the image engine. Operational tooling only.
func (a *App) EngineHealth(w http.ResponseWriter, r *http.Request) {
	if a.Engine != nil && a.Engine.HealthCheck(r.Context()) {
		a.json(w, http.StatusOK, map[string]string{"engine": "ok"})
		return
	}
	a.json(w, http.StatusServiceUnavailable, map[string]string{"engine": "unreachable"})
}
