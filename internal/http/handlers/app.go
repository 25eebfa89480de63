package handlers

import (
	"encoding/json"
	"net/http"

	"pixvid/internal/domain"
	"pixvid/internal/infra"
	"pixvid/internal/middleware"
	"pixvid/internal/scheduler"
	"pixvid/internal/storage"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Engine    *scheduler.Engine
	Users     domain.UserRepository
	Jobs      domain.JobRepository
	Store     *storage.FileStore
	Logger    infra.Logger
	JWTSecret string
	PageLimit int
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, errorResponse{Error: kind, Message: msg})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
