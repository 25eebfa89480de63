package handlers

import (
	"net/http"
)

type healthDTO struct {
	Status       string `json:"status"`
	JobsPending  int    `json:"jobs_pending"`
	JobsInFlight int    `json:"jobs_in_flight"`
}

// Health reports liveness plus the scheduler's queue depth, which is the
// number an operator actually wants when the service feels slow.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	out := healthDTO{Status: "ok"}
	if a.Engine != nil {
		out.JobsPending = len(a.Engine.ListPending())
		out.JobsInFlight = len(a.Engine.ListInFlight())
	}
	a.json(w, http.StatusOK, out)
}
