package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/jobline/jobline"
	"github.com/jobline/jobline/engine"
	"github.com/jobline/jobline/id"
	"github.com/jobline/jobline/job"
)

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := job.Filter{
		Status: job.Status(q.Get("status")),
		Type:   job.Type(q.Get("type")),
	}
	p := job.PageOpts{
		Page: atoiDefault(q.Get("page"), 1),
		Size: atoiDefault(q.Get("limit"), 0),
	}

	page, err := a.eng.List(r.Context(), f, p)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, page)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathJobID(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	j, err := a.eng.Get(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"job": j})
}

func (a *API) createJob(w http.ResponseWriter, r *http.Request) {
	var spec job.Spec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		a.writeError(w, fmt.Errorf("decode body: %w: %w", jobline.ErrValidation, err))
		return
	}

	j, err := a.eng.Create(r.Context(), spec)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{
		"job_id": j.ID.String(),
		"job":    j,
	})
}

func (a *API) retryJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathJobID(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	j, err := a.eng.Retry(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"job": j})
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathJobID(r)
	if err != nil {
		a.writeError(w, err)
		return
	}

	j, err := a.eng.Cancel(r.Context(), jobID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"job": j})
}

type bulkActionRequest struct {
	Action string   `json:"action"`
	JobIDs []string `json:"job_ids"`
}

func (a *API) bulkAction(w http.ResponseWriter, r *http.Request) {
	var req bulkActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, fmt.Errorf("decode body: %w: %w", jobline.ErrValidation, err))
		return
	}

	// Unparseable IDs become failed items rather than failing the batch;
	// the action still applies to every well-formed ID.
	jobIDs := make([]id.JobID, 0, len(req.JobIDs))
	var badIDs []engine.BulkItem
	for _, raw := range req.JobIDs {
		jobID, err := id.ParseJobID(raw)
		if err != nil {
			badIDs = append(badIDs, engine.BulkItem{JobID: raw, Error: err.Error()})
			continue
		}
		jobIDs = append(jobIDs, jobID)
	}

	res, err := a.eng.Bulk(r.Context(), engine.BulkAction(req.Action), jobIDs)
	if err != nil {
		a.writeError(w, err)
		return
	}

	res.Total += len(badIDs)
	res.Failed += len(badIDs)
	res.Results = append(res.Results, badIDs...)

	a.writeJSON(w, http.StatusOK, map[string]any{"results": res})
}

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]any{
		"notifications": a.rec.Notifications(),
	})
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	healthy := true
	if err := a.eng.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		healthy = false
	}

	a.writeJSON(w, status, map[string]any{
		"healthy": healthy,
		"live":    a.rec.Live(),
	})
}

func pathJobID(r *http.Request) (id.JobID, error) {
	raw := mux.Vars(r)["jobId"]
	jobID, err := id.ParseJobID(raw)
	if err != nil {
		return id.Nil, fmt.Errorf("invalid job ID %q: %w", raw, jobline.ErrJobNotFound)
	}
	return jobID, nil
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
