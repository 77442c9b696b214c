package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/talentsignal/sourcing-cli/internal/model"
	"github.com/talentsignal/sourcing-cli/internal/pipeline"
	"github.com/talentsignal/sourcing-cli/internal/store"
)

// jobView is the API representation of a job: the stored row plus its
// projected progress percentage.
type jobView struct {
	*model.SourcingJob
	Progress int `json:"progress"`
}

func viewOf(job *model.SourcingJob) jobView {
	return jobView{SourcingJob: job, Progress: pipeline.Progress(job)}
}

// newRouter builds the HTTP API. baseCtx bounds the lifetime of jobs
// started by handlers, so in-flight work stops when the server does.
func newRouter(baseCtx context.Context, env *env) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := env.Store.Ping(req.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/jobs", func(r chi.Router) {
		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Title         string `json:"title"`
				Requirements  string `json:"requirements"`
				MaxCandidates int    `json:"max_candidates"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if body.Title == "" || body.Requirements == "" {
				writeError(w, http.StatusBadRequest, "title and requirements are required")
				return
			}

			job, err := env.Pipeline.Create(req.Context(), body.Title, body.Requirements, body.MaxCandidates)
			if err != nil {
				zap.L().Error("create job", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "create job failed")
				return
			}

			if err := env.Pool.Start(baseCtx, job.ID); err != nil {
				zap.L().Error("start job", zap.String("job_id", job.ID), zap.Error(err))
			}

			writeJSON(w, http.StatusAccepted, viewOf(job))
		})

		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			q := req.URL.Query()
			limit := 0
			fmt.Sscanf(q.Get("limit"), "%d", &limit)

			jobs, err := env.Store.ListJobs(req.Context(), store.JobFilter{
				Status:  model.JobStatus(q.Get("status")),
				OwnerID: q.Get("owner"),
				Limit:   limit,
			})
			if err != nil {
				writeError(w, http.StatusInternalServerError, "list jobs failed")
				return
			}

			views := make([]jobView, len(jobs))
			for i := range jobs {
				views[i] = viewOf(&jobs[i])
			}
			writeJSON(w, http.StatusOK, views)
		})

		r.Route("/{jobID}", func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, req *http.Request) {
				job, ok := fetchJob(w, req, env)
				if !ok {
					return
				}
				writeJSON(w, http.StatusOK, viewOf(job))
			})

			r.Get("/candidates", func(w http.ResponseWriter, req *http.Request) {
				job, ok := fetchJob(w, req, env)
				if !ok {
					return
				}

				limit := 0
				fmt.Sscanf(req.URL.Query().Get("limit"), "%d", &limit)

				candidates, err := env.Store.RankedCandidates(req.Context(), job.ID, limit)
				if err != nil {
					writeError(w, http.StatusInternalServerError, "list candidates failed")
					return
				}
				writeJSON(w, http.StatusOK, candidates)
			})

			r.Post("/retry", func(w http.ResponseWriter, req *http.Request) {
				jobID := chi.URLParam(req, "jobID")

				decision, err := env.Retry.Retry(req.Context(), jobID)
				if errors.Is(err, store.ErrNotFound) {
					writeError(w, http.StatusNotFound, "job not found")
					return
				}
				if err != nil {
					zap.L().Error("retry job", zap.String("job_id", jobID), zap.Error(err))
					writeError(w, http.StatusInternalServerError, "retry failed")
					return
				}
				if !decision.Allowed {
					writeJSON(w, http.StatusConflict, map[string]any{
						"error":        decision.Reason,
						"wait_seconds": int(decision.Wait.Seconds()),
					})
					return
				}

				if err := env.Pool.Start(baseCtx, jobID); err != nil {
					zap.L().Error("start retried job", zap.String("job_id", jobID), zap.Error(err))
				}

				job, err := env.Store.GetJob(req.Context(), jobID)
				if err != nil {
					writeError(w, http.StatusInternalServerError, "reload job failed")
					return
				}
				writeJSON(w, http.StatusAccepted, viewOf(job))
			})

			r.Get("/events", func(w http.ResponseWriter, req *http.Request) {
				streamEvents(w, req, env)
			})
		})
	})

	return r
}

// streamEvents serves a job's progress as server-sent events until the
// job reaches a terminal state or the client disconnects.
func streamEvents(w http.ResponseWriter, req *http.Request, env *env) {
	jobID := chi.URLParam(req, "jobID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, err := env.Reporter.Watch(req.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "watch failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			zap.L().Error("marshal event", zap.Error(err))
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}

func fetchJob(w http.ResponseWriter, req *http.Request, env *env) (*model.SourcingJob, bool) {
	job, err := env.Store.GetJob(req.Context(), chi.URLParam(req, "jobID"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "load job failed")
		return nil, false
	}
	return job, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
