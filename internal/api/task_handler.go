package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/threadsift/threadsift/internal/analysis"
	"github.com/threadsift/threadsift/internal/api/shared"
	"github.com/threadsift/threadsift/internal/task"
)

// CommentPayload is one comment submitted for analysis.
type CommentPayload struct {
	Author string `json:"author"`
	Text   string `json:"text"   validate:"required"`
	Likes  int    `json:"likes"  validate:"gte=0"`
}

// CreateTaskRequest is the body for POST /api/tasks. Analyze tasks carry the
// scraped comments inline; they live only in the executor closure and are
// never persisted with the task record.
type CreateTaskRequest struct {
	Kind     string           `json:"kind"      validate:"required,oneof=extract analyze"`
	URL      string           `json:"url"       validate:"required,url"`
	Platform string           `json:"platform"  validate:"required"`
	MaxItems int              `json:"maxItems"  validate:"gte=0"`
	Comments []CommentPayload `json:"comments"  validate:"dive"`
}

// ProgressRequest is the body for POST /api/tasks/{id}/progress. A stage
// report takes precedence over a bare percent.
type ProgressRequest struct {
	Percent      *int   `json:"percent" validate:"omitempty,gte=0,lte=100"`
	Message      string `json:"message"`
	Stage        string `json:"stage"`
	Current      int    `json:"current" validate:"gte=0"`
	Total        int    `json:"total"   validate:"gte=0"`
	StageMessage string `json:"stageMessage"`
}

// CompleteRequest is the body for POST /api/tasks/{id}/complete.
type CompleteRequest struct {
	TokensUsed int `json:"tokensUsed" validate:"gte=0"`
	ItemCount  int `json:"itemCount"  validate:"gte=0"`
}

// FailRequest is the body for POST /api/tasks/{id}/fail.
type FailRequest struct {
	Error string `json:"error" validate:"required"`
}

// TaskHandler serves the task control API.
type TaskHandler struct {
	service  *task.Service
	analyzer analysis.Analyzer // nil when no LLM is configured
	retry    task.AnalyzeRetry
	logger   *slog.Logger
}

// NewTaskHandler creates the handler. analyzer may be nil; analyze tasks
// then stay queued until an executor is attached by other means.
func NewTaskHandler(service *task.Service, analyzer analysis.Analyzer, retry task.AnalyzeRetry, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		service:  service,
		analyzer: analyzer,
		retry:    retry,
		logger:   logger.With("component", "task_handler"),
	}
}

func (h *TaskHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithError(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err))
}

// Routes mounts the task endpoints on r.
func (h *TaskHandler) Routes(r chi.Router) {
	r.Post("/tasks", h.CreateTask)
	r.Get("/tasks", h.ListTasks)
	r.Delete("/tasks/finished", h.ClearFinished)
	r.Get("/tasks/{id}", h.GetTask)
	r.Post("/tasks/{id}/cancel", h.CancelTask)
	r.Post("/tasks/{id}/abort", h.AbortTask)
	r.Post("/tasks/{id}/progress", h.ReportProgress)
	r.Post("/tasks/{id}/complete", h.CompleteTask)
	r.Post("/tasks/{id}/fail", h.FailTask)
}

// CreateTask handles POST /api/tasks. Extraction runs in the client's
// browser, so extract tasks get a remote-driven executor fed through the
// progress/complete endpoints; analyze tasks get the in-process analyzer
// when one is configured.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	kind := task.Kind(req.Kind)
	rec := h.service.CreateTask(kind, req.URL, req.Platform, req.MaxItems)

	switch kind {
	case task.KindExtract:
		h.service.AttachRemote(rec.ID)
	case task.KindAnalyze:
		if h.analyzer == nil {
			h.logger.Warn("analyze task created without analyzer configured",
				"task_id", rec.ID)
			break
		}
		if len(req.Comments) == 0 {
			h.service.FailTask(rec.ID, "no comments supplied for analysis")
			break
		}
		comments := make([]analysis.Comment, len(req.Comments))
		for i, c := range req.Comments {
			comments[i] = analysis.Comment{Author: c.Author, Text: c.Text, Likes: c.Likes}
		}
		h.service.SetExecutor(rec.ID,
			task.NewAnalyzeExecutor(h.service, h.analyzer, comments, h.retry, h.logger))
	}

	// Re-read: attaching an executor may have started or failed the task.
	if current, ok := h.service.GetTask(rec.ID); ok {
		rec = current
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, rec)
}

// ListTasks handles GET /api/tasks with an optional ?status= filter.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	var tasks []task.Record
	if status != "" {
		tasks = h.service.TasksByStatus(task.Status(status))
	} else {
		tasks = h.service.AllTasks()
	}
	if tasks == nil {
		tasks = []task.Record{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, tasks)
}

// GetTask handles GET /api/tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.service.GetTask(chi.URLParam(r, "id"))
	if !ok {
		h.respondError(w, r, task.ErrTaskNotFound)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}

// CancelTask handles POST /api/tasks/{id}/cancel.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.service.GetTask(id); !ok {
		h.respondError(w, r, task.ErrTaskNotFound)
		return
	}
	h.service.CancelTask(id)
	rec, _ := h.service.GetTask(id)
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}

// AbortTask handles POST /api/tasks/{id}/abort: signal-only, the executor
// winds down on its own terms.
func (h *TaskHandler) AbortTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.service.GetTask(id); !ok {
		h.respondError(w, r, task.ErrTaskNotFound)
		return
	}
	h.service.AbortTask(id)
	w.WriteHeader(http.StatusAccepted)
}

// ReportProgress handles POST /api/tasks/{id}/progress from external
// extraction agents.
func (h *TaskHandler) ReportProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.service.GetTask(id); !ok {
		h.respondError(w, r, task.ErrTaskNotFound)
		return
	}
	var req ProgressRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	switch {
	case req.Stage != "":
		h.service.UpdateDetailedProgress(id, task.ProgressUpdate{
			Stage:        req.Stage,
			Current:      req.Current,
			Total:        req.Total,
			StageMessage: req.StageMessage,
		})
	case req.Percent != nil:
		h.service.UpdateProgress(id, *req.Percent, req.Message)
	default:
		shared.RespondWithError(w, r, http.StatusBadRequest, "Either stage or percent is required")
		return
	}

	rec, _ := h.service.GetTask(id)
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}

// CompleteTask handles POST /api/tasks/{id}/complete from external agents.
func (h *TaskHandler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.service.GetTask(id); !ok {
		h.respondError(w, r, task.ErrTaskNotFound)
		return
	}
	var req CompleteRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	h.service.CompleteTask(id, task.Result{TokensUsed: req.TokensUsed, ItemCount: req.ItemCount})
	rec, _ := h.service.GetTask(id)
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}

// FailTask handles POST /api/tasks/{id}/fail from external agents.
func (h *TaskHandler) FailTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.service.GetTask(id); !ok {
		h.respondError(w, r, task.ErrTaskNotFound)
		return
	}
	var req FailRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	h.service.FailTask(id, req.Error)
	rec, _ := h.service.GetTask(id)
	shared.RespondWithJSON(w, r, http.StatusOK, rec)
}

// ClearFinished handles DELETE /api/tasks/finished.
func (h *TaskHandler) ClearFinished(w http.ResponseWriter, r *http.Request) {
	removed := h.service.ClearFinishedTasks()
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]int{"removed": removed})
}
