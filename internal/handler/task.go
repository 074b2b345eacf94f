package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/planhub/checklist-api/internal/model"
	"github.com/planhub/checklist-api/internal/repo"
	"github.com/planhub/checklist-api/internal/service"
	"github.com/planhub/checklist-api/pkg/respond"
)

type TaskHandler struct {
	service *service.TaskService
	logger  *zap.Logger
}

func NewTaskHandler(srv *service.TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: srv,
		logger:  logger,
	}
}

func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var filter model.TaskFilter
	if stage := r.URL.Query().Get("stage"); stage != "" {
		filter.Stage = &stage
	}
	if raw := r.URL.Query().Get("completed"); raw != "" {
		completed, err := strconv.ParseBool(raw)
		if err != nil {
			respond.Error(w, r, http.StatusBadRequest, respond.KindValidation, "completed must be a boolean")
			return
		}
		filter.Completed = &completed
	}
	ensure, _ := strconv.ParseBool(r.URL.Query().Get("ensure"))

	tasks, err := h.service.ListTasks(r.Context(), projectID, filter, ensure)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, tasks)
}

func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if r.ContentLength == 0 {
		respond.Error(w, r, http.StatusBadRequest, respond.KindValidation, "empty request body")
		return
	}

	var req model.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("failed to decode json", zap.Error(err))
		respond.Error(w, r, http.StatusBadRequest, respond.KindValidation, fmt.Sprintf("invalid json: %v", err))
		return
	}

	task, err := h.service.CreateTask(r.Context(), projectID, req)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	h.logger.Info("task created",
		zap.String("project_id", projectID),
		zap.String("task_id", task.ID),
		zap.String("user_id", UserID(r.Context())),
	)

	w.Header().Set("Location", fmt.Sprintf("/projects/%s/tasks/%s", projectID, task.ID))
	respond.JSON(w, r, http.StatusCreated, task)
}

func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	identifier := chi.URLParam(r, "identifier")

	task, err := h.service.GetTask(r.Context(), projectID, identifier)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, task)
}

// Update принимает любой поддерживаемый идентификатор задачи: канонический id,
// легаси-форму с хвостом, шаблонный ключ или префикс.
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	identifier := chi.URLParam(r, "identifier")

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var patch model.TaskPatch
	if err := dec.Decode(&patch); err != nil {
		respond.Error(w, r, http.StatusBadRequest, respond.KindValidation, fmt.Sprintf("invalid patch: %v", err))
		return
	}

	task, err := h.service.UpdateTask(r.Context(), projectID, identifier, patch)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}

	respond.JSON(w, r, http.StatusOK, task)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	identifier := chi.URLParam(r, "identifier")

	if err := h.service.DeleteTask(r.Context(), projectID, identifier); err != nil {
		h.handleErrors(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) Duplicates(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	groups, err := h.service.Duplicates(r.Context(), projectID)
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, groups)
}

func (h *TaskHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStats(r.Context())
	if err != nil {
		h.handleErrors(w, r, err)
		return
	}
	respond.JSON(w, r, http.StatusOK, stats)
}

func (h *TaskHandler) handleErrors(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		respond.Error(w, r, http.StatusBadRequest, respond.KindValidation, err.Error())
	case errors.Is(err, service.ErrProjectNotFound):
		respond.Error(w, r, http.StatusNotFound, respond.KindProjectNotFound, "project not found")
	case errors.Is(err, service.ErrBoundaryViolation):
		respond.Error(w, r, http.StatusForbidden, respond.KindBoundaryViolation, "task belongs to another project")
	case errors.Is(err, repo.ErrorNotFound):
		respond.Error(w, r, http.StatusNotFound, respond.KindTaskNotFound, "task not found")
	case errors.Is(err, repo.ErrorConflict):
		respond.Error(w, r, http.StatusConflict, respond.KindUpdateConflict, "conflicting write, retry the request")
	default:
		h.logger.Error("internal error", zap.Error(err))
		respond.Error(w, r, http.StatusInternalServerError, respond.KindInternal, "internal error")
	}
}
