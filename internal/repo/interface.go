package repo

import (
	"context"

	"github.com/planhub/checklist-api/internal/catalog"
	"github.com/planhub/checklist-api/internal/model"
)

// TaskRepository определяет интерфейс хранилища задач проекта.
// Каждый запрос и каждая мутация обязаны фильтровать по projectID:
// выражение без границы проекта - дефект, а не фича.
type TaskRepository interface {
	GetTask(ctx context.Context, projectID, taskID string) (model.ProjectTask, error)
	FindBySource(ctx context.Context, projectID, factorID, stage string) (model.ProjectTask, error)
	FindByPrefix(ctx context.Context, projectID, prefix string) (model.ProjectTask, error)
	ListTasks(ctx context.Context, projectID string, filter model.TaskFilter) ([]model.ProjectTask, error)
	CreateTask(ctx context.Context, t model.ProjectTask) (model.ProjectTask, error)
	EnsureTemplateTasks(ctx context.Context, projectID string, templates []catalog.Template) ([]model.ProjectTask, error)
	UpsertTemplateTask(ctx context.Context, projectID string, tmpl catalog.Template, patch model.TaskPatch) (model.ProjectTask, error)
	UpdateTask(ctx context.Context, projectID, taskID string, patch model.TaskPatch) (model.ProjectTask, error)
	DeleteTask(ctx context.Context, projectID, taskID string) error
	TaskExistsOutsideProject(ctx context.Context, projectID, taskID string) (bool, error)
	ProjectExists(ctx context.Context, projectID string) (bool, error)
	FindDuplicateTemplateTasks(ctx context.Context) ([]DuplicateRow, error)
	GetStats(ctx context.Context) (Stats, error)
}

// DuplicateRow - диагностическая строка: компонент шаблона, посеянный
// в проект больше одного раза. В исправной системе выборка пуста.
type DuplicateRow struct {
	ProjectID string `json:"project_id"`
	SourceID  string `json:"source_id"`
	Stage     string `json:"stage"`
	Count     int    `json:"count"`
}

type Stats struct {
	TotalTasks int            `json:"total_tasks"`
	Projects   int            `json:"projects"`
	ByOrigin   map[string]int `json:"by_origin"`
	ByStatus   map[string]int `json:"by_status"`
}
