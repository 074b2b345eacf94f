package model

import "time"

const (
	OriginCustom   = "custom"
	OriginTemplate = "template"
)

const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusDeferred   = "deferred"
)

type ProjectTask struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Origin    string    `json:"origin"`
	SourceID  *string   `json:"sourceId"`
	Stage     string    `json:"stage"`
	Text      string    `json:"text"`
	Completed bool      `json:"completed"`
	Status    string    `json:"status"`
	Order     int       `json:"order"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TaskPatch перечисляет разрешенные поля частичного обновления.
// Отсутствующее поле (nil) оставляет сохраненное значение без изменений.
type TaskPatch struct {
	Text      *string `json:"text,omitempty"`
	Stage     *string `json:"stage,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	Status    *string `json:"status,omitempty"`
	Order     *int    `json:"order,omitempty"`
	Origin    *string `json:"origin,omitempty"`
	SourceID  *string `json:"sourceId,omitempty"`
}

type CreateTaskRequest struct {
	Text      string  `json:"text"`
	Stage     string  `json:"stage"`
	Origin    string  `json:"origin"`
	SourceID  *string `json:"sourceId,omitempty"`
	Completed bool    `json:"completed,omitempty"`
	Status    string  `json:"status,omitempty"`
	Order     int     `json:"order,omitempty"`
}

type TaskFilter struct {
	Stage     *string
	Completed *bool
}

// DuplicateGroup - группа строк одного проекта с повторяющимся (sourceId, stage).
type DuplicateGroup struct {
	SourceID string        `json:"sourceId"`
	Stage    string        `json:"stage"`
	Tasks    []ProjectTask `json:"tasks"`
}

func ValidOrigin(origin string) bool {
	return origin == OriginCustom || origin == OriginTemplate
}

func ValidStatus(status string) bool {
	switch status {
	case StatusOpen, StatusInProgress, StatusDone, StatusDeferred:
		return true
	}
	return false
}
