package resolver

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planhub/checklist-api/internal/cache"
	"github.com/planhub/checklist-api/internal/catalog"
	"github.com/planhub/checklist-api/internal/model"
	"github.com/planhub/checklist-api/internal/repo"
)

// Имена стратегий попадают в логи и ответы - менять осторожно.
const (
	StrategyCache     = "cache"
	StrategyExact     = "exact"
	StrategyCanonical = "canonical"
	StrategySource    = "source"
	StrategyPrefix    = "prefix"
)

type strategy struct {
	name string
	fn   func(ctx context.Context, projectID, identifier string) (model.ProjectTask, error)
}

// TaskFinder - срез хранилища, которым пользуются стратегии резолюции.
type TaskFinder interface {
	GetTask(ctx context.Context, projectID, taskID string) (model.ProjectTask, error)
	FindBySource(ctx context.Context, projectID, factorID, stage string) (model.ProjectTask, error)
	FindByPrefix(ctx context.Context, projectID, prefix string) (model.ProjectTask, error)
}

// Resolver сводит (identifier, projectID) к единственной канонической задаче.
// Стратегии - явный упорядоченный список: новую легаси-причуду добавляем
// отдельной стратегией, не трогая существующие.
type Resolver struct {
	repo       TaskFinder
	cache      *cache.Cache
	logger     *zap.Logger
	strategies []strategy
}

func New(taskRepo TaskFinder, c *cache.Cache, logger *zap.Logger) *Resolver {
	r := &Resolver{
		repo:   taskRepo,
		cache:  c,
		logger: logger,
	}
	r.strategies = []strategy{
		{name: StrategyExact, fn: r.exactMatch},
		{name: StrategyCanonical, fn: r.canonicalMatch},
		{name: StrategySource, fn: r.sourceMatch},
		{name: StrategyPrefix, fn: r.prefixMatch},
	}
	return r
}

// Resolve возвращает задачу и имя сработавшей стратегии. repo.ErrorNotFound
// означает "точно нет" - ошибка хранилища приходит любым другим error.
func (r *Resolver) Resolve(ctx context.Context, projectID, identifier string) (model.ProjectTask, string, error) {
	if identifier == "" { // Пустой идентификатор превратился бы в префикс "все подряд"
		return model.ProjectTask{}, "", repo.ErrorNotFound
	}

	if t, ok := r.cache.Get(projectID, identifier); ok {
		return t, StrategyCache, nil
	}

	for _, s := range r.strategies {
		t, err := s.fn(ctx, projectID, identifier)
		if errors.Is(err, repo.ErrorNotFound) {
			continue
		}
		if err != nil {
			return model.ProjectTask{}, s.name, err
		}
		if t.ProjectID != projectID {
			// Строка чужого проекта отбрасывается, никогда не подставляется
			continue
		}
		r.cache.Put(projectID, identifier, t)
		r.logger.Debug("task resolved",
			zap.String("strategy", s.name),
			zap.String("project_id", projectID),
			zap.String("task_id", t.ID),
		)
		return t, s.name, nil
	}

	return model.ProjectTask{}, "", repo.ErrorNotFound
}

// Strategies перечисляет имена стратегий в порядке применения.
func (r *Resolver) Strategies() []string {
	names := make([]string, 0, len(r.strategies))
	for _, s := range r.strategies {
		names = append(names, s.name)
	}
	return names
}

func (r *Resolver) exactMatch(ctx context.Context, projectID, identifier string) (model.ProjectTask, error) {
	if len(identifier) != canonicalIDLen || uuid.Validate(identifier) != nil {
		return model.ProjectTask{}, repo.ErrorNotFound
	}
	return r.repo.GetTask(ctx, projectID, identifier)
}

func (r *Resolver) canonicalMatch(ctx context.Context, projectID, identifier string) (model.ProjectTask, error) {
	canonical, ok := CanonicalTaskID(identifier)
	if !ok || canonical == identifier {
		return model.ProjectTask{}, repo.ErrorNotFound
	}
	return r.repo.GetTask(ctx, projectID, canonical)
}

func (r *Resolver) sourceMatch(ctx context.Context, projectID, identifier string) (model.ProjectTask, error) {
	ref, ok := catalog.ParseRef(identifier)
	if !ok {
		return model.ProjectTask{}, repo.ErrorNotFound
	}
	return r.repo.FindBySource(ctx, projectID, ref.FactorID, ref.Stage)
}

func (r *Resolver) prefixMatch(ctx context.Context, projectID, identifier string) (model.ProjectTask, error) {
	return r.repo.FindByPrefix(ctx, projectID, identifier)
}

const canonicalIDLen = 36

// CanonicalTaskID отрезает легаси-хвост, исторически приклеенный после
// корректного id ("<uuid>-suffix123" -> "<uuid>"). ok=false, если идентификатор
// не начинается с канонического UUID.
func CanonicalTaskID(identifier string) (string, bool) {
	if len(identifier) < canonicalIDLen {
		return "", false
	}
	head := identifier[:canonicalIDLen]
	if uuid.Validate(head) != nil {
		return "", false
	}
	return head, true
}
