package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/planhub/checklist-api/internal/cache"
	"github.com/planhub/checklist-api/internal/catalog"
	"github.com/planhub/checklist-api/internal/model"
	"github.com/planhub/checklist-api/internal/repo"
	"github.com/planhub/checklist-api/internal/resolver"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrProjectNotFound   = errors.New("project not found")
	ErrBoundaryViolation = errors.New("project boundary violation")
)

type TaskService struct {
	repo     repo.TaskRepository
	resolver *resolver.Resolver
	catalog  *catalog.Catalog
	cache    *cache.Cache
	logger   *zap.Logger
}

func NewTaskService(r repo.TaskRepository, res *resolver.Resolver, cat *catalog.Catalog, c *cache.Cache, logger *zap.Logger) *TaskService {
	return &TaskService{
		repo:     r,
		resolver: res,
		catalog:  cat,
		cache:    c,
		logger:   logger,
	}
}

// ListTasks возвращает чеклист проекта в порядке ord. При ensure=true перед
// чтением досеваются недостающие шаблонные задачи.
func (s *TaskService) ListTasks(ctx context.Context, projectID string, filter model.TaskFilter, ensure bool) ([]model.ProjectTask, error) {
	if err := s.checkProject(ctx, projectID); err != nil {
		return nil, err
	}

	if ensure {
		tasks, err := s.ensureTemplates(ctx, projectID)
		if err != nil {
			return nil, err
		}
		if filter.Stage == nil && filter.Completed == nil {
			return tasks, nil
		}
	}
	return s.repo.ListTasks(ctx, projectID, filter)
}

// EnsureTemplateTasks приводит проект к полному каталожному чеклисту.
// Повторные и конкурентные вызовы безопасны: гонку решает уникальный индекс
// хранилища, а не блокировка в приложении.
func (s *TaskService) EnsureTemplateTasks(ctx context.Context, projectID string) ([]model.ProjectTask, error) {
	if err := s.checkProject(ctx, projectID); err != nil {
		return nil, err
	}
	return s.ensureTemplates(ctx, projectID)
}

func (s *TaskService) ensureTemplates(ctx context.Context, projectID string) ([]model.ProjectTask, error) {
	tasks, err := s.repo.EnsureTemplateTasks(ctx, projectID, s.catalog.All())
	if err != nil {
		return nil, err
	}
	s.logger.Info("checklist ensured",
		zap.String("project_id", projectID),
		zap.Int("tasks", len(tasks)),
	)
	return tasks, nil
}

func (s *TaskService) GetTask(ctx context.Context, projectID, identifier string) (model.ProjectTask, error) {
	if err := s.checkProject(ctx, projectID); err != nil {
		return model.ProjectTask{}, err
	}

	t, _, err := s.resolver.Resolve(ctx, projectID, identifier)
	if errors.Is(err, repo.ErrorNotFound) {
		return model.ProjectTask{}, s.notFoundOrBoundary(ctx, projectID, identifier)
	}
	return t, err
}

func (s *TaskService) CreateTask(ctx context.Context, projectID string, req model.CreateTaskRequest) (model.ProjectTask, error) {
	if err := s.validateCreate(&req); err != nil {
		return model.ProjectTask{}, err
	}
	if err := s.checkProject(ctx, projectID); err != nil {
		return model.ProjectTask{}, err
	}

	created, err := s.repo.CreateTask(ctx, model.ProjectTask{
		ProjectID: projectID,
		Origin:    req.Origin,
		SourceID:  req.SourceID,
		Stage:     req.Stage,
		Text:      req.Text,
		Completed: req.Completed,
		Status:    req.Status,
		Order:     req.Order,
	})
	if err != nil {
		return created, err
	}

	s.cache.Put(projectID, created.ID, created)
	return created, nil
}

// UpdateTask обновляет задачу по любому поддерживаемому идентификатору: точному
// id, легаси-форме с хвостом, шаблонному ключу или префиксу. Если шаблонная
// ссылка еще не материализована в строку, первая запись создает задачу.
func (s *TaskService) UpdateTask(ctx context.Context, projectID, identifier string, patch model.TaskPatch) (model.ProjectTask, error) {
	if err := s.validatePatch(patch); err != nil {
		return model.ProjectTask{}, err
	}
	if err := s.checkProject(ctx, projectID); err != nil {
		return model.ProjectTask{}, err
	}

	t, _, err := s.resolver.Resolve(ctx, projectID, identifier)
	switch {
	case err == nil:
		return s.updateResolved(ctx, t, identifier, patch)
	case errors.Is(err, repo.ErrorNotFound):
		return s.upsertUnresolved(ctx, projectID, identifier, patch)
	default:
		return model.ProjectTask{}, err
	}
}

func (s *TaskService) updateResolved(ctx context.Context, t model.ProjectTask, identifier string, patch model.TaskPatch) (model.ProjectTask, error) {
	if err := validateOriginInvariant(t, patch); err != nil {
		return model.ProjectTask{}, err
	}

	updated, err := s.repo.UpdateTask(ctx, t.ProjectID, t.ID, patch)
	if errors.Is(err, repo.ErrorNotFound) { // Строка исчезла между резолюцией и записью
		s.cache.Invalidate(t.ProjectID, t.ID)
		return model.ProjectTask{}, repo.ErrorNotFound
	}
	if err != nil {
		return model.ProjectTask{}, err
	}

	s.refreshCache(identifier, updated)
	return updated, nil
}

func (s *TaskService) upsertUnresolved(ctx context.Context, projectID, identifier string, patch model.TaskPatch) (model.ProjectTask, error) {
	tmpl, ok := s.templateFor(identifier)
	if !ok {
		return model.ProjectTask{}, s.notFoundOrBoundary(ctx, projectID, identifier)
	}
	if err := validateUpsertPatch(tmpl, patch); err != nil {
		return model.ProjectTask{}, err
	}

	t, err := s.repo.UpsertTemplateTask(ctx, projectID, tmpl, patch)
	if err != nil {
		return model.ProjectTask{}, err
	}

	s.logger.Info("template task materialized on first write",
		zap.String("project_id", projectID),
		zap.String("source_id", tmpl.FactorID),
		zap.String("stage", tmpl.Stage),
		zap.String("task_id", t.ID),
	)
	s.refreshCache(identifier, t)
	return t, nil
}

// DeleteTask идемпотентен: отсутствующая задача - не ошибка. Чужие задачи
// намеренно неотличимы от отсутствующих, чтобы не раскрывать их существование.
func (s *TaskService) DeleteTask(ctx context.Context, projectID, identifier string) error {
	if err := s.checkProject(ctx, projectID); err != nil {
		return err
	}

	t, _, err := s.resolver.Resolve(ctx, projectID, identifier)
	if errors.Is(err, repo.ErrorNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = s.repo.DeleteTask(ctx, t.ProjectID, t.ID)
	if err != nil && !errors.Is(err, repo.ErrorNotFound) { // Конкурентное удаление - тоже успех
		return err
	}
	s.cache.Invalidate(t.ProjectID, t.ID)
	return nil
}

// Duplicates группирует шаблонные задачи проекта, у которых совпадает пара
// (sourceId, stage). В здоровом хранилище ответ пуст.
func (s *TaskService) Duplicates(ctx context.Context, projectID string) ([]model.DuplicateGroup, error) {
	if err := s.checkProject(ctx, projectID); err != nil {
		return nil, err
	}

	tasks, err := s.repo.ListTasks(ctx, projectID, model.TaskFilter{})
	if err != nil {
		return nil, err
	}
	return FindDuplicates(tasks), nil
}

func (s *TaskService) GetStats(ctx context.Context) (repo.Stats, error) {
	return s.repo.GetStats(ctx)
}

func (s *TaskService) checkProject(ctx context.Context, projectID string) error {
	if uuid.Validate(projectID) != nil {
		return fmt.Errorf("%w: projectId must be a UUID", ErrValidation)
	}
	exists, err := s.repo.ProjectExists(ctx, projectID)
	if err != nil {
		return err
	}
	if !exists {
		return ErrProjectNotFound
	}
	return nil
}

// notFoundOrBoundary различает "задачи нет" и "задача есть, но в чужом проекте".
// Сама чужая строка наружу не выходит - только факт нарушения границы.
func (s *TaskService) notFoundOrBoundary(ctx context.Context, projectID, identifier string) error {
	canonical, ok := resolver.CanonicalTaskID(identifier)
	if !ok { // Шаблонные ключи и мусор не могут указывать за границу проекта
		return repo.ErrorNotFound
	}

	foreign, err := s.repo.TaskExistsOutsideProject(ctx, projectID, canonical)
	if err != nil {
		return err
	}
	if foreign {
		s.logger.Warn("cross-project task access denied",
			zap.String("project_id", projectID),
			zap.String("task_id", canonical),
		)
		return ErrBoundaryViolation
	}
	return repo.ErrorNotFound
}

// templateFor сопоставляет идентификатор с шаблоном каталога. Голая ссылка на
// фактор допустима, только если фактор встречается ровно в одной стадии.
func (s *TaskService) templateFor(identifier string) (catalog.Template, bool) {
	ref, ok := catalog.ParseRef(identifier)
	if !ok {
		return catalog.Template{}, false
	}
	if ref.Stage != "" {
		return s.catalog.Lookup(ref.FactorID, ref.Stage)
	}

	matches := s.catalog.ByFactor(ref.FactorID)
	if len(matches) == 1 {
		return matches[0], true
	}
	return catalog.Template{}, false
}

// refreshCache перекладывает свежую строку под оба ключа: идентификатор из
// запроса и канонический id.
func (s *TaskService) refreshCache(identifier string, t model.ProjectTask) {
	s.cache.Invalidate(t.ProjectID, t.ID)
	s.cache.Put(t.ProjectID, identifier, t)
	if identifier != t.ID {
		s.cache.Put(t.ProjectID, t.ID, t)
	}
}

func (s *TaskService) validateCreate(req *model.CreateTaskRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrValidation)
	}
	if strings.TrimSpace(req.Stage) == "" {
		return fmt.Errorf("%w: stage is required", ErrValidation)
	}
	if req.Origin == "" {
		req.Origin = model.OriginCustom
	}
	if !model.ValidOrigin(req.Origin) {
		return fmt.Errorf("%w: unknown origin %q", ErrValidation, req.Origin)
	}
	if req.Origin == model.OriginTemplate && (req.SourceID == nil || *req.SourceID == "") {
		return fmt.Errorf("%w: template tasks require sourceId", ErrValidation)
	}
	if req.Status == "" {
		req.Status = model.StatusOpen
	}
	if !model.ValidStatus(req.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, req.Status)
	}
	return nil
}

func (s *TaskService) validatePatch(patch model.TaskPatch) error {
	if patch.Text != nil && strings.TrimSpace(*patch.Text) == "" {
		return fmt.Errorf("%w: text cannot be blank", ErrValidation)
	}
	if patch.Stage != nil && strings.TrimSpace(*patch.Stage) == "" {
		return fmt.Errorf("%w: stage cannot be blank", ErrValidation)
	}
	if patch.Status != nil && !model.ValidStatus(*patch.Status) {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, *patch.Status)
	}
	if patch.Origin != nil && !model.ValidOrigin(*patch.Origin) {
		return fmt.Errorf("%w: unknown origin %q", ErrValidation, *patch.Origin)
	}
	if patch.SourceID != nil && strings.TrimSpace(*patch.SourceID) == "" {
		return fmt.Errorf("%w: sourceId cannot be blank", ErrValidation)
	}
	return nil
}

// Инвариант хранилища: шаблонная задача всегда несет sourceId.
func validateOriginInvariant(t model.ProjectTask, patch model.TaskPatch) error {
	origin := t.Origin
	if patch.Origin != nil {
		origin = *patch.Origin
	}
	source := t.SourceID
	if patch.SourceID != nil {
		source = patch.SourceID
	}
	if origin == model.OriginTemplate && source == nil {
		return fmt.Errorf("%w: template tasks require sourceId", ErrValidation)
	}
	return nil
}

// Первая запись не может переписать идентичность шаблона, по которому адресуется.
func validateUpsertPatch(tmpl catalog.Template, patch model.TaskPatch) error {
	if patch.Stage != nil && *patch.Stage != tmpl.Stage {
		return fmt.Errorf("%w: stage does not match template %s", ErrValidation, tmpl.Key())
	}
	if patch.Origin != nil && *patch.Origin != model.OriginTemplate {
		return fmt.Errorf("%w: origin does not match template %s", ErrValidation, tmpl.Key())
	}
	if patch.SourceID != nil && *patch.SourceID != tmpl.FactorID {
		return fmt.Errorf("%w: sourceId does not match template %s", ErrValidation, tmpl.Key())
	}
	return nil
}
