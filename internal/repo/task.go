package repo

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planhub/checklist-api/internal/catalog"
	"github.com/planhub/checklist-api/internal/model"
)

var (
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("conflict")
)

const taskColumns = `id, project_id, origin, source_id, stage, text, completed, status, ord, created_at, updated_at`

// querier покрывает и pgxpool.Pool, и pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type TaskRepo struct { // Репозиторий для работы непосредственно с БД
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo { // Конструктор
	return &TaskRepo{
		pool: pool,
	}
}

func (r *TaskRepo) GetTask(ctx context.Context, projectID, taskID string) (model.ProjectTask, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM project_tasks
		WHERE id = $1 AND project_id = $2
	`, taskID, projectID))

	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, err
}

// FindBySource ищет инстанцированную из шаблона задачу по её шаблонному ключу.
// Пустая stage означает любую стадию; при нескольких кандидатах берется первый
// в порядке чеклиста.
func (r *TaskRepo) FindBySource(ctx context.Context, projectID, factorID, stage string) (model.ProjectTask, error) {
	var stageArg *string
	if stage != "" {
		stageArg = &stage
	}

	t, err := scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM project_tasks
		WHERE project_id = $1
		  AND source_id = $2
		  AND ($3::text IS NULL OR stage = $3)
		ORDER BY ord, created_at, id
		LIMIT 1
	`, projectID, factorID, stageArg))

	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, err
}

// FindByPrefix - крайняя мера: совпадение по префиксу id или source_id внутри
// проекта. При нескольких кандидатах шаблонные строки предпочитаются
// пользовательским (историческое поведение для битых идентификаторов).
func (r *TaskRepo) FindByPrefix(ctx context.Context, projectID, prefix string) (model.ProjectTask, error) {
	pattern := escapeLike(prefix) + "%"

	t, err := scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM project_tasks
		WHERE project_id = $1
		  AND (id::text LIKE $2 OR (source_id IS NOT NULL AND source_id LIKE $2))
		ORDER BY (origin = 'template') DESC, ord, created_at, id
		LIMIT 1
	`, projectID, pattern))

	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, err
}

func (r *TaskRepo) ListTasks(ctx context.Context, projectID string, filter model.TaskFilter) ([]model.ProjectTask, error) {
	return listTasks(ctx, r.pool, projectID, filter)
}

func (r *TaskRepo) CreateTask(ctx context.Context, t model.ProjectTask) (model.ProjectTask, error) {
	created, err := scanTask(r.pool.QueryRow(ctx, `
		INSERT INTO project_tasks (project_id, origin, source_id, stage, text, completed, status, ord)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+taskColumns+`
	`, t.ProjectID, t.Origin, t.SourceID, t.Stage, t.Text, t.Completed, t.Status, t.Order))
	return created, r.mapError(err)
}

// EnsureTemplateTasks досевает недостающие шаблонные задачи одним условным
// INSERT: уникальный индекс (project_id, source_id, stage) отдает гонку
// хранилищу, проигравшая вставка - тихий no-op. Возвращает полный чеклист.
func (r *TaskRepo) EnsureTemplateTasks(ctx context.Context, projectID string, templates []catalog.Template) ([]model.ProjectTask, error) {
	if len(templates) == 0 {
		return r.ListTasks(ctx, projectID, model.TaskFilter{})
	}

	sourceIDs := make([]string, 0, len(templates))
	stages := make([]string, 0, len(templates))
	texts := make([]string, 0, len(templates))
	orders := make([]int32, 0, len(templates))
	for _, tmpl := range templates {
		sourceIDs = append(sourceIDs, tmpl.FactorID)
		stages = append(stages, tmpl.Stage)
		texts = append(texts, tmpl.Text)
		orders = append(orders, int32(tmpl.Order))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO project_tasks (project_id, origin, source_id, stage, text, status, ord)
		SELECT $1, 'template', t.source_id, t.stage, t.text, 'open', t.ord
		FROM unnest($2::text[], $3::text[], $4::text[], $5::int[]) AS t(source_id, stage, text, ord)
		ON CONFLICT (project_id, source_id, stage) WHERE origin = 'template' DO NOTHING
	`, projectID, sourceIDs, stages, texts, orders)
	if err != nil {
		return nil, err
	}

	tasks, err := listTasks(ctx, tx, projectID, model.TaskFilter{})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpsertTemplateTask создает шаблонную задачу при первой записи. Если
// конкурентная вставка успела раньше, патч применяется к победившей строке -
// проигравший никогда не видит ошибку.
func (r *TaskRepo) UpsertTemplateTask(ctx context.Context, projectID string, tmpl catalog.Template, patch model.TaskPatch) (model.ProjectTask, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		INSERT INTO project_tasks (project_id, origin, source_id, stage, text, completed, status, ord)
		VALUES ($1, 'template', $2, $3, COALESCE($5, $4), COALESCE($6, FALSE), COALESCE($7, 'open'), COALESCE($8, $9))
		ON CONFLICT (project_id, source_id, stage) WHERE origin = 'template'
		DO UPDATE SET
			text       = COALESCE($5, project_tasks.text),
			completed  = COALESCE($6, project_tasks.completed),
			status     = COALESCE($7, project_tasks.status),
			ord        = COALESCE($8, project_tasks.ord),
			updated_at = now()
		RETURNING `+taskColumns+`
	`, projectID, tmpl.FactorID, tmpl.Stage, tmpl.Text, patch.Text, patch.Completed, patch.Status, patch.Order, int32(tmpl.Order)))
	return t, r.mapError(err)
}

func (r *TaskRepo) UpdateTask(ctx context.Context, projectID, taskID string, patch model.TaskPatch) (model.ProjectTask, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `
		UPDATE project_tasks
		SET text       = COALESCE($3, text),
		    stage      = COALESCE($4, stage),
		    completed  = COALESCE($5, completed),
		    status     = COALESCE($6, status),
		    ord        = COALESCE($7, ord),
		    origin     = COALESCE($8, origin),
		    source_id  = COALESCE($9, source_id),
		    updated_at = now()
		WHERE id = $1 AND project_id = $2
		RETURNING `+taskColumns+`
	`, taskID, projectID, patch.Text, patch.Stage, patch.Completed, patch.Status, patch.Order, patch.Origin, patch.SourceID))

	if errors.Is(err, pgx.ErrNoRows) {
		return t, ErrorNotFound
	}
	return t, r.mapError(err)
}

func (r *TaskRepo) DeleteTask(ctx context.Context, projectID, taskID string) error {
	cmd, err := r.pool.Exec(ctx, `
		DELETE FROM project_tasks WHERE id = $1 AND project_id = $2
	`, taskID, projectID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrorNotFound
	}
	return nil
}

// TaskExistsOutsideProject отвечает только "существует ли id в чужом проекте" -
// для диагностики нарушения границы. Саму строку никогда не возвращает.
func (r *TaskRepo) TaskExistsOutsideProject(ctx context.Context, projectID, taskID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM project_tasks WHERE id = $1 AND project_id <> $2)
	`, taskID, projectID).Scan(&exists)
	return exists, err
}

func (r *TaskRepo) ProjectExists(ctx context.Context, projectID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)
	`, projectID).Scan(&exists)
	return exists, err
}

func (r *TaskRepo) FindDuplicateTemplateTasks(ctx context.Context) ([]DuplicateRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT project_id, source_id, stage, COUNT(*)
		FROM project_tasks
		WHERE origin = 'template'
		GROUP BY project_id, source_id, stage
		HAVING COUNT(*) > 1
		ORDER BY project_id, source_id, stage
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dups []DuplicateRow
	for rows.Next() {
		var d DuplicateRow
		if err := rows.Scan(&d.ProjectID, &d.SourceID, &d.Stage, &d.Count); err != nil {
			return nil, err
		}
		dups = append(dups, d)
	}
	return dups, rows.Err()
}

func (r *TaskRepo) GetStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByOrigin: make(map[string]int),
		ByStatus: make(map[string]int),
	}

	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM project_tasks`).Scan(&stats.TotalTasks); err != nil {
		return stats, err
	}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM projects`).Scan(&stats.Projects); err != nil {
		return stats, err
	}

	rows, err := r.pool.Query(ctx, `SELECT origin, COUNT(*) FROM project_tasks GROUP BY origin`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var origin string
		var count int
		if err := rows.Scan(&origin, &count); err != nil {
			return stats, err
		}
		stats.ByOrigin[origin] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = r.pool.Query(ctx, `SELECT status, COUNT(*) FROM project_tasks GROUP BY status`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.ByStatus[status] = count
	}
	return stats, rows.Err()
}

func listTasks(ctx context.Context, q querier, projectID string, filter model.TaskFilter) ([]model.ProjectTask, error) {
	rows, err := q.Query(ctx, `
		SELECT `+taskColumns+`
		FROM project_tasks
		WHERE project_id = $1
		  AND ($2::text IS NULL OR stage = $2)
		  AND ($3::bool IS NULL OR completed = $3)
		ORDER BY ord, created_at, id
	`, projectID, filter.Stage, filter.Completed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]model.ProjectTask, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row pgx.Row) (model.ProjectTask, error) {
	var t model.ProjectTask
	err := row.Scan(
		&t.ID, &t.ProjectID, &t.Origin, &t.SourceID, &t.Stage, &t.Text,
		&t.Completed, &t.Status, &t.Order, &t.CreatedAt, &t.UpdatedAt,
	)
	return t, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func (r *TaskRepo) mapError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "23505" {
			return ErrorConflict
		}
	}
	return err
}
