// internal/repo/task_test.go
package repo

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/planhub/checklist-api/internal/catalog"
	"github.com/planhub/checklist-api/internal/model"
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		t.Fatal(err)
	}

	// Очистка
	pool.Exec(context.Background(), "TRUNCATE project_tasks, projects CASCADE")

	return pool
}

func seedProject(t *testing.T, pool *pgxpool.Pool) string {
	var id string
	err := pool.QueryRow(context.Background(),
		"INSERT INTO projects (name) VALUES ('repo-test') RETURNING id").Scan(&id)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func createTemplateTask(t *testing.T, repo *TaskRepo, projectID, factor, stage string) model.ProjectTask {
	created, err := repo.CreateTask(context.Background(), model.ProjectTask{
		ProjectID: projectID,
		Origin:    model.OriginTemplate,
		SourceID:  &factor,
		Stage:     stage,
		Text:      "Seeded " + factor,
		Status:    model.StatusOpen,
	})
	if err != nil {
		t.Fatal(err)
	}
	return created
}

func TestTaskRepo_CreateTask(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	created, err := repo.CreateTask(context.Background(), model.ProjectTask{
		ProjectID: projectID,
		Origin:    model.OriginCustom,
		Stage:     "execution",
		Text:      "Call the vendor",
		Status:    model.StatusOpen,
	})
	if err != nil {
		t.Fatal(err)
	}

	if created.ID == "" {
		t.Error("expected non-empty ID")
	}
	if created.ProjectID != projectID {
		t.Errorf("expected projectID=%s, got %s", projectID, created.ProjectID)
	}
	if created.CreatedAt.IsZero() {
		t.Error("expected createdAt to be set")
	}
}

func TestTaskRepo_CreateTask_DuplicateTemplate(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	createTemplateTask(t, repo, projectID, "risk-register", "planning")

	factor := "risk-register"
	_, err := repo.CreateTask(context.Background(), model.ProjectTask{
		ProjectID: projectID,
		Origin:    model.OriginTemplate,
		SourceID:  &factor,
		Stage:     "planning",
		Text:      "Second copy",
		Status:    model.StatusOpen,
	})

	if !errors.Is(err, ErrorConflict) {
		t.Errorf("expected ErrorConflict, got %v", err)
	}
}

func TestTaskRepo_GetTask_ProjectScoped(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectA := seedProject(t, pool)
	projectB := seedProject(t, pool)

	task := createTemplateTask(t, repo, projectA, "risk-register", "planning")

	got, err := repo.GetTask(context.Background(), projectA, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != task.ID {
		t.Errorf("expected id=%s, got %s", task.ID, got.ID)
	}

	// Та же строка из чужого проекта невидима
	_, err = repo.GetTask(context.Background(), projectB, task.ID)
	if !errors.Is(err, ErrorNotFound) {
		t.Errorf("expected ErrorNotFound from foreign project, got %v", err)
	}
}

func TestTaskRepo_FindBySource(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	task := createTemplateTask(t, repo, projectID, "risk-register", "planning")

	got, err := repo.FindBySource(context.Background(), projectID, "risk-register", "planning")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != task.ID {
		t.Errorf("expected id=%s, got %s", task.ID, got.ID)
	}

	// Без стадии находится та же единственная строка
	got, err = repo.FindBySource(context.Background(), projectID, "risk-register", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != task.ID {
		t.Errorf("expected id=%s, got %s", task.ID, got.ID)
	}

	_, err = repo.FindBySource(context.Background(), projectID, "risk-register", "closure")
	if !errors.Is(err, ErrorNotFound) {
		t.Errorf("expected ErrorNotFound for wrong stage, got %v", err)
	}
}

func TestTaskRepo_FindByPrefix(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	tmpl := createTemplateTask(t, repo, projectID, "risk-register", "planning")

	// Кастомная строка с пересекающимся source_id
	src := "risk-reg-notes"
	_, err := repo.CreateTask(context.Background(), model.ProjectTask{
		ProjectID: projectID,
		Origin:    model.OriginCustom,
		SourceID:  &src,
		Stage:     "execution",
		Text:      "Notes",
		Status:    model.StatusOpen,
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := repo.FindByPrefix(context.Background(), projectID, "risk-reg")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != tmpl.ID {
		t.Errorf("expected template row to win the prefix tie, got %s", got.ID)
	}

	got, err = repo.FindByPrefix(context.Background(), projectID, tmpl.ID[:8])
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != tmpl.ID {
		t.Errorf("expected id prefix match %s, got %s", tmpl.ID, got.ID)
	}

	_, err = repo.FindByPrefix(context.Background(), projectID, "zzz")
	if !errors.Is(err, ErrorNotFound) {
		t.Errorf("expected ErrorNotFound, got %v", err)
	}
}

func TestTaskRepo_FindByPrefix_EscapesPattern(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	createTemplateTask(t, repo, projectID, "risk-register", "planning")

	// "%" в запросе - литерал, а не джокер
	_, err := repo.FindByPrefix(context.Background(), projectID, "%")
	if !errors.Is(err, ErrorNotFound) {
		t.Errorf("expected ErrorNotFound for literal %%, got %v", err)
	}
}

func TestTaskRepo_EnsureTemplateTasks_Idempotent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)
	templates := catalog.Default().All()

	first, err := repo.EnsureTemplateTasks(context.Background(), projectID, templates)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(templates) {
		t.Fatalf("expected %d tasks, got %d", len(templates), len(first))
	}

	second, err := repo.EnsureTemplateTasks(context.Background(), projectID, templates)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != len(first) {
		t.Fatalf("expected %d tasks after re-ensure, got %d", len(first), len(second))
	}

	for i := range first {
		if first[i].ID != second[i].ID {
			t.Errorf("task %d changed identity: %s -> %s", i, first[i].ID, second[i].ID)
		}
	}
}

func TestTaskRepo_UpsertTemplateTask(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	tmpl, ok := catalog.Default().Lookup("risk-register", "planning")
	if !ok {
		t.Fatal("template not in catalog")
	}

	done := true
	created, err := repo.UpsertTemplateTask(context.Background(), projectID, tmpl, model.TaskPatch{Completed: &done})
	if err != nil {
		t.Fatal(err)
	}
	if !created.Completed {
		t.Error("expected completed=true on first write")
	}
	if created.Origin != model.OriginTemplate {
		t.Errorf("expected origin=template, got %s", created.Origin)
	}

	// Повторная запись попадает в ту же строку и не сбрасывает completed
	text := "Reviewed risk register"
	updated, err := repo.UpsertTemplateTask(context.Background(), projectID, tmpl, model.TaskPatch{Text: &text})
	if err != nil {
		t.Fatal(err)
	}
	if updated.ID != created.ID {
		t.Errorf("expected same row %s, got %s", created.ID, updated.ID)
	}
	if updated.Text != text {
		t.Errorf("expected text=%q, got %q", text, updated.Text)
	}
	if !updated.Completed {
		t.Error("expected completed to survive the second write")
	}
}

func TestTaskRepo_UpdateTask_PartialPatch(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	task := createTemplateTask(t, repo, projectID, "risk-register", "planning")

	done := true
	updated, err := repo.UpdateTask(context.Background(), projectID, task.ID, model.TaskPatch{Completed: &done})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.Completed {
		t.Error("expected completed=true")
	}
	if updated.Text != task.Text {
		t.Errorf("text must not change: %q -> %q", task.Text, updated.Text)
	}
	if updated.SourceID == nil || *updated.SourceID != "risk-register" {
		t.Error("sourceId must not change")
	}
	if updated.UpdatedAt.Before(task.UpdatedAt) {
		t.Error("expected updatedAt to advance")
	}
}

func TestTaskRepo_UpdateTask_NotFound(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	_, err := repo.UpdateTask(context.Background(), projectID,
		"00000000-0000-0000-0000-000000000000", model.TaskPatch{})
	if !errors.Is(err, ErrorNotFound) {
		t.Errorf("expected ErrorNotFound, got %v", err)
	}
}

func TestTaskRepo_DeleteTask(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	task := createTemplateTask(t, repo, projectID, "risk-register", "planning")

	if err := repo.DeleteTask(context.Background(), projectID, task.ID); err != nil {
		t.Fatal(err)
	}

	_, err := repo.GetTask(context.Background(), projectID, task.ID)
	if !errors.Is(err, ErrorNotFound) {
		t.Errorf("expected row to be gone, got %v", err)
	}

	err = repo.DeleteTask(context.Background(), projectID, task.ID)
	if !errors.Is(err, ErrorNotFound) {
		t.Errorf("expected ErrorNotFound on second delete, got %v", err)
	}
}

func TestTaskRepo_TaskExistsOutsideProject(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectA := seedProject(t, pool)
	projectB := seedProject(t, pool)

	task := createTemplateTask(t, repo, projectA, "risk-register", "planning")

	foreign, err := repo.TaskExistsOutsideProject(context.Background(), projectB, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !foreign {
		t.Error("expected the row to exist outside projectB")
	}

	foreign, err = repo.TaskExistsOutsideProject(context.Background(), projectA, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if foreign {
		t.Error("own row must not count as foreign")
	}

	foreign, err = repo.TaskExistsOutsideProject(context.Background(), projectA,
		"00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if foreign {
		t.Error("absent row must not count as foreign")
	}
}

func TestTaskRepo_ListTasks_Filters(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	createTemplateTask(t, repo, projectID, "risk-register", "planning")
	done := createTemplateTask(t, repo, projectID, "scope-baseline", "planning")
	createTemplateTask(t, repo, projectID, "retrospective", "closure")

	completed := true
	if _, err := repo.UpdateTask(context.Background(), projectID, done.ID,
		model.TaskPatch{Completed: &completed}); err != nil {
		t.Fatal(err)
	}

	all, err := repo.ListTasks(context.Background(), projectID, model.TaskFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(all))
	}

	stage := "planning"
	planning, err := repo.ListTasks(context.Background(), projectID, model.TaskFilter{Stage: &stage})
	if err != nil {
		t.Fatal(err)
	}
	if len(planning) != 2 {
		t.Errorf("expected 2 planning tasks, got %d", len(planning))
	}

	onlyDone, err := repo.ListTasks(context.Background(), projectID, model.TaskFilter{Completed: &completed})
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyDone) != 1 {
		t.Fatalf("expected 1 completed task, got %d", len(onlyDone))
	}
	if onlyDone[0].ID != done.ID {
		t.Errorf("expected %s, got %s", done.ID, onlyDone[0].ID)
	}
}

func TestTaskRepo_ProjectExists(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	exists, err := repo.ProjectExists(context.Background(), projectID)
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("expected seeded project to exist")
	}

	exists, err = repo.ProjectExists(context.Background(), "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatal(err)
	}
	if exists {
		t.Error("expected absent project to not exist")
	}
}

func TestTaskRepo_GetStats(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	createTemplateTask(t, repo, projectID, "risk-register", "planning")
	_, err := repo.CreateTask(context.Background(), model.ProjectTask{
		ProjectID: projectID,
		Origin:    model.OriginCustom,
		Stage:     "execution",
		Text:      "Custom one",
		Status:    model.StatusDone,
	})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := repo.GetStats(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if stats.TotalTasks != 2 {
		t.Errorf("expected total_tasks=2, got %d", stats.TotalTasks)
	}
	if stats.ByOrigin["template"] != 1 || stats.ByOrigin["custom"] != 1 {
		t.Errorf("unexpected by_origin: %v", stats.ByOrigin)
	}
	if stats.ByStatus["open"] != 1 || stats.ByStatus["done"] != 1 {
		t.Errorf("unexpected by_status: %v", stats.ByStatus)
	}
}

func TestTaskRepo_FindDuplicateTemplateTasks(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	repo := NewTaskRepo(pool)
	projectID := seedProject(t, pool)

	createTemplateTask(t, repo, projectID, "risk-register", "planning")

	rows, err := repo.FindDuplicateTemplateTasks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Под частичным уникальным индексом дублей быть не должно
	if len(rows) != 0 {
		t.Errorf("expected no duplicate groups, got %v", rows)
	}
}
