package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/planhub/checklist-api/internal/cache"
	"github.com/planhub/checklist-api/internal/repo"
)

// Janitor - фоновое обслуживание: выметает просроченные записи кэша резолюции
// и периодически сканирует хранилище на дубли шаблонных задач.
type Janitor struct {
	repo     repo.TaskRepository
	cache    *cache.Cache
	logger   *zap.Logger
	interval time.Duration
	wg       sync.WaitGroup
	stop     chan struct{}
}

func NewJanitor(r repo.TaskRepository, c *cache.Cache, logger *zap.Logger, interval time.Duration) *Janitor {
	return &Janitor{
		repo:     r,
		cache:    c,
		logger:   logger,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

func (j *Janitor) Start(ctx context.Context) {
	j.logger.Info("Starting maintenance janitor", zap.Duration("interval", j.interval))

	j.wg.Add(1)
	go j.run(ctx)
}

func (j *Janitor) Stop() {
	j.logger.Info("Stopping maintenance janitor...")
	close(j.stop)
	j.wg.Wait()
	j.logger.Info("Maintenance janitor stopped")
}

func (j *Janitor) run(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep(ctx)
		}
	}
}

func (j *Janitor) sweep(ctx context.Context) {
	if evicted := j.cache.Sweep(); evicted > 0 {
		j.logger.Debug("resolution cache swept", zap.Int("evicted", evicted))
	}

	// Дубли не чинятся автоматически - только подсвечиваются для оператора.
	dups, err := j.repo.FindDuplicateTemplateTasks(ctx)
	if err != nil {
		j.logger.Error("duplicate scan failed", zap.Error(err))
		return
	}
	for _, d := range dups {
		j.logger.Warn("duplicate template tasks detected",
			zap.String("project_id", d.ProjectID),
			zap.String("source_id", d.SourceID),
			zap.String("stage", d.Stage),
			zap.Int("count", d.Count),
		)
	}
}
