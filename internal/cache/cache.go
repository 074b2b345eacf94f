package cache

import (
	"sync"
	"time"

	"github.com/planhub/checklist-api/internal/model"
)

type key struct {
	projectID  string
	identifier string
}

type entry struct {
	task      model.ProjectTask
	expiresAt time.Time
}

// Cache - короткоживущая мемоизация identifier -> task в рамках проекта.
// Только оптимизация: корректность обязана сохраняться и с отключенным кэшем.
type Cache struct {
	mu      sync.RWMutex
	entries map[key]entry
	ttl     time.Duration
}

// New создает кэш с заданным TTL. ttl <= 0 полностью отключает кэш.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[key]entry),
		ttl:     ttl,
	}
}

func (c *Cache) Enabled() bool {
	return c != nil && c.ttl > 0
}

func (c *Cache) Get(projectID, identifier string) (model.ProjectTask, bool) {
	if !c.Enabled() {
		return model.ProjectTask{}, false
	}

	k := key{projectID: projectID, identifier: identifier}
	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()
	if !ok {
		return model.ProjectTask{}, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(k)
		return model.ProjectTask{}, false
	}
	// Запись с чужим projectId - порча кэша: выселить и не отдавать
	if e.task.ProjectID != projectID {
		c.remove(k)
		return model.ProjectTask{}, false
	}
	return e.task, true
}

func (c *Cache) Put(projectID, identifier string, t model.ProjectTask) {
	if !c.Enabled() || identifier == "" {
		return
	}
	if t.ProjectID != projectID {
		return
	}

	c.mu.Lock()
	c.entries[key{projectID: projectID, identifier: identifier}] = entry{
		task:      t,
		expiresAt: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

// Invalidate убирает все записи проекта, указывающие на задачу taskID.
func (c *Cache) Invalidate(projectID, taskID string) {
	if !c.Enabled() {
		return
	}

	c.mu.Lock()
	for k, e := range c.entries {
		if k.projectID == projectID && e.task.ID == taskID {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Sweep выселяет просроченные записи, возвращает их количество.
func (c *Cache) Sweep() int {
	if !c.Enabled() {
		return 0
	}

	now := time.Now()
	removed := 0
	c.mu.Lock()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.mu.Unlock()
	return removed
}

func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache) remove(k key) {
	c.mu.Lock()
	delete(c.entries, k)
	c.mu.Unlock()
}
