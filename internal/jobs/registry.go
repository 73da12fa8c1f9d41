package jobs

import (
	"fmt"
	"sync"

	"github.com/ternarybob/fieldsync/internal/interfaces"
	"github.com/ternarybob/fieldsync/internal/models"
)

// Registry maps schedule types to executors. Schedules persist plain
// descriptors, never closures, so the mapping is re-established here on
// every process start.
type Registry struct {
	mu        sync.RWMutex
	executors map[models.ScheduleType]interfaces.JobExecutor
}

var _ interfaces.JobResolver = (*Registry)(nil)

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[models.ScheduleType]interfaces.JobExecutor),
	}
}

// Register binds an executor to a schedule type, replacing any previous
// binding.
func (r *Registry) Register(jobType models.ScheduleType, executor interfaces.JobExecutor) {
	r.mu.Lock()
	r.executors[jobType] = executor
	r.mu.Unlock()
}

// Resolve returns the executor for jobType.
func (r *Registry) Resolve(jobType models.ScheduleType) (interfaces.JobExecutor, error) {
	r.mu.RLock()
	executor, ok := r.executors[jobType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no executor registered for job type %s", jobType)
	}
	return executor, nil
}
