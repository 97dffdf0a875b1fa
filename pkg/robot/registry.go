package robot

import (
	"fmt"
	"sort"
	"sync"
)

// Registry lazily creates and caches one Actuator per physical id.
type Registry struct {
	driver Driver

	mu        sync.Mutex
	actuators map[ID]*Actuator
}

// NewRegistry creates a registry whose actuators talk through driver.
func NewRegistry(driver Driver) *Registry {
	return &Registry{
		driver:    driver,
		actuators: make(map[ID]*Actuator),
	}
}

// Actuator returns the handle for id, creating it on first use.
func (r *Registry) Actuator(id ID, role Role) (*Actuator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.actuators[id]; ok {
		if a.role != role {
			return nil, fmt.Errorf("actuator %d as %s: %w (registered as %s)", id, role, ErrRoleMismatch, a.role)
		}
		return a, nil
	}

	a := &Actuator{id: id, role: role, driver: r.driver}
	r.actuators[id] = a
	return a, nil
}

// Actuators returns the registered handles ordered by role, then id.
func (r *Registry) Actuators() []*Actuator {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]*Actuator, 0, len(r.actuators))
	for _, a := range r.actuators {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].role != list[j].role {
			return list[i].role < list[j].role
		}
		return list[i].id < list[j].id
	})
	return list
}

// Pair returns the leader and follower handles described by cfg.
func (r *Registry) Pair(cfg *Config) (leader, follower *Actuator, err error) {
	leader, err = r.Actuator(cfg.Leader.ID, Leader)
	if err != nil {
		return nil, nil, err
	}
	follower, err = r.Actuator(cfg.Follower.ID, Follower)
	if err != nil {
		return nil, nil, err
	}
	return leader, follower, nil
}
