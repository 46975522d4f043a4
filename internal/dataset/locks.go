package dataset

import "sync"

// ProjectLocks serializes mutating operations per project, so a move cannot
// race a delete of the same image or of its target label.
type ProjectLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewProjectLocks() *ProjectLocks {
	return &ProjectLocks{locks: make(map[string]*sync.Mutex)}
}

func (p *ProjectLocks) get(project string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.locks[project]
	if !ok {
		m = &sync.Mutex{}
		p.locks[project] = m
	}
	return m
}

func (p *ProjectLocks) Lock(project string) {
	p.get(project).Lock()
}

func (p *ProjectLocks) Unlock(project string) {
	p.get(project).Unlock()
}
