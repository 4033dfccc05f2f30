package live

import (
	"context"
	"log/slog"
	"sync"

	"github.com/citypulse/citypulse/internal/domain"
)

const defaultPageSize = 20

// Manager tracks one live View per city scope and routes change-feed events
// to them. It implements changefeed.Handler.
type Manager struct {
	service  *domain.PulseService
	ambient  domain.AmbientSource
	logger   *slog.Logger
	pageSize int

	mu    sync.Mutex
	views map[string]*View
}

// NewManager creates an empty view manager.
func NewManager(service *domain.PulseService, ambient domain.AmbientSource, logger *slog.Logger) *Manager {
	return &Manager{
		service:  service,
		ambient:  ambient,
		logger:   logger,
		pageSize: defaultPageSize,
		views:    make(map[string]*View),
	}
}

// Acquire returns the live view for a city, creating and loading it on first
// use.
func (m *Manager) Acquire(ctx context.Context, city string) (*View, error) {
	m.mu.Lock()
	v, ok := m.views[city]
	if !ok {
		viewCtx, cancel := context.WithCancel(context.Background())
		v = &View{
			city:       city,
			service:    m.service,
			ambient:    m.ambient,
			logger:     m.logger,
			pageSize:   m.pageSize,
			ctx:        viewCtx,
			cancel:     cancel,
			reconciler: domain.NewFeedReconciler(),
		}
		m.views[city] = v
	}
	m.mu.Unlock()

	if !ok {
		if err := v.Refresh(ctx); err != nil {
			m.Release(city)
			return nil, err
		}
	}
	return v, nil
}

// Release tears down a city's view: its context is cancelled, its timer
// stopped, and any in-flight fetch for it becomes unobservable.
func (m *Manager) Release(city string) {
	m.mu.Lock()
	v, ok := m.views[city]
	delete(m.views, city)
	m.mu.Unlock()

	if ok {
		v.close()
		m.logger.Info("released city view", "city", city)
	}
}

// ApplyInsert routes a push-delivered pulse to its city's view, if one is
// live.
func (m *Manager) ApplyInsert(p domain.Pulse) {
	if v := m.view(p.City); v != nil {
		v.ApplyInsert(p)
	}
}

// ApplyDelete routes a push-delivered delete to its city's view.
func (m *Manager) ApplyDelete(city string, id int64) {
	if v := m.view(city); v != nil {
		v.ApplyDelete(id)
	}
}

// RecomputeAll re-derives every live view. The periodic poll lands here and
// funnels through the same recompute path the change feed and timers use.
func (m *Manager) RecomputeAll() {
	m.mu.Lock()
	views := make([]*View, 0, len(m.views))
	for _, v := range m.views {
		views = append(views, v)
	}
	m.mu.Unlock()

	for _, v := range views {
		v.Recompute()
	}
}

func (m *Manager) view(city string) *View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.views[city]
}
