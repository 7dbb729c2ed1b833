// internal/lokilog/manager.go

package lokilog

import (
	"sort"
	"sync"

	"github.com/orgoj/lokilog/internal/logger"
	"github.com/orgoj/lokilog/internal/loki"
)

// Manager hands out one Logger per name. All loggers share the settings,
// the sink and a single push client.
type Manager struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
	env     string
	sink    logger.Sink
	client  *loki.Client
}

// NewManager validates the settings once. Getting a logger afterwards cannot
// fail.
func NewManager(s Settings, opts ...Option) (*Manager, error) {
	o := buildOptions(opts)
	client, err := newClient(s, o)
	if err != nil {
		return nil, err
	}
	return &Manager{
		loggers: make(map[string]*Logger),
		env:     s.Environment,
		sink:    o.sink,
		client:  client,
	}, nil
}

// GetLogger returns the logger for name, creating it on first use.
func (m *Manager) GetLogger(name string) *Logger {
	m.mu.RLock()
	lgr, ok := m.loggers[name]
	m.mu.RUnlock()
	if ok {
		return lgr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if lgr, ok := m.loggers[name]; ok {
		return lgr
	}
	lgr = newWithClient(name, m.env, m.sink, m.client)
	m.loggers[name] = lgr
	return lgr
}

// LoggerNames returns the names of all loggers created so far, sorted.
func (m *Manager) LoggerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.loggers))
	for name := range m.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PushURL returns the endpoint all managed loggers push to.
func (m *Manager) PushURL() string {
	return m.client.PushURL()
}
