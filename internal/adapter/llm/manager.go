package llm

import (
	"context"
	"fmt"
	"sync"

	"quiz-forge/internal/domain"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
)

// Manager owns the active model selection.
//
// Switch replaces the active client under a write lock, so a switch completes before any
// caller observes it. Bind hands out a job-local Generator; jobs never read the active
// client again after binding.
type Manager struct {
	mu           sync.RWMutex
	factory      ClientFactory
	catalog      map[string]domain.ModelSpec
	order        []string
	defaultKey   string
	temperature  float64
	active       domain.ModelSpec
	activeClient llms.Model
	logger       *zap.Logger
}

// NewManager builds the catalog and loads the default model.
func NewManager(factory ClientFactory, catalog []domain.ModelSpec, defaultKey string, temperature float64, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		factory:     factory,
		catalog:     make(map[string]domain.ModelSpec, len(catalog)),
		defaultKey:  defaultKey,
		temperature: temperature,
		logger:      logger,
	}
	for _, spec := range catalog {
		m.catalog[spec.Key] = spec
		m.order = append(m.order, spec.Key)
	}
	if _, ok := m.catalog[defaultKey]; !ok {
		return nil, fmt.Errorf("default model key %q is not in the catalog", defaultKey)
	}
	if _, err := m.Switch(context.Background(), defaultKey); err != nil {
		return nil, err
	}
	return m, nil
}

// Switch makes key the active model. A failed non-default key falls back once to the default
// key; a failed default key is MODEL_UNAVAILABLE and leaves the previous model active.
func (m *Manager) Switch(ctx context.Context, key string) (domain.ModelSpec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	client, spec, err := m.load(key)
	if err != nil {
		return m.active, err
	}

	previous := m.active
	m.active = spec
	m.activeClient = client
	m.logger.Info("Active model switched",
		zap.String("from", previous.ID),
		zap.String("to", spec.ID),
		zap.Int("context_window", spec.ContextWindow))
	return spec, nil
}

// Bind returns a generator for key without touching the active selection. An empty key binds
// the active model.
func (m *Manager) Bind(ctx context.Context, key string) (domain.TextGenerator, domain.ModelSpec, error) {
	m.mu.RLock()
	active, activeClient := m.active, m.activeClient
	m.mu.RUnlock()

	if key == "" || key == active.Key {
		if activeClient == nil {
			return nil, domain.ModelSpec{}, domain.NewModelUnavailableError(active.Key, fmt.Errorf("no model loaded"))
		}
		return NewGenerator(activeClient, active, m.temperature), active, nil
	}

	client, spec, err := m.load(key)
	if err != nil {
		return nil, domain.ModelSpec{}, err
	}
	return NewGenerator(client, spec, m.temperature), spec, nil
}

// Active returns the currently selected model.
func (m *Manager) Active() domain.ModelSpec {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active
}

// Catalog lists the selectable models in catalog order.
func (m *Manager) Catalog() []domain.ModelSpec {
	specs := make([]domain.ModelSpec, 0, len(m.order))
	for _, key := range m.order {
		specs = append(specs, m.catalog[key])
	}
	return specs
}

func (m *Manager) load(key string) (llms.Model, domain.ModelSpec, error) {
	spec, ok := m.catalog[key]
	if !ok {
		m.logger.Warn("Unknown model key, using default", zap.String("key", key), zap.String("default", m.defaultKey))
		spec = m.catalog[m.defaultKey]
	}

	client, err := m.factory(spec)
	if err == nil {
		return client, spec, nil
	}
	if spec.Key == m.defaultKey {
		m.logger.Error("Failed to load default model", zap.String("model", spec.ID), zap.Error(err))
		return nil, domain.ModelSpec{}, domain.NewModelUnavailableError(spec.Key, err)
	}

	m.logger.Warn("Failed to load model, falling back to default",
		zap.String("model", spec.ID),
		zap.String("default", m.defaultKey),
		zap.Error(err))
	fallback := m.catalog[m.defaultKey]
	client, err = m.factory(fallback)
	if err != nil {
		m.logger.Error("Failed to load default model", zap.String("model", fallback.ID), zap.Error(err))
		return nil, domain.ModelSpec{}, domain.NewModelUnavailableError(fallback.Key, err)
	}
	return client, fallback, nil
}

var _ domain.ModelProvider = (*Manager)(nil)
