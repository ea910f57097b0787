package analytics

import (
	"sort"
	"sync"

	"VolCast/internal/domain/errs"
	domsvc "VolCast/internal/domain/service"
	"VolCast/pkg/logger"
)

const (
	BackendGBT    = "gbt"
	BackendForest = "forest"
)

type gbtFactory struct{ p GBTParams }

func (f gbtFactory) New() domsvc.Regressor { return NewGradientBoosting(f.p) }
func (f gbtFactory) Name() string          { return BackendGBT }

type forestFactory struct{ p ForestParams }

func (f forestFactory) New() domsvc.Regressor { return NewRandomForest(f.p) }
func (f forestFactory) Name() string          { return BackendForest }

// Registry holds the regression backends compiled into the binary. The
// forest backend is always present and serves as the fallback.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]domsvc.RegressorFactory
}

func NewRegistry(gbt GBTParams, forest ForestParams) *Registry {
	r := &Registry{backends: make(map[string]domsvc.RegressorFactory)}
	r.Register(gbtFactory{p: gbt})
	r.Register(forestFactory{p: forest})
	return r
}

func (r *Registry) Register(f domsvc.RegressorFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[f.Name()] = f
}

func (r *Registry) Unregister(name string) {
	if name == BackendForest {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, name)
}

// Names lists the available backends.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for n := range r.backends {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Select returns the requested backend, or the forest together with a
// BackendUnavailableWarning when it is not registered.
func (r *Registry) Select(name string) (domsvc.RegressorFactory, *errs.BackendUnavailableWarning) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.backends[name]; ok {
		return f, nil
	}
	return r.backends[BackendForest], &errs.BackendUnavailableWarning{Requested: name, Fallback: BackendForest}
}

// SelectBackend picks the backend once at startup and logs a fallback.
func SelectBackend(r *Registry, name string, log *logger.Logger) domsvc.RegressorFactory {
	f, warn := r.Select(name)
	if warn != nil {
		log.Warn("regression backend unavailable, falling back",
			logger.String("requested", warn.Requested),
			logger.String("fallback", warn.Fallback),
			logger.Strings("available", r.Names()))
	} else {
		log.Info("regression backend selected", logger.String("backend", f.Name()))
	}
	return f
}
