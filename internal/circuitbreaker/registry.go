package circuitbreaker

import (
	"sync"

	"github.com/aagii9912/smarthub-sub002/internal/logger"
)

// Well-known breaker names for the service's external dependencies.
const (
	ServiceLLM      = "llm"
	ServicePayment  = "payment"
	ServiceDatabase = "database"
)

// Registry holds the per-dependency breakers. It is constructed explicitly
// and injected where needed so tests can isolate and reset instances.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
	log      logger.Logger
}

// NewRegistry creates an empty registry. Breakers for names not registered
// up front are created on demand with the given default config.
func NewRegistry(defaults Config, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
		log:      log,
	}
}

// Register adds a breaker for name with a specific configuration,
// replacing any existing one. State transitions are logged.
func (r *Registry) Register(name string, cfg Config) *Breaker {
	userCallback := cfg.OnStateChange
	cfg.OnStateChange = func(from, to State) {
		r.log.Warn("circuit state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
		if userCallback != nil {
			userCallback(from, to)
		}
	}

	b := New(name, cfg)

	r.mu.Lock()
	r.breakers[name] = b
	r.mu.Unlock()

	return b
}

// Get returns the breaker for name, creating one with default config if it
// does not exist yet.
func (r *Registry) Get(name string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return b
	}
	return r.Register(name, r.defaults)
}

// ResetAll forces every breaker closed.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

// Stats returns a snapshot of every registered breaker.
func (r *Registry) Stats() []Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Stats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.GetStats())
	}
	return out
}
