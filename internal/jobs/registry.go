package jobs

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"jobshell/internal/engine"
	logx "jobshell/pkg/logx"
)

// Constructor builds a job instance for one firing of a job detail.
type Constructor func(detail *engine.JobDetail, log logx.Logger) (engine.Job, error)

// Registry maps job type names to constructors.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Constructor
	log   logx.Logger
}

func NewRegistry(log logx.Logger) *Registry {
	return &Registry{types: make(map[string]Constructor), log: log}
}

// Register binds a type name to a constructor. Re-registering a name
// replaces the previous constructor.
func (r *Registry) Register(typeName string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[typeName] = c
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// NewJob implements engine.JobFactory. An unregistered type is a hard error:
// the shell reports it and the firing never reaches the job phase.
func (r *Registry) NewJob(b *engine.FiredBundle, _ engine.Scheduler) (engine.Job, error) {
	r.mu.RLock()
	c, ok := r.types[b.JobDetail.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown job type %q for job %q", b.JobDetail.Type, b.JobDetail.Name)
	}
	return c(b.JobDetail, r.log.With(logx.String("job", b.JobDetail.Name)))
}

// WithBuiltins registers the jobs that ship with the daemon.
func (r *Registry) WithBuiltins() *Registry {
	r.Register("log", NewLogJob)
	r.Register("speedtest", NewSpeedtestJob)
	return r
}

// Data accessors. Job data maps come from config files, so values arrive as
// strings, numbers or bools depending on the source format.

func dataString(d map[string]any, key, def string) string {
	if v, ok := d[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func dataInt(d map[string]any, key string, def int) int {
	switch v := d[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func dataDuration(d map[string]any, key string, def time.Duration) time.Duration {
	if s := dataString(d, key, ""); s != "" {
		if dur, err := time.ParseDuration(s); err == nil {
			return dur
		}
	}
	if n := dataInt(d, key, 0); n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
