package queue

import (
	"sort"

	"github.com/hibiken/asynq"
)

// HandlersRegistry routes task types to handlers on one asynq.ServeMux.
type HandlersRegistry struct {
	mux   *asynq.ServeMux
	types map[string]struct{}
}

func NewHandlersRegistry() *HandlersRegistry {
	return &HandlersRegistry{
		mux:   asynq.NewServeMux(),
		types: make(map[string]struct{}),
	}
}

func (r *HandlersRegistry) Register(taskType string, handler asynq.Handler) {
	r.mux.Handle(taskType, handler)
	r.types[taskType] = struct{}{}
}

// Use installs middleware around every registered handler.
func (r *HandlersRegistry) Use(mws ...asynq.MiddlewareFunc) {
	r.mux.Use(mws...)
}

// Types lists the registered task types in sorted order.
func (r *HandlersRegistry) Types() []string {
	out := make([]string, 0, len(r.types))
	for t := range r.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (r *HandlersRegistry) Mux() *asynq.ServeMux {
	return r.mux
}
