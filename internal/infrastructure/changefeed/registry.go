package changefeed

import "sync"

// handlerRegistry keeps the handlers of each table
type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{handlers: make(map[string][]Handler)}
}

func (r *handlerRegistry) register(table string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[table] = append(r.handlers[table], handler)
}

func (r *handlerRegistry) get(table string) []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Handler(nil), r.handlers[table]...)
}
