package main

import (
	"net/http"
	"sync/atomic"
)

// handlerSwapper serves whichever handler was stored last. The HTTP mux is
// rebuilt and swapped in when a reload toggles the panel.
type handlerSwapper struct {
	current atomic.Pointer[http.Handler]
}

func newHandlerSwapper(h http.Handler) *handlerSwapper {
	s := &handlerSwapper{}
	s.Swap(h)
	return s
}

func (s *handlerSwapper) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	(*s.current.Load()).ServeHTTP(w, r)
}

// Swap replaces the underlying handler.
func (s *handlerSwapper) Swap(h http.Handler) {
	s.current.Store(&h)
}
