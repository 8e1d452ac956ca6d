package local

import (
	"sync"
	"time"
)

// saver coalesces rapid successive writes for a key into one sink call.
// Each schedule replaces the pending payload and resets the key's timer;
// the sink receives only the latest payload when the timer fires.
type saver struct {
	mu      sync.Mutex
	delay   time.Duration
	sink    func(key string, data []byte)
	pending map[string][]byte
	timers  map[string]*time.Timer
}

func newSaver(delay time.Duration, sink func(key string, data []byte)) *saver {
	return &saver{
		delay:   delay,
		sink:    sink,
		pending: make(map[string][]byte),
		timers:  make(map[string]*time.Timer),
	}
}

// schedule records data as the latest payload for key and (re)arms the
// debounce timer.
func (s *saver) schedule(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[key] = data
	if t, ok := s.timers[key]; ok {
		t.Stop()
	}
	s.timers[key] = time.AfterFunc(s.delay, func() { s.fire(key) })
}

// fire delivers the pending payload for key, if any.
func (s *saver) fire(key string) {
	s.mu.Lock()
	data, ok := s.pending[key]
	delete(s.pending, key)
	delete(s.timers, key)
	s.mu.Unlock()

	if ok {
		s.sink(key, data)
	}
}

// flush delivers all pending payloads immediately. Used on shutdown.
func (s *saver) flush() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.pending))
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	for key := range s.pending {
		keys = append(keys, key)
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.fire(key)
	}
}
