package rate

import (
	"sync"
	"time"
)

// Throttle deja pasar a lo sumo un evento por key cada Delay.
// Se usa para acotar los refresh forzados por kid desconocido.
type Throttle struct {
	delay time.Duration
	now   func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewThrottle(delay time.Duration, now func() time.Time) *Throttle {
	if now == nil {
		now = time.Now
	}
	return &Throttle{delay: delay, now: now, last: make(map[string]time.Time)}
}

// Allow registra el intento si pasó al menos delay desde el anterior.
func (t *Throttle) Allow(key string) bool {
	now := t.now()
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.delay {
		return false
	}
	t.last[key] = now
	return true
}

// Last devuelve el último intento permitido para key.
func (t *Throttle) Last(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.last[key]
	return v, ok
}
