package service

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const (
	ticketIDMinWidth       = 4
	ticketIDMaxWidth       = 12
	ticketIDAttemptsPerLen = 8
)

// IDAllocator hands out short zero-padded numeric ticket ids that do not
// collide with existing ones. Width grows when a width keeps colliding.
type IDAllocator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewIDAllocator uses src for randomness; nil seeds from the clock.
func NewIDAllocator(src rand.Source) *IDAllocator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &IDAllocator{rnd: rand.New(src)}
}

// Next returns an id not present in taken.
func (a *IDAllocator) Next(taken map[string]struct{}) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	limit := int64(1)
	for i := 0; i < ticketIDMinWidth; i++ {
		limit *= 10
	}
	for width := ticketIDMinWidth; width <= ticketIDMaxWidth; width++ {
		for attempt := 0; attempt < ticketIDAttemptsPerLen; attempt++ {
			id := fmt.Sprintf("%0*d", width, a.rnd.Int63n(limit))
			if _, exists := taken[id]; !exists {
				return id, nil
			}
		}
		limit *= 10
	}
	return "", fmt.Errorf("ticket id space exhausted")
}
