package sse

import (
	"context"
	"sync"

	"ms-booking/internal/models"
)

const subscriberBuffer = 10

type subscriber chan models.SlotsUpdate

// SlotsEventEmitter fans remaining-slot updates out to SSE subscribers per event.
type SlotsEventEmitter struct {
	mu   sync.RWMutex
	subs map[string]map[subscriber]struct{}
}

func NewSlotsEventEmitter() *SlotsEventEmitter {
	return &SlotsEventEmitter{subs: make(map[string]map[subscriber]struct{})}
}

// SubscribeToEvent registers a client for the event's slot updates. The channel is
// closed once ctx is done.
func (e *SlotsEventEmitter) SubscribeToEvent(ctx context.Context, eventID string) <-chan models.SlotsUpdate {
	sub := make(subscriber, subscriberBuffer)

	e.mu.Lock()
	set, ok := e.subs[eventID]
	if !ok {
		set = make(map[subscriber]struct{})
		e.subs[eventID] = set
	}
	set[sub] = struct{}{}
	e.mu.Unlock()

	go func() {
		<-ctx.Done()
		e.unsubscribe(eventID, sub)
	}()

	return sub
}

// EmitSlotsUpdate broadcasts without blocking. A subscriber whose buffer is full loses
// its oldest pending update, so it always ends up with the latest count.
func (e *SlotsEventEmitter) EmitSlotsUpdate(update models.SlotsUpdate) {
	// read lock held while sending: unsubscribe cannot close a channel mid-send
	e.mu.RLock()
	defer e.mu.RUnlock()

	for sub := range e.subs[update.EventID] {
		for {
			select {
			case sub <- update:
			default:
				select {
				case <-sub:
				default:
				}
				continue
			}
			break
		}
	}
}

func (e *SlotsEventEmitter) unsubscribe(eventID string, sub subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()

	set := e.subs[eventID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub)
	if len(set) == 0 {
		delete(e.subs, eventID)
	}
}

// GetEventClientCount returns the number of live subscribers for an event.
func (e *SlotsEventEmitter) GetEventClientCount(eventID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subs[eventID])
}
