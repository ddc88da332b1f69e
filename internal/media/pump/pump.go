// Package pump delivers element signals on a dedicated goroutine, so a
// subscriber is never called from inside the command that caused it.
package pump

import (
	"slices"
	"sync"

	"momo-player/internal/player"
)

// queued is a signal and the subscribers that existed when it was emitted.
// Ids at or above bound subscribed later and never see it.
type queued struct {
	ev    player.Event
	bound int
}

type Pump struct {
	mu     sync.Mutex
	queue  []queued
	nextID int
	subs   map[int]func(player.Event)
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// New starts the delivery goroutine. Stop ends it.
func New() *Pump {
	p := &Pump{
		subs: make(map[int]func(player.Event)),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

// Emit queues ev for the current subscribers and returns immediately.
func (p *Pump) Emit(ev player.Event) {
	p.mu.Lock()
	p.queue = append(p.queue, queued{ev: ev, bound: p.nextID})
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pump) Subscribe(fn func(player.Event)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Stop discards queued signals and waits for delivery to end. It must not
// be called from a subscriber.
func (p *Pump) Stop() {
	select {
	case <-p.done:
	default:
		close(p.done)
	}
	p.wg.Wait()
}

func (p *Pump) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}
		for p.deliverOne() {
		}
	}
}

func (p *Pump) deliverOne() bool {
	p.mu.Lock()
	if len(p.queue) == 0 {
		p.mu.Unlock()
		return false
	}
	item := p.queue[0]
	p.queue = p.queue[1:]
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		if id < item.bound {
			ids = append(ids, id)
		}
	}
	p.mu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		// An earlier subscriber may have removed this one.
		p.mu.Lock()
		fn, ok := p.subs[id]
		p.mu.Unlock()
		if ok {
			fn(item.ev)
		}
	}
	return true
}
