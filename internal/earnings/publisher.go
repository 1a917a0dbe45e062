package earnings

import "sync"

// publisher notifies registered observers synchronously, in registration
// order, on the calling goroutine. Observers must not block.
type publisher struct {
	mu        sync.Mutex
	nextID    int
	observers []observer
}

type observer struct {
	id int
	fn func()
}

// subscribe registers an observer and returns an idempotent unsubscribe
// function.
func (p *publisher) subscribe(fn func()) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.observers = append(p.observers, observer{id: id, fn: fn})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, o := range p.observers {
			if o.id == id {
				p.observers = append(p.observers[:i], p.observers[i+1:]...)
				return
			}
		}
	}
}

func (p *publisher) notify() {
	p.mu.Lock()
	observers := make([]observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	for _, o := range observers {
		o.fn()
	}
}
