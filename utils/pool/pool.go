package pool

import (
	"sync"
)

// Pool is a basic work pool used by the parallel segment reader to fan
// per-segment read tasks across a bounded number of goroutines.
type Pool struct {
	workerQ chan struct{}
	f       func(input interface{})
	wg      sync.WaitGroup
}

// NewPool creates a new worker pool with a goroutine limit
// and a job function to execute on the incoming work items.
func NewPool(routines int, job func(input interface{})) *Pool {
	if routines < 1 {
		routines = 1
	}
	q := make(chan struct{}, routines)
	for i := 0; i < routines; i++ {
		q <- struct{}{}
	}
	return &Pool{
		workerQ: q,
		f:       job,
	}
}

// Work is a blocking call that starts the pool working on a work item
// channel. It returns when the channel is closed and all items have been
// dispatched; call Wait to block until in-flight jobs finish.
func (p *Pool) Work(c <-chan interface{}) {
	for v := range c {
		<-p.workerQ
		p.wg.Add(1)
		go func(input interface{}) {
			defer p.wg.Done()
			p.f(input)
			p.workerQ <- struct{}{}
		}(v)
	}
}

// Wait waits until the pool is finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}
