package effs

import "context"

// Filtrate is a single-shot asynchronous producer of a byte buffer or a
// failure. It is created already running: the computation is kicked off
// in its own goroutine at construction time and Await drives the caller
// to its (eventually cached) result.
//
// A Filtrate must be safe to Await from multiple goroutines and must be
// safe to abandon mid-flight: the producing goroutine always finishes,
// stores its result and closes an internal done channel, whether or not
// anyone is still waiting.
type Filtrate struct {
	done chan struct{}
	data []byte
	err  error
}

// NewFiltrate wraps an arbitrary byte-producing computation, starting it
// immediately in its own goroutine.
func NewFiltrate(produce func() ([]byte, error)) *Filtrate {
	f := &Filtrate{done: make(chan struct{})}
	go func() {
		f.data, f.err = produce()
		close(f.done)
	}()
	return f
}

// CompletedFiltrate returns a Filtrate that is already resolved, for
// producers that have no real asynchrony to offer (e.g. Filtrated bytes).
func CompletedFiltrate(data []byte, err error) *Filtrate {
	f := &Filtrate{done: make(chan struct{}), data: data, err: err}
	close(f.done)
	return f
}

// Await blocks until the Filtrate resolves or ctx is canceled, whichever
// comes first. Calling Await more than once, including concurrently, is
// safe and returns the same result each time.
func (f *Filtrate) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-f.done:
		return f.data, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
