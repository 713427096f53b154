package effs

// Filter is a reusable factory producing a fresh Filtrate on every call,
// yielding the entire logical output as one buffer. The underlying
// function must be safe to call concurrently and reentrantly from any
// goroutine; it carries whatever capture-state it needs.
type Filter struct {
	produce func() ([]byte, error)
}

// NewFilter wraps a nullary byte-producing function as a Filter.
func NewFilter(produce func() ([]byte, error)) *Filter {
	return &Filter{produce: produce}
}

// Filtrate invokes the factory and returns a fresh Filtrate for it.
func (f *Filter) Filtrate() *Filtrate {
	return NewFiltrate(f.produce)
}

// PreciseFilter is a reusable factory that, given an offset and a size,
// produces exactly the requested range as a Filtrate without needing to
// materialize the whole logical output. Intended for large outputs.
type PreciseFilter struct {
	produce func(offset, size uint64) ([]byte, error)
}

// NewPreciseFilter wraps a ranged byte-producing function as a
// PreciseFilter.
func NewPreciseFilter(produce func(offset, size uint64) ([]byte, error)) *PreciseFilter {
	return &PreciseFilter{produce: produce}
}

// Filtrate invokes the factory for the given range and returns a fresh
// Filtrate for it.
func (f *PreciseFilter) Filtrate(offset, size uint64) *Filtrate {
	return NewFiltrate(func() ([]byte, error) {
		return f.produce(offset, size)
	})
}
