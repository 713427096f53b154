package effs

// EntryKind discriminates the payload a Node's Entry carries.
type EntryKind int

const (
	// KindDir marks a directory listing entry.
	KindDir EntryKind = iota
	// KindFilter marks a reusable full-output producer.
	KindFilter
	// KindPreciseFilter marks a reusable ranged producer.
	KindPreciseFilter
	// KindFiltrated marks a pre-materialized byte blob.
	KindFiltrated
)

// Entry is the tagged union of what a Node can hold: a directory listing,
// a Filter, a PreciseFilter, or a pre-materialized byte blob. Exactly one
// of the payload fields is meaningful, selected by Kind.
type Entry struct {
	Kind EntryKind

	// Dir holds the child-name -> child-inode mapping when
	// Kind == KindDir. The map itself is unordered; Nodes.Children
	// sorts its names for listing. Always non-nil for a KindDir entry;
	// new Dir entries are created empty.
	Dir map[string]uint64

	Filter        *Filter
	PreciseFilter *PreciseFilter
	Filtrated     []byte
}

// NewDirEntry returns an empty directory Entry.
func NewDirEntry() Entry {
	return Entry{Kind: KindDir, Dir: make(map[string]uint64)}
}

// NewFilterEntry wraps a Filter as an Entry.
func NewFilterEntry(f *Filter) Entry {
	return Entry{Kind: KindFilter, Filter: f}
}

// NewPreciseFilterEntry wraps a PreciseFilter as an Entry.
func NewPreciseFilterEntry(f *PreciseFilter) Entry {
	return Entry{Kind: KindPreciseFilter, PreciseFilter: f}
}

// NewFiltratedEntry wraps a pre-materialized byte blob as an Entry.
func NewFiltratedEntry(data []byte) Entry {
	return Entry{Kind: KindFiltrated, Filtrated: data}
}

// IsDir reports whether the entry is a directory listing.
func (e Entry) IsDir() bool { return e.Kind == KindDir }
