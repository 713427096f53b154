// Package effs implements a read-only, in-memory synthetic filesystem
// whose leaves are lazily-computed filters. A process-wide Effs owns the
// node arena and the ordered list of pluggable sources that populate it,
// and exposes the kernel-style protocol adapter operations (Lookup,
// Getattr, Readdirplus, Open, Read) that a transport binding translates
// real callbacks into.
package effs

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// EntryTTL is the duration the kernel is told it may cache a lookup or
// attribute reply before revalidating.
const EntryTTL = 1 * time.Second

// MaxWrite is the maximum payload size reported at Init.
const MaxWrite uint32 = 1024

// Option configures an Effs at construction time.
type Option func(*Effs)

// WithLogger attaches a structured logger. Library code is silent by
// default (a discard logger) so embedding effs in another program never
// produces unsolicited output.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Effs) { e.log = log }
}

// WithOwner sets the uid/gid reported for synthesized nodes; defaults to
// 0/0 when not given. cmd/effs sets this to the mounting process's own
// uid/gid, per the mount handshake in SPEC_FULL.md §2.4.
func WithOwner(uid, gid uint32) Option {
	return func(e *Effs) { e.uid, e.gid = uid, gid }
}

// WithMaxWrite overrides the max-write payload size reported at Init;
// defaults to MaxWrite when not given.
func WithMaxWrite(maxWrite uint32) Option {
	return func(e *Effs) { e.maxWrite = maxWrite }
}

// Effs is the process-wide facade: it owns the Nodes arena and the
// ordered list of sources, and implements the protocol adapter described
// in SPEC_FULL.md §1. Exactly one Effs exists per mount.
type Effs struct {
	sourcesMu sync.RWMutex
	sources   []EffsSource

	nodes *Nodes

	sf  singleflight.Group
	log *logrus.Entry

	uid, gid uint32
	maxWrite uint32
}

// New constructs an Effs with inode 1 already created as an empty root
// directory.
func New(opts ...Option) *Effs {
	e := &Effs{log: discardLogger(), maxWrite: MaxWrite}
	for _, opt := range opts {
		opt(e)
	}
	e.nodes = NewNodes(e.uid, e.gid)
	return e
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// PushSource appends a source to the ordered list. Ordering is
// insertion-order and affects listing precedence: when two sources
// produce the same name under the same directory, the later one wins
// (via LinkEntry's re-link semantics).
func (e *Effs) PushSource(s EffsSource) {
	e.sourcesMu.Lock()
	defer e.sourcesMu.Unlock()
	e.sources = append(e.sources, s)
}

// Nodes exposes the underlying arena, chiefly for tests that want to
// assert on arena state directly.
func (e *Effs) Nodes() *Nodes { return e.nodes }

// BuildNodes resolves path to a parent node id, then asks every
// registered source to list that directory and links every returned
// tuple into the arena. Population is best-effort: a failing source is
// logged and skipped, and a tuple that fails to link (e.g. a name
// collision with a non-directory) is logged and skipped, so one bad
// source or entry cannot deny service for the rest of the listing.
//
// Concurrent BuildNodes calls for the same path are coalesced via
// singleflight, so the sources-then-nodes critical section for a given
// path runs at most once at a time regardless of how many kernel
// callbacks triggered it concurrently.
func (e *Effs) BuildNodes(path string) error {
	_, err, _ := e.sf.Do(path, func() (any, error) {
		return nil, e.buildNodes(path)
	})
	return err
}

func (e *Effs) buildNodes(path string) error {
	parent, err := e.nodes.PathToNodeID(path)
	if err != nil {
		return err
	}

	// The sources list is copied under its read lock, which is released
	// before any source is asked to list and before LinkEntry takes the
	// nodes lock: the two locks are never held together, and neither is
	// held across blocking I/O.
	e.sourcesMu.RLock()
	sources := make([]EffsSource, len(e.sources))
	copy(sources, e.sources)
	e.sourcesMu.RUnlock()

	for _, src := range sources {
		tuples, err := src.Dir(path)
		if err != nil {
			e.log.WithError(err).WithField("path", path).Warn("effs: source failed to list directory")
			continue
		}
		for _, t := range tuples {
			if _, err := e.nodes.LinkEntry(parent, t.Name, t.Entry); err != nil {
				e.log.WithError(err).WithFields(logrus.Fields{
					"path": path,
					"name": t.Name,
				}).Warn("effs: failed to link entry")
				continue
			}
		}
	}
	return nil
}

// InitReply is the Init callback's response.
type InitReply struct {
	MaxWrite uint32
}

// Init returns the capability set reported to the kernel at mount time.
func (e *Effs) Init() InitReply {
	return InitReply{MaxWrite: e.maxWrite}
}

// Destroy releases nothing extra: the arena and any Filter closures are
// dropped with the Effs value itself.
func (e *Effs) Destroy() {}

// LookupReply is the Lookup callback's response.
type LookupReply struct {
	TTL        time.Duration
	Attr       Attr
	Generation uint64
}

// Lookup resolves (parentInode, name) to the child's attributes and
// generation.
func (e *Effs) Lookup(parentInode uint64, name string) (LookupReply, error) {
	childID, err := e.nodes.BasicLookupNodeIDName(parentInode, name)
	if err != nil {
		return LookupReply{}, err
	}
	attr, err := e.nodes.AttrForInode(childID)
	if err != nil {
		return LookupReply{}, err
	}
	gen, err := e.nodes.Generation(childID)
	if err != nil {
		return LookupReply{}, err
	}
	return LookupReply{TTL: EntryTTL, Attr: attr, Generation: gen}, nil
}

// GetattrReply is the Getattr callback's response.
type GetattrReply struct {
	TTL  time.Duration
	Attr Attr
}

// Getattr synthesizes the attribute set for inode.
func (e *Effs) Getattr(inode uint64) (GetattrReply, error) {
	attr, err := e.nodes.AttrForInode(inode)
	if err != nil {
		return GetattrReply{}, err
	}
	return GetattrReply{TTL: EntryTTL, Attr: attr}, nil
}

// DirEntry is one entry emitted by Readdirplus, in kernel-cookie order.
type DirEntry struct {
	Offset     uint64
	Name       string
	Inode      uint64
	Generation uint64
	Attr       Attr
}

// Readdirplus refreshes parentInode's children from every source, then
// emits ".", "..", and the parent's children in sorted-by-name order,
// skipping the first offset entries (the kernel's opaque resume cookie).
//
// A failure to resolve parentInode to a path is reported as-is (the
// caller maps it to ENOENT); a failure during the refresh is wrapped so
// the caller maps it to ENOTRECOVERABLE.
func (e *Effs) Readdirplus(parentInode uint64, offset uint64) ([]DirEntry, error) {
	path, err := e.nodes.PathOfInode(parentInode)
	if err != nil {
		return nil, err
	}

	if err := e.BuildNodes(normalizeDirPath(path)); err != nil {
		return nil, wrapInternal(err)
	}

	parentAttr, err := e.nodes.AttrForInode(parentInode)
	if err != nil {
		return nil, err
	}
	parentGen, err := e.nodes.Generation(parentInode)
	if err != nil {
		return nil, err
	}
	grandparent, err := e.nodes.ParentInode(parentInode)
	if err != nil {
		return nil, err
	}
	grandparentAttr, err := e.nodes.AttrForInode(grandparent)
	if err != nil {
		return nil, err
	}
	grandparentGen, err := e.nodes.Generation(grandparent)
	if err != nil {
		return nil, err
	}

	all := make([]DirEntry, 0, 2+8)
	all = append(all,
		DirEntry{Offset: 1, Name: ".", Inode: parentInode, Generation: parentGen, Attr: parentAttr},
		DirEntry{Offset: 2, Name: "..", Inode: grandparent, Generation: grandparentGen, Attr: grandparentAttr},
	)

	children, err := e.nodes.Children(parentInode)
	if err != nil {
		return nil, err
	}
	for i, c := range children {
		all = append(all, DirEntry{
			Offset:     uint64(3 + i),
			Name:       c.Name,
			Inode:      c.Inode,
			Generation: c.Generation,
			Attr:       c.Attr,
		})
	}

	if offset >= uint64(len(all)) {
		return nil, nil
	}
	return all[offset:], nil
}

// normalizeDirPath turns the "/"-rooted path PathOfInode returns into
// the ""/relative form BuildNodes and the sources expect.
func normalizeDirPath(path string) string {
	if path == "/" {
		return ""
	}
	return path[1:]
}

func wrapInternal(err error) error {
	return &internalError{err: err}
}

type internalError struct{ err error }

func (e *internalError) Error() string { return ErrInternal.Error() + ": " + e.err.Error() }
func (e *internalError) Unwrap() error { return e.err }

// OpenReply is the Open callback's response. File handles are unused;
// every open shares the single global handle 0.
type OpenReply struct {
	FileHandle uint64
	DirectIO   bool
}

// Open validates that inode exists and forces direct IO, since filter
// output is dynamically sized and must not be cached or prefetched by
// the kernel.
func (e *Effs) Open(inode uint64) (OpenReply, error) {
	if _, err := e.nodes.BasicNodeID(inode); err != nil {
		return OpenReply{}, err
	}
	return OpenReply{FileHandle: 0, DirectIO: true}, nil
}

// Read satisfies a bounded read against inode's entry. Filter execution
// failures are logged with the inode before being returned.
func (e *Effs) Read(ctx context.Context, inode uint64, offset, size uint64) ([]byte, error) {
	data, err := e.nodes.Read(ctx, inode, offset, size)
	var effectErr *EffectError
	if errors.As(err, &effectErr) {
		e.log.WithError(err).WithField("inode", inode).Error("effs: filter execution failed")
	}
	return data, err
}

// PathOfInode exposes the arena's reverse path lookup.
func (e *Effs) PathOfInode(inode uint64) (string, error) {
	return e.nodes.PathOfInode(inode)
}

// PathToNodeID exposes the arena's forward path resolution.
func (e *Effs) PathToNodeID(path string) (uint64, error) {
	return e.nodes.PathToNodeID(path)
}
