package effs

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// RootInode is the inode of the synthetic tree's root directory. It is
// created at construction time and exists for the lifetime of the
// process.
const RootInode uint64 = 1

// Node is a single element of the Nodes arena. Its inode is its position
// in the arena and is never reused.
type Node struct {
	name       string
	parent     uint64
	entry      *Entry
	generation uint64
	size       uint64
	mtime      time.Time
	uid, gid   uint32
	mode       uint32
}

// HasEntry reports whether the node has been linked to an Entry. A node
// with no entry is a stub reserved for future linking and must not
// appear in any listing.
func (n *Node) HasEntry() bool { return n.entry != nil }

// Nodes is the arena of all nodes in a single Effs's synthetic tree,
// addressed by the stable positional inode assigned at creation. Index 0
// is never used; RootInode (1) is created by NewNodes.
//
// Nodes is safe for concurrent use: callers take the shared lock for
// reads (Read, AttrForInode, PathOfInode, lookups) and the exclusive
// lock for writes (LinkEntry). Per the facade's locking
// discipline, no lock here is ever held across a blocking I/O wait.
type Nodes struct {
	mu    sync.RWMutex
	slots []Node
}

// NewNodes allocates an arena with inode 1 already created as an empty
// root directory.
func NewNodes(uid, gid uint32) *Nodes {
	ns := &Nodes{slots: make([]Node, 1, 64)} // slots[0] unused
	root := Node{
		parent: RootInode,
		uid:    uid,
		gid:    gid,
	}
	ns.slots = append(ns.slots, root)
	rootEntry := NewDirEntry()
	// Link directly; root always succeeds and needs no lock at
	// construction time since ns is not yet shared.
	ns.slots[RootInode].entry = &rootEntry
	ns.slots[RootInode].generation = 1
	ns.slots[RootInode].mode = modeFor(KindDir)
	ns.slots[RootInode].mtime = time.Now()
	return ns
}

// newNodeLocked appends a default stub node and returns its inode.
// Caller must hold the write lock.
func (ns *Nodes) newNodeLocked(name string, parent uint64, uid, gid uint32) uint64 {
	ns.slots = append(ns.slots, Node{name: name, parent: parent, uid: uid, gid: gid})
	return uint64(len(ns.slots) - 1)
}

// BasicNodeID maps an inode to itself if it exists in the arena,
// failing with NoSuchNodeError if out of range.
func (ns *Nodes) BasicNodeID(inode uint64) (uint64, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.basicNodeIDLocked(inode)
}

func (ns *Nodes) basicNodeIDLocked(inode uint64) (uint64, error) {
	if inode == 0 || inode >= uint64(len(ns.slots)) {
		return 0, &NoSuchNodeError{Inode: inode}
	}
	return inode, nil
}

// BasicLookupNodeIDName resolves a child by (parent, name).
func (ns *Nodes) BasicLookupNodeIDName(parent uint64, name string) (uint64, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.basicLookupNodeIDNameLocked(parent, name)
}

func (ns *Nodes) basicLookupNodeIDNameLocked(parent uint64, name string) (uint64, error) {
	pid, err := ns.basicNodeIDLocked(parent)
	if err != nil {
		return 0, err
	}
	pnode := &ns.slots[pid]
	if pnode.entry == nil {
		return 0, &NodeLookupError{Parent: parent, Name: name, Kind: NoEntry}
	}
	if pnode.entry.Kind != KindDir {
		return 0, &NodeLookupError{Parent: parent, Name: name, Kind: NotDirEntry}
	}
	childID, ok := pnode.entry.Dir[name]
	if !ok {
		return 0, &NodeLookupError{Parent: parent, Name: name, Kind: NoSuchName}
	}
	if childID == 0 || childID >= uint64(len(ns.slots)) {
		return 0, &NodeLookupError{Parent: parent, Name: name, Kind: NoSuchName}
	}
	return childID, nil
}

// LinkEntry links name under parent to entry. If name already exists
// under parent, the existing child is re-linked (its inode is preserved
// and its generation strictly increases by one); otherwise a new child
// is allocated, appended under parent, and linked.
func (ns *Nodes) LinkEntry(parent uint64, name string, entry Entry) (uint64, error) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	pid, err := ns.basicNodeIDLocked(parent)
	if err != nil {
		return 0, err
	}
	pnode := &ns.slots[pid]
	if pnode.entry == nil {
		return 0, &NodeLookupError{Parent: parent, Name: name, Kind: NoEntry}
	}
	if pnode.entry.Kind != KindDir {
		return 0, &NodeLookupError{Parent: parent, Name: name, Kind: NotDirEntry}
	}

	if childID, ok := pnode.entry.Dir[name]; ok && childID > 0 && childID < uint64(len(ns.slots)) {
		ns.linkLocked(childID, entry)
		return childID, nil
	}

	childID := ns.newNodeLocked(name, pid, pnode.uid, pnode.gid)
	// Re-fetch pnode: newNodeLocked may have grown the backing slice.
	pnode = &ns.slots[pid]
	ns.linkLocked(childID, entry)
	pnode.entry.Dir[name] = childID
	return childID, nil
}

// linkLocked assigns entry to the node at id, bumping its generation and
// refreshing its derived metadata. Caller must hold the write lock.
func (ns *Nodes) linkLocked(id uint64, entry Entry) {
	n := &ns.slots[id]
	n.entry = &entry
	n.generation++
	n.mode = modeFor(entry.Kind)
	n.mtime = time.Now()
	if entry.Kind == KindFiltrated {
		n.size = uint64(len(entry.Filtrated))
	} else {
		n.size = 0
	}
}

// PathOfInode reconstructs the path of inode by walking its ancestors
// and concatenating names; the root yields "/".
func (ns *Nodes) PathOfInode(inode uint64) (string, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return ns.pathOfInodeLocked(inode)
}

func (ns *Nodes) pathOfInodeLocked(inode uint64) (string, error) {
	id, err := ns.basicNodeIDLocked(inode)
	if err != nil {
		return "", err
	}
	if id == RootInode {
		return "/", nil
	}
	var parts []string
	for id != RootInode {
		n := &ns.slots[id]
		parts = append(parts, n.name)
		if n.parent == id {
			break
		}
		id = n.parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return "/" + strings.Join(parts, "/"), nil
}

// ParentInode returns the inode's parent, or the inode itself if it is
// the root.
func (ns *Nodes) ParentInode(inode uint64) (uint64, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	id, err := ns.basicNodeIDLocked(inode)
	if err != nil {
		return 0, err
	}
	return ns.slots[id].parent, nil
}

// PathToNodeID walks path from the root following normal components
// (no "." / ".." normalization is performed; the caller must supply an
// already-normalized path). "" and "/" both resolve to RootInode.
func (ns *Nodes) PathToNodeID(path string) (uint64, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	id := RootInode
	for _, comp := range splitNormal(path) {
		next, err := ns.basicLookupNodeIDNameLocked(id, comp)
		if err != nil {
			return 0, err
		}
		id = next
	}
	return id, nil
}

func splitNormal(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// DirChild describes one entry yielded by a directory listing, in the
// order Children emits them.
type DirChild struct {
	Name       string
	Inode      uint64
	Generation uint64
	Attr       Attr
}

// Children returns the sorted-by-name children of a Dir node, suitable
// for deterministic readdirplus emission.
func (ns *Nodes) Children(inode uint64) ([]DirChild, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	id, err := ns.basicNodeIDLocked(inode)
	if err != nil {
		return nil, err
	}
	n := &ns.slots[id]
	if n.entry == nil {
		return nil, &NodeLookupError{Parent: inode, Kind: NoEntry}
	}
	if n.entry.Kind != KindDir {
		return nil, &NodeLookupError{Parent: inode, Kind: NotDirEntry}
	}

	names := make([]string, 0, len(n.entry.Dir))
	for name := range n.entry.Dir {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]DirChild, 0, len(names))
	for _, name := range names {
		childID := n.entry.Dir[name]
		if childID == 0 || childID >= uint64(len(ns.slots)) {
			continue
		}
		child := &ns.slots[childID]
		if child.entry == nil {
			continue
		}
		out = append(out, DirChild{
			Name:       name,
			Inode:      childID,
			Generation: child.generation,
			Attr:       ns.attrForLocked(childID),
		})
	}
	return out, nil
}

// AttrForInode synthesizes the POSIX-style attribute set for inode.
func (ns *Nodes) AttrForInode(inode uint64) (Attr, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	id, err := ns.basicNodeIDLocked(inode)
	if err != nil {
		return Attr{}, err
	}
	return ns.attrForLocked(id), nil
}

func (ns *Nodes) attrForLocked(id uint64) Attr {
	n := &ns.slots[id]
	kind := Directory
	mode := n.mode
	if n.entry != nil {
		kind = fileTypeFor(n.entry.Kind)
	}
	return Attr{
		Inode: id,
		Kind:  kind,
		Size:  n.size,
		Mode:  mode,
		Uid:   n.uid,
		Gid:   n.gid,
		Atime: n.mtime,
		Mtime: n.mtime,
		Ctime: n.mtime,
		Nlink: 0,
	}
}

// Generation returns the current generation counter for inode.
func (ns *Nodes) Generation(inode uint64) (uint64, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	id, err := ns.basicNodeIDLocked(inode)
	if err != nil {
		return 0, err
	}
	return ns.slots[id].generation, nil
}

// Read satisfies a bounded read against a node's entry: Dir fails with
// ErrIsADirectory; Filter and Filtrated are sliced to
// [offset, min(len, offset+size)); PreciseFilter delegates the range
// directly to its producer.
func (ns *Nodes) Read(ctx context.Context, inode uint64, offset, size uint64) ([]byte, error) {
	ns.mu.RLock()
	id, err := ns.basicNodeIDLocked(inode)
	if err != nil {
		ns.mu.RUnlock()
		return nil, err
	}
	n := &ns.slots[id]
	if n.entry == nil {
		ns.mu.RUnlock()
		return nil, &NoSuchNodeError{Inode: inode}
	}
	entry := *n.entry
	ns.mu.RUnlock()

	switch entry.Kind {
	case KindDir:
		return nil, ErrIsADirectory
	case KindFiltrated:
		return sliceRange(entry.Filtrated, offset, size), nil
	case KindFilter:
		data, err := entry.Filter.Filtrate().Await(ctx)
		if err != nil {
			return nil, &EffectError{Reason: "filter execution failed", Err: err}
		}
		return sliceRange(data, offset, size), nil
	case KindPreciseFilter:
		data, err := entry.PreciseFilter.Filtrate(offset, size).Await(ctx)
		if err != nil {
			return nil, &EffectError{Reason: "precise filter execution failed", Err: err}
		}
		return data, nil
	default:
		return nil, ErrInternal
	}
}

func sliceRange(data []byte, offset, size uint64) []byte {
	if offset >= uint64(len(data)) {
		return []byte{}
	}
	end := offset + size
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	return data[offset:end]
}
