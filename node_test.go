package effs

import (
	"context"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodesCreatesRoot(t *testing.T) {
	ns := NewNodes(1000, 1000)

	attr, err := ns.AttrForInode(RootInode)
	require.NoError(t, err)
	assert.Equal(t, Directory, attr.Kind)
	assert.Equal(t, uint32(0o755), attr.Mode)

	gen, err := ns.Generation(RootInode)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen, "first link bumps generation 0 to 1")
}

func TestBasicNodeIDOutOfRange(t *testing.T) {
	ns := NewNodes(0, 0)
	_, err := ns.BasicNodeID(99)
	var notFound *NoSuchNodeError
	assert.ErrorAs(t, err, &notFound)
}

func TestLinkEntryCreatesChildAndPreservesInodeOnRelink(t *testing.T) {
	ns := NewNodes(0, 0)

	firstID, err := ns.LinkEntry(RootInode, "a.txt", NewFiltratedEntry([]byte("hello")))
	require.NoError(t, err)

	gen1, err := ns.Generation(firstID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen1)

	secondID, err := ns.LinkEntry(RootInode, "a.txt", NewFiltratedEntry([]byte("world")))
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID, "re-linking must preserve the child's inode")

	gen2, err := ns.Generation(secondID)
	require.NoError(t, err)
	assert.Equal(t, gen1+1, gen2, "re-linking must strictly increase generation by exactly 1")
}

func TestLinkEntryFailsOnNonDirParent(t *testing.T) {
	ns := NewNodes(0, 0)
	fileID, err := ns.LinkEntry(RootInode, "f", NewFiltratedEntry([]byte("x")))
	require.NoError(t, err)

	_, err = ns.LinkEntry(fileID, "child", NewDirEntry())
	var lookupErr *NodeLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, NotDirEntry, lookupErr.Kind)
}

func TestBasicLookupNodeIDNameKinds(t *testing.T) {
	ns := NewNodes(0, 0)

	_, err := ns.BasicLookupNodeIDName(RootInode, "missing")
	var lookupErr *NodeLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, NoSuchName, lookupErr.Kind)

	ns.mu.Lock()
	stubID := ns.newNodeLocked("stub", RootInode, 0, 0)
	ns.mu.Unlock()
	_, err = ns.BasicLookupNodeIDName(stubID, "anything")
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, NoEntry, lookupErr.Kind)
}

func TestPathOfInodeAndPathToNodeIDRoundTrip(t *testing.T) {
	ns := NewNodes(0, 0)
	subID, err := ns.LinkEntry(RootInode, "sub", NewDirEntry())
	require.NoError(t, err)
	fileID, err := ns.LinkEntry(subID, "b.txt", NewFiltratedEntry([]byte("world")))
	require.NoError(t, err)

	path, err := ns.PathOfInode(fileID)
	require.NoError(t, err)
	assert.Equal(t, "/sub/b.txt", path)

	resolved, err := ns.PathToNodeID("sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, fileID, resolved)

	rootID, err := ns.PathToNodeID("")
	require.NoError(t, err)
	assert.Equal(t, RootInode, rootID)

	rootID2, err := ns.PathToNodeID("/")
	require.NoError(t, err)
	assert.Equal(t, RootInode, rootID2)
}

func TestPathToNodeIDMissingName(t *testing.T) {
	ns := NewNodes(0, 0)
	_, err := ns.PathToNodeID("nope")
	var lookupErr *NodeLookupError
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, NoSuchName, lookupErr.Kind)

	_, err = ns.PathToNodeID("/nope")
	require.ErrorAs(t, err, &lookupErr)
	assert.Equal(t, NoSuchName, lookupErr.Kind)
}

func TestChildrenSortedByName(t *testing.T) {
	ns := NewNodes(0, 0)
	_, err := ns.LinkEntry(RootInode, "zeta", NewDirEntry())
	require.NoError(t, err)
	_, err = ns.LinkEntry(RootInode, "alpha", NewDirEntry())
	require.NoError(t, err)
	_, err = ns.LinkEntry(RootInode, "mid", NewDirEntry())
	require.NoError(t, err)

	children, err := ns.Children(RootInode)
	require.NoError(t, err)

	names := make([]string, len(children))
	for i, c := range children {
		names[i] = c.Name
	}

	want := []string{"alpha", "mid", "zeta"}
	if diff := pretty.Compare(want, names); diff != "" {
		t.Fatalf("children name order mismatch (-want +got):\n%s", diff)
	}
}

func TestReadDirFails(t *testing.T) {
	ns := NewNodes(0, 0)
	_, err := ns.Read(context.Background(), RootInode, 0, 10)
	assert.ErrorIs(t, err, ErrIsADirectory)
}

func TestReadFiltratedSlicesRange(t *testing.T) {
	ns := NewNodes(0, 0)
	id, err := ns.LinkEntry(RootInode, "f", NewFiltratedEntry([]byte("0123456789")))
	require.NoError(t, err)

	data, err := ns.Read(context.Background(), id, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("234"), data)

	data, err = ns.Read(context.Background(), id, 100, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, data)
}

func TestReadFilterAwaitsProducer(t *testing.T) {
	ns := NewNodes(0, 0)
	filter := NewFilter(func() ([]byte, error) { return []byte("world"), nil })
	id, err := ns.LinkEntry(RootInode, "f", NewFilterEntry(filter))
	require.NoError(t, err)

	data, err := ns.Read(context.Background(), id, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), data)

	data, err = ns.Read(context.Background(), id, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("or"), data)
}
