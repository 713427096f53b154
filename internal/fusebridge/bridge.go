// Package fusebridge binds an *effs.Effs to the real kernel-side FUSE
// transport via github.com/hanwen/go-fuse/v2. This is the one part of
// the repository that actually talks to the kernel; the hard core in
// the root effs package never imports go-fuse and can be exercised
// without a real mount.
package fusebridge

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/moby/sys/mountinfo"
	"github.com/sirupsen/logrus"

	"github.com/metatoaster/effs"
)

// node is the fs.InodeEmbedder for every inode in the mount; all of
// them share the same *effs.Effs and are distinguished only by their
// kernel-assigned inode number, which is kept equal to the arena's own
// inode via fs.StableAttr.
type node struct {
	fs.Inode
	e *effs.Effs
}

var (
	_ fs.NodeLookuper  = (*node)(nil)
	_ fs.NodeGetattrer = (*node)(nil)
	_ fs.NodeReaddirer = (*node)(nil)
	_ fs.NodeOpener    = (*node)(nil)
	_ fs.NodeReader    = (*node)(nil)
)

func (n *node) inode() uint64 {
	return n.StableAttr().Ino
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	reply, err := n.e.Lookup(n.inode(), name)
	if err != nil {
		return nil, effs.Errno(err)
	}
	fillEntryOut(out, reply.Attr, reply.Generation, reply.TTL)
	child := &node{e: n.e}
	return n.NewInode(ctx, child, fs.StableAttr{
		Mode: modeBits(reply.Attr),
		Gen:  reply.Generation,
		Ino:  reply.Attr.Inode,
	}), 0
}

func (n *node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	reply, err := n.e.Getattr(n.inode())
	if err != nil {
		return effs.Errno(err)
	}
	out.SetTimeout(reply.TTL)
	fillAttr(&out.Attr, reply.Attr)
	return 0
}

// dirStream adapts the []effs.DirEntry slice Readdirplus returns to
// fs.DirStream's pull interface.
type dirStream struct {
	entries []effs.DirEntry
	i       int
}

func (d *dirStream) HasNext() bool { return d.i < len(d.entries) }

func (d *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := d.entries[d.i]
	d.i++
	return fuse.DirEntry{
		Name: e.Name,
		Ino:  e.Inode,
		Mode: modeBits(e.Attr),
	}, 0
}

func (d *dirStream) Close() {}

func (n *node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries, err := n.e.Readdirplus(n.inode(), 0)
	if err != nil {
		return nil, effs.Errno(err)
	}
	return &dirStream{entries: entries}, 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	reply, err := n.e.Open(n.inode())
	if err != nil {
		return nil, 0, effs.Errno(err)
	}
	fuseFlags := flags
	if reply.DirectIO {
		fuseFlags |= fuse.FOPEN_DIRECT_IO
	}
	return nil, fuseFlags, 0
}

func (n *node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, err := n.e.Read(ctx, n.inode(), uint64(off), uint64(len(dest)))
	if err != nil {
		return nil, effs.Errno(err)
	}
	return fuse.ReadResultData(data), 0
}

func fillAttr(out *fuse.Attr, a effs.Attr) {
	out.Ino = a.Inode
	out.Size = a.Size
	out.Mode = modeBits(a)
	out.Uid = a.Uid
	out.Gid = a.Gid
	out.Nlink = 1
	out.SetTimes(&a.Atime, &a.Mtime, &a.Ctime)
}

func fillEntryOut(out *fuse.EntryOut, a effs.Attr, gen uint64, ttl time.Duration) {
	out.NodeId = a.Inode
	out.Generation = gen
	out.SetEntryTimeout(ttl)
	out.SetAttrTimeout(ttl)
	fillAttr(&out.Attr, a)
}

func modeBits(a effs.Attr) uint32 {
	if a.Kind == effs.Directory {
		return syscall.S_IFDIR | a.Mode
	}
	return syscall.S_IFREG | a.Mode
}

// Mount mounts e at mountPoint, returning the running *fuse.Server. The
// caller is responsible for calling Unmount (or Server.Unmount) on
// shutdown.
func Mount(e *effs.Effs, mountPoint string, entryTTL time.Duration, log *logrus.Entry) (*fuse.Server, error) {
	root := &node{e: e}
	server, err := fs.Mount(mountPoint, root, &fs.Options{
		EntryTimeout: &entryTTL,
		AttrTimeout:  &entryTTL,
		MountOptions: fuse.MountOptions{
			AllowOther: true,
			MaxWrite:   int(e.Init().MaxWrite),
			FsName:     "effs",
			Name:       "effs",
		},
	})
	if err != nil {
		return nil, err
	}

	go func() {
		mounted, err := mountinfo.Mounted(mountPoint)
		if err != nil || !mounted {
			log.WithField("mountpoint", mountPoint).Warn("effs: mount point did not appear in mountinfo")
			return
		}
		log.WithField("mountpoint", mountPoint).Info("effs: mounted")
	}()

	return server, nil
}

// Unmount tears down server and verifies via mountinfo that the mount
// point is gone.
func Unmount(server *fuse.Server, mountPoint string, log *logrus.Entry) error {
	if err := server.Unmount(); err != nil {
		return err
	}
	mounted, err := mountinfo.Mounted(mountPoint)
	if err == nil && mounted {
		log.WithField("mountpoint", mountPoint).Warn("effs: mount point still present after unmount")
	}
	return nil
}
