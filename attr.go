package effs

import "time"

// FileType is the coarse kind reported in an Attr, derived from an
// Entry's variant: a Dir entry is Directory, anything else is
// RegularFile.
type FileType int

const (
	// Directory marks a node whose Entry is a Dir listing.
	Directory FileType = iota
	// RegularFile marks a node whose Entry is a Filter, PreciseFilter,
	// or Filtrated blob.
	RegularFile
)

const (
	dirMode  = 0o755
	fileMode = 0o644
)

// Attr is the POSIX-style attribute set synthesized for a node, reported
// through lookup/getattr/readdirplus.
type Attr struct {
	Inode uint64
	Kind  FileType
	Size  uint64
	Mode  uint32
	Uid   uint32
	Gid   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Nlink uint32
}

func modeFor(kind EntryKind) uint32 {
	if kind == KindDir {
		return dirMode
	}
	return fileMode
}

func fileTypeFor(kind EntryKind) FileType {
	if kind == KindDir {
		return Directory
	}
	return RegularFile
}
