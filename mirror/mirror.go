// Package mirror implements effs' canonical effect: mirroring a real
// host directory into the synthetic tree, one level at a time.
package mirror

import (
	"os"
	"path/filepath"

	"github.com/metatoaster/effs"
)

// Mirror is an Effect whose origin is a host directory. Each call to
// Apply resolves request relative to origin and lists that single
// level: directory children become empty Dir entries (to be expanded
// lazily on their own subsequent Apply call), regular-file children
// become Filter entries that read the whole file on demand. Anything
// else — symlinks, sockets, devices — is silently omitted.
type Mirror struct{}

// Apply implements effs.Effect.
func (Mirror) Apply(origin, request string) ([]effs.Tuple, error) {
	originInfo, err := os.Stat(origin)
	if err != nil {
		return nil, &effs.BadSourcePathError{Path: origin, Reason: err.Error()}
	}
	if !originInfo.IsDir() {
		return nil, &effs.BadSourcePathError{Path: origin, Reason: "mirror origin must be a directory"}
	}

	dir := filepath.Join(origin, filepath.FromSlash(request))

	info, err := os.Stat(dir)
	if err != nil {
		return nil, &effs.BadRequestPathError{Path: request, Reason: err.Error()}
	}
	if !info.IsDir() {
		return nil, &effs.BadRequestPathError{Path: request, Reason: "not a directory"}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &effs.EffectError{Origin: origin, Reason: "read directory failed", Err: err}
	}

	tuples := make([]effs.Tuple, 0, len(entries))
	for _, ent := range entries {
		info, err := ent.Info()
		if err != nil {
			continue
		}
		switch {
		case info.IsDir():
			tuples = append(tuples, effs.Tuple{
				Name:  ent.Name(),
				Entry: effs.NewDirEntry(),
			})
		case info.Mode().IsRegular():
			path := filepath.Join(dir, ent.Name())
			tuples = append(tuples, effs.Tuple{
				Name:  ent.Name(),
				Entry: effs.NewFilterEntry(effs.NewFilter(func() ([]byte, error) {
					return os.ReadFile(path)
				})),
			})
		default:
			// symlinks, sockets, devices, etc. are silently omitted.
		}
	}
	return tuples, nil
}

// New constructs a Source binding origin (a host directory) as a Mirror
// effect rooted at destPath in the virtual tree.
func New(origin, destPath string) *effs.Source[Mirror] {
	return effs.NewSource(origin, destPath, Mirror{})
}
