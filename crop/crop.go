// Package crop implements a placeholder image-transform effect: a
// bounded byte range carved out of a host file. It stands in for a real
// image crop — the shape of the contract (an Effect producing one named
// entry backed by a range of an origin file) is what matters, not image
// decoding.
package crop

import (
	"io"
	"os"
	"path/filepath"

	"github.com/metatoaster/effs"
)

// Crop is an Effect whose origin is a single host file. It emits one
// entry, named after the origin's final path component, whose content
// is the byte range [x, x+w) of that file. y and h are carried for
// parity with a real 2-D crop transform but are not consulted by this
// byte-range stand-in.
type Crop struct {
	X, Y, W, H uint64
}

// Apply implements effs.Effect. request is ignored: Crop always emits
// exactly one entry regardless of which virtual sub-path triggered the
// listing, since its origin names a single file rather than a
// directory.
func (c Crop) Apply(origin, request string) ([]effs.Tuple, error) {
	info, err := os.Stat(origin)
	if err != nil {
		return nil, &effs.BadSourcePathError{Path: origin, Reason: err.Error()}
	}
	if info.IsDir() {
		return nil, &effs.BadSourcePathError{Path: origin, Reason: "crop origin must be a file"}
	}

	x, w := c.X, c.W
	producer := func(offset, size uint64) ([]byte, error) {
		f, err := os.Open(origin)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		if offset >= w {
			return []byte{}, nil
		}
		remaining := w - offset
		if size > remaining {
			size = remaining
		}

		buf := make([]byte, size)
		n, err := f.ReadAt(buf, int64(x+offset))
		if err != nil && err != io.EOF {
			return nil, err
		}
		return buf[:n], nil
	}

	return []effs.Tuple{{
		Name:  filepath.Base(origin),
		Entry: effs.NewPreciseFilterEntry(effs.NewPreciseFilter(producer)),
	}}, nil
}

// New constructs a Source binding origin (a host file) as a Crop effect
// rooted at destPath in the virtual tree.
func New(origin, destPath string, x, y, w, h uint64) *effs.Source[Crop] {
	return effs.NewSource(origin, destPath, Crop{X: x, Y: y, W: w, H: h})
}
