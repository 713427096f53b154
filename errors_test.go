package effs

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{"no such node", &NoSuchNodeError{Inode: 42}, syscall.ENOENT},
		{"no entry", &NodeLookupError{Kind: NoEntry}, syscall.ENOENT},
		{"no such name", &NodeLookupError{Kind: NoSuchName}, syscall.ENOENT},
		{"not dir", &NodeLookupError{Kind: NotDirEntry}, syscall.ENOTDIR},
		{"is a directory", ErrIsADirectory, syscall.EISDIR},
		{"internal", ErrInternal, syscall.ENOTRECOVERABLE},
		{"wrapped internal", wrapInternal(ErrIsADirectory), syscall.ENOTRECOVERABLE},
		{"effect failure", &EffectError{Reason: "x"}, syscall.EIO},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, Errno(c.err))
		})
	}
}

func TestErrnoNil(t *testing.T) {
	assert.Equal(t, syscall.Errno(0), Errno(nil))
}
