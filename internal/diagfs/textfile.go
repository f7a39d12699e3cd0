//go:build linux
// +build linux

package diagfs

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// textFileNode is a read-only virtual file whose content is
// recomputed from Source on every read — diagnostics are cheap string
// formatting, so unlike vodfs's materializer there's no reason to
// cache or progressively stream it.
type textFileNode struct {
	fs.Inode
	Content func() string
}

var _ fs.NodeGetattrer = (*textFileNode)(nil)
var _ fs.NodeOpener = (*textFileNode)(nil)
var _ fs.NodeReader = (*textFileNode)(nil)

func (n *textFileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Size = uint64(len(n.Content()))
	out.Mode = fuse.S_IFREG | 0444
	out.SetTimes(nil, &time.Time{}, nil)
	return 0
}

func (n *textFileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	return nil, fuse.FOPEN_DIRECT_IO, 0
}

func (n *textFileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data := n.Content()
	if off >= int64(len(data)) {
		return fuse.ReadResultData(dest[:0]), 0
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	n2 := copy(dest, data[off:end])
	return fuse.ReadResultData(dest[:n2]), 0
}
