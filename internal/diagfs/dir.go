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

// listDirNode is a read-only directory whose children are computed on
// every lookup/readdir from the live Source rather than snapshotted
// at mount time — every level of the pipeline/adapters/ca trees uses
// this same node, parameterized by Entries/Child, instead of three
// bespoke dir+dirstream pairs the way vodfs has one per catalog kind.
type listDirNode struct {
	fs.Inode
	Key     string // stable prefix for inode hashing
	Entries func() []string
	Child   func(name string) (fs.InodeEmbedder, fuse.StableAttr)
}

var _ fs.NodeLookuper = (*listDirNode)(nil)
var _ fs.NodeReaddirer = (*listDirNode)(nil)

func (d *listDirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	for _, e := range d.Entries() {
		if e != name {
			continue
		}
		embed, attr := d.Child(name)
		ch := d.NewInode(ctx, embed, attr)
		if attr.Mode&fuse.S_IFDIR != 0 {
			out.Mode = fuse.S_IFDIR | 0755
		} else {
			out.Mode = fuse.S_IFREG | 0444
		}
		out.SetEntryTimeout(time.Second)
		out.SetAttrTimeout(time.Second)
		return ch, 0
	}
	return nil, syscall.ENOENT
}

func (d *listDirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := d.Entries()
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, name := range entries {
		_, attr := d.Child(name)
		out = append(out, fuse.DirEntry{Name: name, Ino: attr.Ino, Mode: attr.Mode})
	}
	return fs.NewListDirStream(out), 0
}

func dirAttr(key string) fuse.StableAttr {
	return fuse.StableAttr{Mode: fuse.S_IFDIR, Ino: inoFromString(key)}
}

func fileAttr(key string) fuse.StableAttr {
	return fuse.StableAttr{Mode: fuse.S_IFREG, Ino: inoFromString(key)}
}
