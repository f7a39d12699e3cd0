//go:build linux
// +build linux

package diagfs

import (
	"context"
	"strconv"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Root is the filesystem's top directory: pipeline/, adapters/, ca/.
type Root struct {
	fs.Inode
	Source Source
}

var _ fs.NodeLookuper = (*Root)(nil)
var _ fs.NodeReaddirer = (*Root)(nil)

func (r *Root) topEntries() []string { return []string{"pipeline", "adapters", "ca"} }

func (r *Root) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	var node fs.InodeEmbedder
	switch name {
	case "pipeline":
		node = r.pipelineDir()
	case "adapters":
		node = r.adaptersDir()
	case "ca":
		node = r.caDir()
	default:
		return nil, syscall.ENOENT
	}
	ch := r.NewInode(ctx, node, dirAttr("top:"+name))
	out.Mode = fuse.S_IFDIR | 0755
	out.SetEntryTimeout(time.Second)
	out.SetAttrTimeout(time.Second)
	return ch, 0
}

func (r *Root) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := make([]fuse.DirEntry, 0, 3)
	for _, name := range r.topEntries() {
		entries = append(entries, fuse.DirEntry{Name: name, Ino: inoFromString("top:" + name), Mode: fuse.S_IFDIR})
	}
	return fs.NewListDirStream(entries), 0
}

func (r *Root) pipelineDir() *listDirNode {
	return &listDirNode{
		Entries: r.Source.PipelineNodes,
		Child: func(name string) (fs.InodeEmbedder, fuse.StableAttr) {
			return r.nodeDir(name), dirAttr("pipeline:" + name)
		},
	}
}

func (r *Root) nodeDir(node string) *listDirNode {
	return &listDirNode{
		Entries: func() []string { return []string{"demand"} },
		Child: func(name string) (fs.InodeEmbedder, fuse.StableAttr) {
			return &textFileNode{Content: func() string { return r.Source.PipelineDemand(node) }},
				fileAttr("pipeline:" + node + ":demand")
		},
	}
}

func (r *Root) adaptersDir() *listDirNode {
	return &listDirNode{
		Entries: func() []string { return intNames(r.Source.Adapters()) },
		Child: func(name string) (fs.InodeEmbedder, fuse.StableAttr) {
			n, _ := strconv.Atoi(name)
			return r.adapterDir(n), dirAttr("adapter:" + name)
		},
	}
}

func (r *Root) adapterDir(adapter int) *listDirNode {
	return &listDirNode{
		Entries: func() []string { return []string{"status"} },
		Child: func(name string) (fs.InodeEmbedder, fuse.StableAttr) {
			return &textFileNode{Content: func() string { return r.Source.AdapterStatus(adapter) }},
				fileAttr("adapter:" + strconv.Itoa(adapter) + ":status")
		},
	}
}

func (r *Root) caDir() *listDirNode {
	return &listDirNode{
		Entries: func() []string { return intNames(r.Source.CASlots()) },
		Child: func(name string) (fs.InodeEmbedder, fuse.StableAttr) {
			n, _ := strconv.Atoi(name)
			return r.caSlotDir(n), dirAttr("ca:" + name)
		},
	}
}

func (r *Root) caSlotDir(slot int) *listDirNode {
	return &listDirNode{
		Entries: func() []string { return []string{"sessions"} },
		Child: func(name string) (fs.InodeEmbedder, fuse.StableAttr) {
			return &textFileNode{Content: func() string { return r.Source.CASessions(slot) }},
				fileAttr("ca:" + strconv.Itoa(slot) + ":sessions")
		},
	}
}

func intNames(vals []int) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strconv.Itoa(v)
	}
	return out
}
