//go:build linux
// +build linux

package diagfs

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// Mount mounts the diagnostics filesystem at mountPoint and blocks
// until the process receives SIGINT/SIGTERM, mirroring vodfs.Mount.
func Mount(mountPoint string, src Source, allowOther bool) error {
	server, err := mount(mountPoint, src, allowOther)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		log.Println("diagfs: unmounting...")
		_ = server.Unmount()
	}()

	server.Wait()
	stop()
	return nil
}

// MountBackground mounts the filesystem without blocking; call the
// returned func (or cancel ctx) to unmount, mirroring
// vodfs.MountBackground.
func MountBackground(ctx context.Context, mountPoint string, src Source, allowOther bool) (unmount func(), err error) {
	server, err := mount(mountPoint, src, allowOther)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = server.Unmount()
	}()
	return func() { _ = server.Unmount() }, nil
}

func mount(mountPoint string, src Source, allowOther bool) (*fuse.Server, error) {
	root := &Root{Source: src}
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			Debug:      false,
			AllowOther: allowOther,
		},
	}
	return fs.Mount(mountPoint, root, opts)
}
