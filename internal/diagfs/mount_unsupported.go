//go:build !linux
// +build !linux

package diagfs

import (
	"context"
	"fmt"
)

// Mount is unavailable on non-Linux builds because diagfs depends on go-fuse.
func Mount(mountPoint string, src Source, allowOther bool) error {
	return fmt.Errorf("diagfs mount is only supported on linux builds")
}

// MountBackground is unavailable on non-Linux builds because diagfs depends on go-fuse.
func MountBackground(ctx context.Context, mountPoint string, src Source, allowOther bool) (func(), error) {
	return nil, fmt.Errorf("diagfs mount is only supported on linux builds")
}
