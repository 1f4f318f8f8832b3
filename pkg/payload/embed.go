package payload

import (
	"embed"
	"io/fs"
)

//go:embed assets
var assets embed.FS

// Embedded returns the payload files compiled into the installer, rooted so
// that entry sources are bare file names.
func Embedded() fs.FS {
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		// fs.Sub only fails on an invalid directory name
		panic(err)
	}
	return sub
}
