// Package coreinstr bundles the protected core instruction set into the
// binary. Core instructions shadow any user file with the same id.
package coreinstr

import (
	"embed"
	"io/fs"
)

//go:embed instructions
var bundled embed.FS

// FS returns the bundled core instruction tree, rooted at the category
// directories.
func FS() fs.FS {
	sub, err := fs.Sub(bundled, "instructions")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(err)
	}
	return sub
}
