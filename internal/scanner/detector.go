package scanner

import (
	"path/filepath"
	"strings"
)

// PackageExtension is the extension of QNAP package files
const PackageExtension = ".qpkg"

// IsPackageFile reports whether path names a package file
func IsPackageFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), PackageExtension)
}
