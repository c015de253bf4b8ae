// Package fsutil holds small filesystem predicates shared across packages.
package fsutil

import "os"

// IsRegularFile reports whether path exists and is a regular file. A
// directory or a broken path is reported as absent.
func IsRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
