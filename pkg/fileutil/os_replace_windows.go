//go:build windows

package fileutil

import "os"

// os.Rename uses MoveFileEx with MOVEFILE_REPLACE_EXISTING on Windows.
func osReplace(tmpPath, dest string) error {
	return os.Rename(tmpPath, dest)
}

// Directories cannot be fsynced on Windows.
func syncDir(string) error { return nil }
