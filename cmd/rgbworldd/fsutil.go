package main

import (
	"os"
	"path/filepath"
)

// dirSizeOrZero sums the size of every regular file under dir, used
// for the compact subcommand's before/after report. Any error (dir not
// yet created, permissions) is treated as zero rather than failing the
// whole command, since this is a log line, not a correctness check.
func dirSizeOrZero(dir string) int64 {
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	return total
}
