package pipeline

import (
	"fmt"
	"os"
)

// writeSnapshotAtomic writes data to path.tmp then renames it over path, so
// a concurrent reader of path always sees either the previous content or
// the complete new content.
func writeSnapshotAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s to %s: %w", tmp, path, err)
	}
	return nil
}
