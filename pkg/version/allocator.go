// ABOUTME: Sequence allocator for per-prompt version numbers
// ABOUTME: Compare-and-swap on the head marker; never reuses or skips a number

package version

import (
	"fmt"

	"github.com/nainya/promptvault/pkg/storage"
)

// Allocator hands out version numbers. It holds no state of its own:
// the head marker lives in storage next to the version log.
type Allocator struct{}

// Next advances the head of promptID from expected to expected+1 and returns
// the new number. It fails with storage.ErrConflict when another writer
// moved the head first; the caller must re-read the head and try again.
func (Allocator) Next(tx storage.Tx, promptID string, expected int) (int, error) {
	if expected < 0 {
		return 0, fmt.Errorf("allocate version for %s: negative head %d", promptID, expected)
	}

	next := expected + 1
	if err := tx.CompareAndSetHead(promptID, expected, next); err != nil {
		return 0, fmt.Errorf("allocate version %d for %s: %w", next, promptID, err)
	}
	return next, nil
}
