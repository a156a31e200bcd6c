// ABOUTME: Unified diff rendering of a Result via sourcegraph/go-diff
// ABOUTME: Versions are named v<N> in the file header

package diff

import (
	"fmt"

	godiff "github.com/sourcegraph/go-diff/diff"

	"github.com/nainya/promptvault/pkg/model"
)

// DefaultContext is the number of unchanged lines shown around each change
const DefaultContext = 3

// Unified renders the diff between two versions of one prompt in unified
// format. Identical versions render as the empty string. A negative context
// uses DefaultContext.
func Unified(a, b *model.PromptVersion, context int) (string, error) {
	result, err := Versions(a, b)
	if err != nil {
		return "", err
	}
	if result.Identical() {
		return "", nil
	}
	if context < 0 {
		context = DefaultContext
	}

	fd := &godiff.FileDiff{
		OrigName: fmt.Sprintf("v%d", a.VersionNumber),
		NewName:  fmt.Sprintf("v%d", b.VersionNumber),
		Hunks:    result.unifiedHunks(context),
	}
	out, err := godiff.PrintFileDiff(fd)
	if err != nil {
		return "", fmt.Errorf("render diff v%d..v%d: %w", a.VersionNumber, b.VersionNumber, err)
	}
	return string(out), nil
}

// unifiedHunks splits the edit script into hunks with up to context
// unchanged lines on each side; changes closer than 2*context share a hunk.
func (r Result) unifiedHunks(context int) []*godiff.Hunk {
	var edits []edit
	for _, h := range r.Hunks {
		for _, line := range h.Lines {
			edits = append(edits, edit{h.Op, line})
		}
	}

	// origAt[i] and newAt[i] count lines consumed before edit i
	origAt := make([]int, len(edits)+1)
	newAt := make([]int, len(edits)+1)
	for i, e := range edits {
		origAt[i+1], newAt[i+1] = origAt[i], newAt[i]
		if e.op != OpInsert {
			origAt[i+1]++
		}
		if e.op != OpDelete {
			newAt[i+1]++
		}
	}

	var hunks []*godiff.Hunk
	i := 0
	for i < len(edits) {
		for i < len(edits) && edits[i].op == OpEqual {
			i++
		}
		if i == len(edits) {
			break
		}

		start := max(i-context, 0)
		last := i
		for j := i; j < len(edits); j++ {
			if edits[j].op != OpEqual {
				last = j
			} else if j-last > 2*context {
				break
			}
		}
		end := min(last+context+1, len(edits))

		hunks = append(hunks, buildHunk(edits[start:end], origAt[start], newAt[start]))
		i = end
	}
	return hunks
}

func buildHunk(edits []edit, origBefore, newBefore int) *godiff.Hunk {
	var body []byte
	var origLines, newLines int32
	for _, e := range edits {
		switch e.op {
		case OpEqual:
			body = append(body, ' ')
			origLines++
			newLines++
		case OpDelete:
			body = append(body, '-')
			origLines++
		case OpInsert:
			body = append(body, '+')
			newLines++
		}
		body = append(body, e.line...)
		body = append(body, '\n')
	}

	// An empty side points at the line before the hunk
	origStart := int32(origBefore)
	if origLines > 0 {
		origStart++
	}
	newStart := int32(newBefore)
	if newLines > 0 {
		newStart++
	}

	return &godiff.Hunk{
		OrigStartLine: origStart,
		OrigLines:     origLines,
		NewStartLine:  newStart,
		NewLines:      newLines,
		Body:          body,
	}
}
