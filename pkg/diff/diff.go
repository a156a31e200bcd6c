// ABOUTME: Line-level diff engine between two content snapshots
// ABOUTME: Myers shortest edit script; deletions come before insertions in each change block

package diff

import (
	"strings"

	"github.com/nainya/promptvault/pkg/errs"
	"github.com/nainya/promptvault/pkg/model"
)

// Op is a hunk operation
type Op int

const (
	OpEqual Op = iota
	OpInsert
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpEqual:
		return "equal"
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Hunk is a run of lines sharing one operation
type Hunk struct {
	Op    Op
	Lines []string
}

// Result is an ordered edit script from A to B
type Result struct {
	Hunks []Hunk
}

// Stats counts lines per operation
type Stats struct {
	Equal    int
	Inserted int
	Deleted  int
}

// Stats returns line counts for the result
func (r Result) Stats() Stats {
	var s Stats
	for _, h := range r.Hunks {
		switch h.Op {
		case OpEqual:
			s.Equal += len(h.Lines)
		case OpInsert:
			s.Inserted += len(h.Lines)
		case OpDelete:
			s.Deleted += len(h.Lines)
		}
	}
	return s
}

// Identical reports whether the result contains no edits
func (r Result) Identical() bool {
	for _, h := range r.Hunks {
		if h.Op != OpEqual {
			return false
		}
	}
	return true
}

// Lines splits content on "\n". Empty content has no lines; a trailing
// newline yields a final empty line.
func Lines(content string) []string {
	if content == "" {
		return nil
	}
	return strings.Split(content, "\n")
}

// Versions diffs two versions of the same prompt
func Versions(a, b *model.PromptVersion) (Result, error) {
	if a == nil || b == nil {
		return Result{}, errs.InvalidArgument("both versions are required")
	}
	if a.PromptID != b.PromptID {
		return Result{}, errs.InvalidArgument("versions %s and %s belong to different prompts", a.VersionID, b.VersionID)
	}
	return Compute(Lines(a.Content), Lines(b.Content)), nil
}

// Compute returns the minimal line edit script transforming a into b
func Compute(a, b []string) Result {
	return group(script(a, b))
}

type edit struct {
	op   Op
	line string
}

// script returns one edit per line in document order
func script(a, b []string) []edit {
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix &&
		a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	edits := make([]edit, 0, len(a)+len(b))
	for _, line := range a[:prefix] {
		edits = append(edits, edit{OpEqual, line})
	}
	edits = append(edits, myers(a[prefix:len(a)-suffix], b[prefix:len(b)-suffix])...)
	for _, line := range a[len(a)-suffix:] {
		edits = append(edits, edit{OpEqual, line})
	}
	return edits
}

// myers finds a shortest edit script in O((N+M)D) time
func myers(a, b []string) []edit {
	n, m := len(a), len(b)
	switch {
	case n == 0 && m == 0:
		return nil
	case n == 0:
		return allOf(OpInsert, b)
	case m == 0:
		return allOf(OpDelete, a)
	}

	limit := n + m
	offset := limit
	v := make([]int, 2*limit+2)
	var trace [][]int

search:
	for d := 0; d <= limit; d++ {
		trace = append(trace, append([]int(nil), v...))
		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[offset+k-1] < v[offset+k+1]) {
				x = v[offset+k+1]
			} else {
				x = v[offset+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[offset+k] = x
			if x >= n && y >= m {
				break search
			}
		}
	}

	// Walk the trace backwards from (n, m)
	reversed := make([]edit, 0, n+m)
	x, y := n, m
	for d := len(trace) - 1; d >= 0; d-- {
		vd := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && vd[offset+k-1] < vd[offset+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := vd[offset+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			reversed = append(reversed, edit{OpEqual, a[x-1]})
			x--
			y--
		}
		if d == 0 {
			break
		}
		if x == prevX {
			reversed = append(reversed, edit{OpInsert, b[y-1]})
			y--
		} else {
			reversed = append(reversed, edit{OpDelete, a[x-1]})
			x--
		}
	}

	for i, j := 0, len(reversed)-1; i < j; i, j = i+1, j-1 {
		reversed[i], reversed[j] = reversed[j], reversed[i]
	}
	return reversed
}

func allOf(op Op, lines []string) []edit {
	edits := make([]edit, len(lines))
	for i, line := range lines {
		edits[i] = edit{op, line}
	}
	return edits
}

// group merges per-line edits into hunks. Between two equal runs all
// deletions are emitted before all insertions.
func group(edits []edit) Result {
	var hunks []Hunk
	var dels, ins []string

	flush := func() {
		if len(dels) > 0 {
			hunks = append(hunks, Hunk{Op: OpDelete, Lines: dels})
			dels = nil
		}
		if len(ins) > 0 {
			hunks = append(hunks, Hunk{Op: OpInsert, Lines: ins})
			ins = nil
		}
	}

	for _, e := range edits {
		switch e.op {
		case OpDelete:
			dels = append(dels, e.line)
		case OpInsert:
			ins = append(ins, e.line)
		default:
			flush()
			if n := len(hunks); n > 0 && hunks[n-1].Op == OpEqual {
				hunks[n-1].Lines = append(hunks[n-1].Lines, e.line)
			} else {
				hunks = append(hunks, Hunk{Op: OpEqual, Lines: []string{e.line}})
			}
		}
	}
	flush()

	return Result{Hunks: hunks}
}
