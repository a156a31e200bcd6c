package diff

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	godiff "github.com/sourcegraph/go-diff/diff"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/promptvault/pkg/errs"
	"github.com/nainya/promptvault/pkg/model"
)

func version(promptID string, number int, content string) *model.PromptVersion {
	return &model.PromptVersion{
		VersionID:     fmt.Sprintf("%s-%d", promptID, number),
		PromptID:      promptID,
		VersionNumber: number,
		Content:       content,
	}
}

func TestLines(t *testing.T) {
	assert.Nil(t, Lines(""))
	assert.Equal(t, []string{"a"}, Lines("a"))
	assert.Equal(t, []string{"a", "b"}, Lines("a\nb"))
	assert.Equal(t, []string{"a", ""}, Lines("a\n"))
}

func TestEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want []Hunk
	}{
		{"both empty", "", "", nil},
		{"identical", "a\nb", "a\nb", []Hunk{{OpEqual, []string{"a", "b"}}}},
		{"from empty", "", "a\nb", []Hunk{{OpInsert, []string{"a", "b"}}}},
		{"to empty", "a\nb", "", []Hunk{{OpDelete, []string{"a", "b"}}}},
		{"replace middle", "a\nb\nc", "a\nx\nc", []Hunk{
			{OpEqual, []string{"a"}},
			{OpDelete, []string{"b"}},
			{OpInsert, []string{"x"}},
			{OpEqual, []string{"c"}},
		}},
		{"append line", "a", "a\nb", []Hunk{
			{OpEqual, []string{"a"}},
			{OpInsert, []string{"b"}},
		}},
		{"trailing newline", "a", "a\n", []Hunk{
			{OpEqual, []string{"a"}},
			{OpInsert, []string{""}},
		}},
		{"hello world", "Hello world", "Hello", []Hunk{
			{OpDelete, []string{"Hello world"}},
			{OpInsert, []string{"Hello"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Compute(Lines(tt.a), Lines(tt.b))
			assert.Equal(t, tt.want, got.Hunks)
		})
	}
}

func TestDeletesBeforeInserts(t *testing.T) {
	got := Compute([]string{"a", "b", "c", "d"}, []string{"x", "y", "c", "z"})
	require.Len(t, got.Hunks, 5)
	assert.Equal(t, []Op{OpDelete, OpInsert, OpEqual, OpDelete, OpInsert}, ops(got))
	assert.Equal(t, []string{"a", "b"}, got.Hunks[0].Lines)
	assert.Equal(t, []string{"x", "y"}, got.Hunks[1].Lines)
}

func ops(r Result) []Op {
	out := make([]Op, len(r.Hunks))
	for i, h := range r.Hunks {
		out[i] = h.Op
	}
	return out
}

// lcs is the textbook quadratic longest common subsequence length
func lcs(a, b []string) int {
	dp := make([][]int, len(a)+1)
	for i := range dp {
		dp[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else {
				dp[i][j] = max(dp[i+1][j], dp[i][j+1])
			}
		}
	}
	return dp[0][0]
}

func randomLines(r *rand.Rand, n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = string(rune('a' + r.IntN(4)))
	}
	return lines
}

func TestMinimalAndReconstructs(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 300; i++ {
		a := randomLines(r, r.IntN(12))
		b := randomLines(r, r.IntN(12))
		result := Compute(a, b)

		var gotA, gotB []string
		for _, h := range result.Hunks {
			require.NotEmpty(t, h.Lines)
			if h.Op != OpInsert {
				gotA = append(gotA, h.Lines...)
			}
			if h.Op != OpDelete {
				gotB = append(gotB, h.Lines...)
			}
		}
		assert.Equal(t, strings.Join(a, "\n"), strings.Join(gotA, "\n"))
		assert.Equal(t, strings.Join(b, "\n"), strings.Join(gotB, "\n"))

		stats := result.Stats()
		assert.Equal(t, len(a)+len(b)-2*lcs(a, b), stats.Inserted+stats.Deleted, "a=%v b=%v", a, b)

		// No two adjacent hunks share an op, and inserts never precede deletes
		for k := 1; k < len(result.Hunks); k++ {
			assert.NotEqual(t, result.Hunks[k-1].Op, result.Hunks[k].Op)
			assert.False(t, result.Hunks[k-1].Op == OpInsert && result.Hunks[k].Op == OpDelete)
		}
	}
}

func TestDeterministic(t *testing.T) {
	a := Lines("one\ntwo\nthree\nfour")
	b := Lines("zero\ntwo\nfour\nfive")
	assert.Equal(t, Compute(a, b), Compute(a, b))
}

func TestVersions(t *testing.T) {
	_, err := Versions(version("p", 1, "a"), version("q", 1, "a"))
	assert.True(t, errs.IsInvalidArgument(err))

	_, err = Versions(nil, version("p", 1, "a"))
	assert.True(t, errs.IsInvalidArgument(err))

	result, err := Versions(version("p", 1, "a\nb"), version("p", 2, "a\nc"))
	require.NoError(t, err)
	assert.Equal(t, Stats{Equal: 1, Inserted: 1, Deleted: 1}, result.Stats())
	assert.False(t, result.Identical())
}

func TestUnified(t *testing.T) {
	out, err := Unified(version("p", 1, "a\nb\nc"), version("p", 2, "a\nx\nc"), 3)
	require.NoError(t, err)
	assert.Contains(t, out, "--- v1\n")
	assert.Contains(t, out, "+++ v2\n")
	assert.Contains(t, out, "@@ -1,3 +1,3 @@")
	assert.Contains(t, out, " a\n-b\n+x\n c\n")

	fd, err := godiff.ParseFileDiff([]byte(out))
	require.NoError(t, err)
	require.Len(t, fd.Hunks, 1)
	assert.EqualValues(t, 3, fd.Hunks[0].OrigLines)
}

func TestUnifiedSplitsDistantChanges(t *testing.T) {
	var a []string
	for i := 0; i < 20; i++ {
		a = append(a, fmt.Sprintf("line %d", i))
	}
	b := append([]string(nil), a...)
	b[1] = "changed 1"
	b[18] = "changed 18"

	out, err := Unified(version("p", 1, strings.Join(a, "\n")), version("p", 2, strings.Join(b, "\n")), 2)
	require.NoError(t, err)

	fd, err := godiff.ParseFileDiff([]byte(out))
	require.NoError(t, err)
	require.Len(t, fd.Hunks, 2)
	assert.EqualValues(t, 1, fd.Hunks[0].OrigStartLine)
	assert.EqualValues(t, 4, fd.Hunks[0].OrigLines)
	assert.EqualValues(t, 17, fd.Hunks[1].OrigStartLine)
	assert.EqualValues(t, 4, fd.Hunks[1].OrigLines)
}

func TestUnifiedFromEmpty(t *testing.T) {
	out, err := Unified(version("p", 1, ""), version("p", 2, "a\nb"), -1)
	require.NoError(t, err)
	assert.Contains(t, out, "@@ -0,0 +1,2 @@")

	out, err = Unified(version("p", 1, "same"), version("p", 2, "same"), 3)
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = Unified(version("p", 1, "a"), version("q", 2, "b"), 3)
	assert.True(t, errs.IsInvalidArgument(err))
}
