package edit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplice_OutcomesAlignWithInput(t *testing.T) {
	content := []byte("aaa bbb ccc")

	edits := []*Edit{
		NewFromBefore("f", 8, 11, "CCC", "ccc"),
		NewFromBefore("f", 0, 3, "aaa", "aaa"), // already applied
		NewFromBefore("f", 4, 7, "BBB", "bbb"),
	}
	out, outcomes, err := Splice(content, edits)
	require.NoError(t, err)
	assert.Equal(t, "aaa BBB CCC", string(out))
	assert.Equal(t, []Outcome{Applied, AlreadyApplied, Applied}, outcomes)
}

func TestSplice_EquivalentToSequentialApplication(t *testing.T) {
	// Three edits declared in scrambled order. Applying them one at a
	// time in declaration order, recomputing offsets after each, gives
	// the same result as the single batched splice.
	content := "0123456789"

	// Declaration order: replace [6,8)="67" -> "X", insert "YY" at 2,
	// replace [9,10)="9" -> "ZZZ".
	edits := []*Edit{
		NewFromBefore("f", 6, 8, "X", "67"),
		New("f", 2, 2, "YY", NoVerification),
		NewFromBefore("f", 9, 10, "ZZZ", "9"),
	}

	out, _, err := Splice([]byte(content), edits)
	require.NoError(t, err)

	// Sequential: "0123456789" -> "012345X89" -> "01YY2345X89"
	// -> "01YY2345X8ZZZ".
	assert.Equal(t, "01YY2345X8ZZZ", string(out))
}

func TestSplice_OverlapRejected(t *testing.T) {
	content := []byte("0123456789")
	edits := []*Edit{
		New("f", 2, 6, "x", NoVerification),
		New("f", 5, 8, "y", NoVerification),
	}
	_, _, err := Splice(content, edits)
	var overlap *OverlapError
	require.ErrorAs(t, err, &overlap)
}

func TestSplice_TouchingSpansAllowed(t *testing.T) {
	content := []byte("0123456789")
	edits := []*Edit{
		NewFromBefore("f", 2, 5, "A", "234"),
		NewFromBefore("f", 5, 8, "B", "567"),
	}
	out, outcomes, err := Splice(content, edits)
	require.NoError(t, err)
	assert.Equal(t, "01AB89", string(out))
	assert.Equal(t, []Outcome{Applied, Applied}, outcomes)
}

func TestSplice_WitnessCheckedPerSpan(t *testing.T) {
	content := []byte("aaa bbb")
	edits := []*Edit{
		NewFromBefore("f", 0, 3, "xxx", "aaa"),
		New("f", 4, 7, "yyy", ExactMatch("WRONG")),
	}
	_, _, err := Splice(content, edits)
	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestApplyBatch_SingleFileSingleWrite(t *testing.T) {
	guard := testGuard(t)
	path := writeFile(t, guard, "main.rs", "fn a() {}\nfn b() {}\nfn c() {}\n")

	edits := []*Edit{
		NewFromBefore("main.rs", 3, 4, "x", "a"),
		NewFromBefore("main.rs", 13, 14, "y", "b"),
		NewFromBefore("main.rs", 23, 24, "z", "c"),
	}
	results, err := ApplyBatch(edits, guard)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.Equal(t, Applied, r.Outcome)
		assert.Equal(t, "main.rs", r.File)
	}
	assert.Equal(t, "fn x() {}\nfn y() {}\nfn z() {}\n", readFile(t, path))
}

func TestApplyBatch_MultipleFiles(t *testing.T) {
	guard := testGuard(t)
	pathA := writeFile(t, guard, "a.rs", "const A: u8 = 1;")
	pathB := writeFile(t, guard, "b.rs", "const B: u8 = 2;")

	edits := []*Edit{
		NewFromBefore("a.rs", 14, 15, "7", "1"),
		NewFromBefore("b.rs", 14, 15, "8", "2"),
	}
	results, err := ApplyBatch(edits, guard)
	require.NoError(t, err)
	assert.Equal(t, Applied, results[0].Outcome)
	assert.Equal(t, Applied, results[1].Outcome)
	assert.Equal(t, "const A: u8 = 7;", readFile(t, pathA))
	assert.Equal(t, "const B: u8 = 8;", readFile(t, pathB))
}

func TestApplyBatch_AllAlreadyAppliedSkipsWrite(t *testing.T) {
	guard := testGuard(t)
	path := writeFile(t, guard, "f.rs", "let v = 5;")
	before, err := os.Stat(path)
	require.NoError(t, err)

	edits := []*Edit{
		New("f.rs", 8, 9, "5", NoVerification),
	}
	results, err := ApplyBatch(edits, guard)
	require.NoError(t, err)
	assert.Equal(t, AlreadyApplied, results[0].Outcome)

	after, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime(), "no write may occur")
}

func TestApplyBatch_Empty(t *testing.T) {
	guard := testGuard(t)
	results, err := ApplyBatch(nil, guard)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestApplyBatch_OverlapLeavesFileUntouched(t *testing.T) {
	guard := testGuard(t)
	content := "0123456789"
	path := writeFile(t, guard, "f.rs", content)

	edits := []*Edit{
		New("f.rs", 1, 5, "x", NoVerification),
		New("f.rs", 4, 9, "y", NoVerification),
	}
	_, err := ApplyBatch(edits, guard)
	var overlap *OverlapError
	require.ErrorAs(t, err, &overlap)
	assert.Equal(t, content, readFile(t, path))
}

func TestApplyBatch_RelativeAndAbsoluteSameFile(t *testing.T) {
	guard := testGuard(t)
	path := writeFile(t, guard, "f.rs", "aa bb")

	edits := []*Edit{
		NewFromBefore("f.rs", 0, 2, "xx", "aa"),
		NewFromBefore(filepath.Join(guard.Root(), "f.rs"), 3, 5, "yy", "bb"),
	}
	results, err := ApplyBatch(edits, guard)
	require.NoError(t, err)
	assert.Equal(t, Applied, results[0].Outcome)
	assert.Equal(t, Applied, results[1].Outcome)
	assert.Equal(t, "xx yy", readFile(t, path))
}
