package composetable

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/Manish7093/compose/encoding/composefile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
}

func TestNewFromRecordsPartition(t *testing.T) {
	recs := []composefile.Record{
		rec("ắ", keyDeadBreve, keyDeadAcute, 0x61), // U+1EAF, single scalar, narrow
		rec("'n", keyMultiKey, 0x6e),               // two scalars, wide
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return compareRecords(recs[i].Sequence, recs[j].Sequence, 3) < 0
	})
	tb, err := NewFromRecords(recs, 3, 7)
	require.NoError(t, err)

	assert.Equal(t, 1, tb.nNarrow)
	assert.Equal(t, 1, tb.nWide)
	assert.Equal(t, 2, tb.NumSequences())
	assert.Equal(t, uint32(7), tb.ID())

	stride := 3 + 2
	require.Len(t, tb.data16, stride)
	assert.Equal(t, uint16(0x1eaf), tb.data16[stride-2])
	assert.Equal(t, uint16(0), tb.data16[stride-1])

	require.Len(t, tb.wideKeys, stride)
	assert.Equal(t, uint16(2), tb.wideKeys[stride-2]) // value count
	assert.Equal(t, uint16(0), tb.wideKeys[stride-1]) // pool index
	assert.Equal(t, []uint32{'\'', 'n'}, tb.wideVals)
	// The unused trailing key cell is zero.
	assert.Equal(t, uint16(0), tb.wideKeys[2])
}

func TestNewFromRecordsExactFFFFIsWide(t *testing.T) {
	tb, err := NewFromRecords([]composefile.Record{rec(string(rune(0xffff)), 0x61)}, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, tb.nNarrow)
	assert.Equal(t, 1, tb.nWide)
}

func TestCompareRecords(t *testing.T) {
	assert.Equal(t, 0, compareRecords([]uint32{0x61}, []uint32{0x61}, 4))
	assert.True(t, compareRecords([]uint32{0x61}, []uint32{0x61, 0x62}, 4) < 0)
	assert.True(t, compareRecords([]uint32{0x61, 0x62}, []uint32{0x61}, 4) > 0)
	// Comparison is on the low 16 bits.
	assert.Equal(t, 0, compareRecords([]uint32{0x1000061}, []uint32{0x61}, 4))
}

func TestDedupSameKeys(t *testing.T) {
	recs := []composefile.Record{
		rec("á", keyDeadAcute, 0x61),
		rec("à", keyDeadAcute, 0x61), // same keys, different value: earlier dropped
		rec("é", keyDeadAcute, 0x65),
		rec("é", keyDeadAcute, 0x65), // exact duplicate
		rec("æ", keyMultiKey, 0x61, 0x65),
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return compareRecords(recs[i].Sequence, recs[j].Sequence, 3) < 0
	})
	out := dedupSameKeys(recs, 3)
	require.Len(t, out, 3)
	for i := 0; i+1 < len(out); i++ {
		assert.NotZero(t, compareRecords(out[i].Sequence, out[i+1].Sequence, 3))
	}
	// The later record of a duplicate pair survives.
	for _, r := range out {
		if len(r.Sequence) == 2 && r.Sequence[1] == 0x61 {
			assert.Equal(t, []rune("à"), r.Values)
		}
	}
}

func TestNewSortsAndDedups(t *testing.T) {
	km := testKeymap{}
	path := filepath.Join(t.TempDir(), "Compose")
	writeFile(t, path, `<Multi_key> <o> <e> : "œ"
<dead_acute> <a> : "á"
<dead_acute> <a> : "á"
`)
	tb, err := New(km, path, nil)
	require.NoError(t, err)
	require.NotNil(t, tb)
	assert.Equal(t, 2, tb.NumSequences())
	assert.Equal(t, 3, tb.MaxSeqLen())
	assert.False(t, tb.CanLoadEnUS())

	// Rows are sorted: dead_acute (0xfe51) precedes Multi_key (0xff20).
	stride := tb.maxSeqLen + 2
	assert.Equal(t, uint16(0xfe51), tb.data16[0])
	assert.Equal(t, uint16(0xff20), tb.data16[stride])
}

func TestNewDropsBaselineDuplicates(t *testing.T) {
	km := testKeymap{}
	dir := t.TempDir()

	base := filepath.Join(dir, "base")
	writeFile(t, base, `include "%L"
<Multi_key> <o> <e> : "œ"
`)
	baseTable, err := New(km, base, nil)
	require.NoError(t, err)
	require.NotNil(t, baseTable)
	assert.True(t, baseTable.CanLoadEnUS())
	peers := []*Table{baseTable}

	// A second file repeating a baseline sequence keeps only its own.
	user := filepath.Join(dir, "user")
	writeFile(t, user, `<Multi_key> <o> <e> : "œ"
<Multi_key> <s> <s> : "ß"
`)
	tb, err := New(km, user, peers)
	require.NoError(t, err)
	require.NotNil(t, tb)
	assert.Equal(t, 1, tb.NumSequences())
	_, finished, matched, out := tb.Check(km, []uint32{keyMultiKey, 0x73, 0x73}, false)
	assert.True(t, finished && matched)
	assert.Equal(t, "ß", out)

	// The same keys with a different output are not a duplicate.
	conflicting := filepath.Join(dir, "conflicting")
	writeFile(t, conflicting, `<Multi_key> <o> <e> : "x"
`)
	tb, err = New(km, conflicting, peers)
	require.NoError(t, err)
	require.NotNil(t, tb)
	assert.Equal(t, 1, tb.NumSequences())
}

func TestNewDropsAlgorithmicDuplicates(t *testing.T) {
	km := testKeymap{}
	dir := t.TempDir()
	path := filepath.Join(dir, "Compose")
	// dead_acute+a composes to á algorithmically, so with a %L table in
	// play the record is redundant.
	writeFile(t, path, `include "%L"
<dead_acute> <a> : "á"
`)
	tb, err := New(km, path, nil)
	require.NoError(t, err)
	require.NotNil(t, tb)
	assert.True(t, tb.CanLoadEnUS())
	assert.Equal(t, 0, tb.NumSequences())
}

func TestNewEmptyFileNoBaseline(t *testing.T) {
	km := testKeymap{}
	path := filepath.Join(t.TempDir(), "Compose")
	writeFile(t, path, "# nothing here\n")
	tb, err := New(km, path, nil)
	require.NoError(t, err)
	assert.Nil(t, tb)
}
