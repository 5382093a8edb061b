package composetable

import (
	"testing"

	"github.com/Manish7093/compose/encoding/composefile"
	"github.com/Manish7093/compose/keysym"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	keyMultiKey       = 0xff20
	keyDeadAcute      = 0xfe51
	keyDeadCircumflex = 0xfe52
	keyDeadBreve      = 0xfe55
)

type testKeymap struct{}

var testNames = map[string]uint32{
	"Multi_key":       keyMultiKey,
	"dead_acute":      keyDeadAcute,
	"dead_circumflex": keyDeadCircumflex,
	"dead_breve":      keyDeadBreve,
	"space":           0x20,
	"apostrophe":      0x27,
	"a":               0x61,
	"e":               0x65,
	"n":               0x6e,
	"o":               0x6f,
	"s":               0x73,
}

var testCodes = func() map[uint32]string {
	m := make(map[uint32]string)
	for name, code := range testNames {
		m[code] = name
	}
	return m
}()

func (testKeymap) CodeOf(name string) uint32 {
	if c, ok := testNames[name]; ok {
		return c
	}
	return keysym.VoidSymbol
}

func (testKeymap) NameOf(code uint32) string { return testCodes[code] }

func (testKeymap) ToUnicode(code uint32) rune { return keysym.CodePoint(code) }

func rec(vals string, seq ...uint32) composefile.Record {
	return composefile.Record{Sequence: seq, Values: []rune(vals)}
}

func mustBuild(t *testing.T, maxSeqLen int, recs ...composefile.Record) *Table {
	t.Helper()
	tb, err := NewFromRecords(recs, maxSeqLen, 42)
	require.NoError(t, err)
	return tb
}

func TestCheckIncremental(t *testing.T) {
	km := testKeymap{}
	tb := mustBuild(t, 3,
		rec("á", keyDeadAcute, 0x61),
		rec("æ", keyMultiKey, 0x61, 0x65),
	)

	// Proper prefixes report a partial match with no output.
	found, finished, matched, out := tb.Check(km, []uint32{keyMultiKey}, false)
	assert.True(t, found)
	assert.False(t, finished)
	assert.False(t, matched)
	assert.Equal(t, "", out)

	found, finished, matched, _ = tb.Check(km, []uint32{keyMultiKey, 0x61}, false)
	assert.True(t, found)
	assert.False(t, finished)
	assert.False(t, matched)

	// The full sequence completes with its output.
	found, finished, matched, out = tb.Check(km, []uint32{keyMultiKey, 0x61, 0x65}, false)
	assert.True(t, found)
	assert.True(t, finished)
	assert.True(t, matched)
	assert.Equal(t, "æ", out)

	found, finished, matched, out = tb.Check(km, []uint32{keyDeadAcute, 0x61}, false)
	assert.True(t, found)
	assert.True(t, finished)
	assert.True(t, matched)
	assert.Equal(t, "á", out)

	// A non-continuation misses.
	found, _, _, _ = tb.Check(km, []uint32{keyMultiKey, 0x61, 0x6f}, false)
	assert.False(t, found)
	found, _, _, _ = tb.Check(km, []uint32{0x6f}, false)
	assert.False(t, found)

	// Over-long buffers are rejected outright.
	found, _, _, _ = tb.Check(km, []uint32{keyMultiKey, 0x61, 0x65, 0x65}, false)
	assert.False(t, found)
}

func TestCheckExtensible(t *testing.T) {
	km := testKeymap{}
	tb := mustBuild(t, 3,
		rec("é", keyDeadAcute, 0x65),
		rec("ế", keyDeadAcute, 0x65, 0x65),
	)

	// A complete match that a longer sequence extends: output is ready
	// but finished stays unset so the caller may wait.
	found, finished, matched, out := tb.Check(km, []uint32{keyDeadAcute, 0x65}, false)
	assert.True(t, found)
	assert.False(t, finished)
	assert.True(t, matched)
	assert.Equal(t, "é", out)

	found, finished, matched, out = tb.Check(km, []uint32{keyDeadAcute, 0x65, 0x65}, false)
	assert.True(t, found)
	assert.True(t, finished)
	assert.True(t, matched)
	assert.Equal(t, "ế", out)
}

func TestCheckWide(t *testing.T) {
	km := testKeymap{}
	tb := mustBuild(t, 2,
		rec("'n", 0x6f, 0x6e), // two scalars
		rec("😀", 0x6f, 0x73), // outside the BMP
	)
	assert.Equal(t, 0, tb.nNarrow)
	assert.Equal(t, 2, tb.nWide)

	found, finished, matched, out := tb.Check(km, []uint32{0x6f, 0x6e}, true)
	assert.True(t, found)
	assert.True(t, finished)
	assert.True(t, matched)
	assert.Equal(t, "'n", out)

	_, _, matched, out = tb.Check(km, []uint32{0x6f, 0x73}, true)
	assert.True(t, matched)
	assert.Equal(t, "😀", out)

	// The narrow section is empty.
	found, _, _, _ = tb.Check(km, []uint32{0x6f, 0x6e}, false)
	assert.False(t, found)
}

func TestCheckKeysymFlagSymmetry(t *testing.T) {
	km := testKeymap{}
	// 0xd143 is in the MUSICAL SYMBOL range (flag 0x10000); 0x1a1 is a
	// punned legacy name (flag 0x1000000).  Stored rows truncate to 16
	// bits; typing the flagged keysym must still match.
	tb := mustBuild(t, 2,
		rec("x", 0x1a1, 0x61),
		rec("y", 0xd143, 0x61),
	)
	for _, typed := range [][]uint32{
		{0xd143 + 0x10000, 0x61},
		{0x1a1 + 0x1000000, 0x61},
	} {
		found, finished, matched, _ := tb.Check(km, typed, false)
		assert.True(t, found, "typed %#x", typed[0])
		assert.True(t, finished)
		assert.True(t, matched)
	}
	// The bare 16-bit spelling also matches: comparison falls back to
	// the masked difference, which is zero for the same low bits.
	found, _, _, _ := tb.Check(km, []uint32{0xd143, 0x61}, false)
	assert.True(t, found)
}

func TestCheckSharedPrefixRowsSorted(t *testing.T) {
	km := testKeymap{}
	// Several rows share the prefix <Multi_key>; a one-key query finds
	// them, and the stored rows are in strictly increasing key order.
	tb := mustBuild(t, 3,
		rec("¡", keyMultiKey, 0x21, 0x21),
		rec("ª", keyMultiKey, 0x61, 0x5f),
		rec("º", keyMultiKey, 0x6f, 0x5f),
	)
	found, _, _, _ := tb.Check(km, []uint32{keyMultiKey}, false)
	assert.True(t, found)

	stride := tb.maxSeqLen + 2
	for r := 0; r+1 < tb.nNarrow; r++ {
		prev := tb.data16[r*stride : (r+1)*stride]
		next := tb.data16[(r+1)*stride : (r+2)*stride]
		lt := false
		for i := 0; i < stride-2; i++ {
			if prev[i] != next[i] {
				lt = prev[i] < next[i]
				break
			}
		}
		expect.True(t, lt)
	}
}
