package composetable

import (
	"sort"
	"strings"
	"unicode"

	"github.com/Manish7093/compose/keysym"
	"github.com/grailbio/base/log"
)

// Table is a packed compose table.  It either owns its arrays (built in
// memory) or borrows them from raw, the backing buffer of a loaded cache
// file; raw is nil in the first case.
type Table struct {
	maxSeqLen   int
	id          uint32
	canLoadEnUS bool

	data16  []uint16 // narrow rows
	nNarrow int

	wideKeys []uint16 // wide rows
	nWide    int
	wideVals []uint32 // pooled wide outputs

	raw []byte
}

// MaxSeqLen returns the longest sequence length stored in the table.
func (t *Table) MaxSeqLen() int { return t.maxSeqLen }

// ID returns the table identity, a hash of the source file path (or of
// the raw array for builtin tables).
func (t *Table) ID() uint32 { return t.id }

// CanLoadEnUS reports whether the source file asked for the builtin
// English baseline via `include "%L"`.
func (t *Table) CanLoadEnUS() bool { return t.canLoadEnUS }

// NumSequences returns the total number of stored sequences.
func (t *Table) NumSequences() int { return t.nNarrow + t.nWide }

// compareSeq compares a typed key buffer against one packed row.  The
// stored cell is widened by its keysym flag before the equality test so
// that a user typing the full keysym still hits the truncated row; on
// mismatch the sign comes from the 16-bit-masked difference, which is
// also the sort order of the rows.
func compareSeq(km keysym.Table, typed []uint32, row []uint16) int {
	for i := 0; i < len(typed); i++ {
		tk := typed[i]
		sk := uint32(row[i])
		if tk != sk+keysym.Flag(km, sk) {
			return int(tk&0xffff) - int(sk)
		}
	}
	return 0
}

// Check looks up the typed keysym buffer in the narrow (wide=false) or
// wide (wide=true) section.  found reports any prefix or full match;
// matched reports that output holds the sequence's characters; finished
// reports that no longer sequence extends the buffer, so the caller
// should commit output and reset.  A full match that other sequences
// extend returns matched=true, finished=false so the caller may wait for
// more input.
func (t *Table) Check(km keysym.Table, keys []uint32, wide bool) (found, finished, matched bool, output string) {
	if len(keys) == 0 || len(keys) > t.maxSeqLen {
		return
	}
	rows, n := t.data16, t.nNarrow
	if wide {
		rows, n = t.wideKeys, t.nWide
	}
	if n == 0 {
		return
	}
	stride := t.maxSeqLen + 2
	row := func(i int) []uint16 { return rows[i*stride : (i+1)*stride] }

	idx := sort.Search(n, func(i int) bool { return compareSeq(km, keys, row(i)) <= 0 })
	if idx == n || compareSeq(km, keys, row(idx)) != 0 {
		return
	}
	// Back up to the first row matching the prefix; several rows may
	// share it and the shortest sorts first.
	for idx > 0 && compareSeq(km, keys, row(idx-1)) == 0 {
		idx--
	}
	seq := row(idx)
	found = true

	if len(keys) == t.maxSeqLen || seq[len(keys)] == 0 {
		// Complete sequence.
		if wide {
			num := int(seq[t.maxSeqLen])
			vi := int(seq[t.maxSeqLen+1])
			if s, ok := encodeScalars(t.wideVals[vi : vi+num]); ok {
				output = s
				matched = true
			} else {
				log.Error.Printf("Failed to output multiple characters at index %d", vi)
			}
		} else {
			output = string(rune(seq[t.maxSeqLen]))
			matched = true
		}
		// A longer sequence may contain this one as a prefix.
		if idx+1 < n && compareSeq(km, keys, row(idx+1)) == 0 {
			return
		}
		finished = true
	}
	return
}

func encodeScalars(vals []uint32) (string, bool) {
	var sb strings.Builder
	for _, v := range vals {
		r := rune(v)
		if r > unicode.MaxRune || (r >= 0xd800 && r <= 0xdfff) {
			return "", false
		}
		sb.WriteRune(r)
	}
	return sb.String(), true
}
