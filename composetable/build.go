package composetable

import (
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/Manish7093/compose/encoding/composefile"
	"github.com/Manish7093/compose/keysym"
	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
)

// ErrTableTooLarge is returned when the packed table sizing would
// overflow the platform size.
var ErrTableTooLarge = fmt.Errorf("compose table allocation overflows")

// New parses the compose file at path and builds its packed table.
// peers are the already-loaded tables; when any of them (or the file
// itself) pulls in the English baseline, records the baseline already
// produces are dropped so user files stay minimal.  New returns
// (nil, nil) when the file contributes neither sequences nor a %L
// request; a top-level read failure is returned as an error.
func New(km keysym.Table, path string, peers []*Table) (*Table, error) {
	f, err := composefile.Parse(km, path)
	if err != nil {
		return nil, err
	}
	recs := f.Records
	if len(recs) == 0 && !f.CanLoadEnUS {
		return nil, nil
	}

	canLoadEnUSByAny := f.CanLoadEnUS
	for _, p := range peers {
		if p.canLoadEnUS {
			canLoadEnUSByAny = true
			break
		}
	}
	if canLoadEnUSByAny {
		recs = dedupAgainstTables(km, recs, peers)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return compareRecords(recs[i].Sequence, recs[j].Sequence, f.MaxSeqLen) < 0
	})
	recs = dedupSameKeys(recs, f.MaxSeqLen)

	id := farm.Hash32([]byte(path))
	if len(recs) == 0 {
		log.Printf("compose file %s does not include any keys besides keys in en-us compose file", path)
		if f.CanLoadEnUS {
			return &Table{id: id, canLoadEnUS: true}, nil
		}
		return nil, nil
	}

	if os.Getenv("IBUS_COMPOSE_TABLE_PRINT") != "" {
		printRecords(km, recs, f.MaxSeqLen)
	}
	t, err := NewFromRecords(recs, f.MaxSeqLen, id)
	if err != nil {
		return nil, err
	}
	t.canLoadEnUS = f.CanLoadEnUS
	return t, nil
}

// compareRecords orders two key sequences by their 16-bit-masked cells,
// zero-padded to maxSeqLen, so shorter sequences precede longer ones
// sharing a prefix.
func compareRecords(a, b []uint32, maxSeqLen int) int {
	for i := 0; i < maxSeqLen; i++ {
		var ca, cb uint32
		if i < len(a) {
			ca = a[i] & 0xffff
		}
		if i < len(b) {
			cb = b[i] & 0xffff
		}
		if ca != cb {
			return int(ca) - int(cb)
		}
		if ca == 0 {
			return 0
		}
	}
	return 0
}

// dedupAgainstTables drops records whose keys already produce exactly
// their values through a peer table or the algorithmic dead-key path.
func dedupAgainstTables(km keysym.Table, recs []composefile.Record, peers []*Table) []composefile.Record {
	kept := recs[:0]
	for _, rec := range recs {
		if reproduced(km, rec, peers) {
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func reproduced(km keysym.Table, rec composefile.Record, peers []*Table) bool {
	for _, p := range peers {
		for _, wide := range []bool{false, true} {
			_, finished, matched, out := p.Check(km, rec.Sequence, wide)
			if finished && matched && out == string(rec.Values) {
				return true
			}
		}
	}
	if matched, out := CheckAlgorithmically(km, rec.Sequence); matched && out != 0 {
		if len(rec.Values) == 1 && rec.Values[0] == out {
			return true
		}
	}
	return false
}

// dedupSameKeys removes the earlier of adjacent records with identical
// key sequences; the input must already be sorted.
func dedupSameKeys(recs []composefile.Record, maxSeqLen int) []composefile.Record {
	kept := recs[:0]
	for i, rec := range recs {
		if i+1 < len(recs) && compareRecords(rec.Sequence, recs[i+1].Sequence, maxSeqLen) == 0 {
			if differentValues(rec.Values, recs[i+1].Values) {
				log.Error.Printf("Deleting different outputs for same sequence: %v vs %v",
					rec.Values, recs[i+1].Values)
			} else {
				log.Debug.Printf("Deleting same compose output for same sequence: %v", rec.Values)
			}
			continue
		}
		kept = append(kept, rec)
	}
	return kept
}

func differentValues(a, b []rune) bool {
	for i, v := range a {
		if i >= len(b) || b[i] != v {
			return true
		}
	}
	return false
}

// NewFromRecords packs normalised records into a table.  Records whose
// output is one scalar below U+FFFF land in the narrow section; the rest
// go to the wide section with their scalars pooled.
func NewFromRecords(recs []composefile.Record, maxSeqLen int, id uint32) (*Table, error) {
	stride := maxSeqLen + 2
	nTotal := len(recs)
	nNarrow := nTotal
	vTotal := 0
	for _, rec := range recs {
		if isWideValue(rec.Values) {
			nNarrow--
			vTotal += len(rec.Values)
		}
	}
	nWide := nTotal - nNarrow

	if nNarrow > 0 && nNarrow > math.MaxInt/stride/2 {
		log.Error.Printf("Too long allocation %d x %d", nNarrow, stride)
		return nil, ErrTableTooLarge
	}
	if nWide > 0 && (nWide > math.MaxInt/stride/2 || vTotal > math.MaxInt/4) {
		log.Error.Printf("Too long allocation %d x %d x %d", nWide, stride, vTotal)
		return nil, ErrTableTooLarge
	}

	t := &Table{
		maxSeqLen: maxSeqLen,
		id:        id,
		nNarrow:   nNarrow,
		nWide:     nWide,
	}
	if nNarrow > 0 {
		t.data16 = make([]uint16, nNarrow*stride)
	}
	if nWide > 0 {
		t.wideKeys = make([]uint16, nWide*stride)
		t.wideVals = make([]uint32, 0, vTotal)
	}

	n, m := 0, 0
	for _, rec := range recs {
		wide := isWideValue(rec.Values)
		dst := t.data16[n:]
		if wide {
			dst = t.wideKeys[m:]
		}
		for i := 0; i < maxSeqLen; i++ {
			if i < len(rec.Sequence) {
				dst[i] = uint16(rec.Sequence[i])
			} else {
				dst[i] = 0
			}
		}
		if wide {
			dst[maxSeqLen] = uint16(len(rec.Values))
			dst[maxSeqLen+1] = uint16(len(t.wideVals))
			for _, v := range rec.Values {
				t.wideVals = append(t.wideVals, uint32(v))
			}
			m += stride
		} else {
			dst[maxSeqLen] = uint16(rec.Values[0])
			dst[maxSeqLen+1] = 0
			n += stride
		}
	}
	return t, nil
}

func isWideValue(values []rune) bool {
	return len(values) > 1 || values[0] >= 0xffff
}

// printRecords dumps the normalised sequence list when
// IBUS_COMPOSE_TABLE_PRINT is set.
func printRecords(km keysym.Table, recs []composefile.Record, maxSeqLen int) {
	stride := maxSeqLen + 2
	for _, rec := range recs {
		fmt.Print("  ")
		for i := 0; i < maxSeqLen; i++ {
			if i < len(rec.Sequence) {
				name := km.NameOf(rec.Sequence[i])
				if name == "" {
					name = "(null)"
				}
				fmt.Printf("%s, ", name)
			} else {
				fmt.Print("0, ")
			}
		}
		fmt.Print("    ")
		for _, v := range rec.Values {
			fmt.Printf("%#06X, ", v)
		}
		fmt.Printf(" /* %s */,\n", rec.Comment)
	}
	fmt.Fprintf(os.Stderr, "TOTAL_SIZE: %d\nMAX_COMPOSE_LEN: %d\nN_INDEX_STRIDE: %d\n",
		len(recs)*stride, maxSeqLen, stride)
}
