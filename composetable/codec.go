package composetable

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Magic opens every serialised table, immediately followed by Version as
// a u16.  Caches carrying any other version are rejected and rebuilt.
const Magic = "IBusComposeTable"

// Version is the current cache format version.
const Version uint16 = 5

const headerSize = len(Magic) + 2

// Serialize packs the table into its on-disk form: the magic and
// version, the section shape, the three payload arrays each preceded by
// its element count, and the baseline-request byte.  Scalars are written
// in host byte order; reverseEndian byte-swaps every u16/u32 to produce
// a cache for a host of the opposite endianness.
func (t *Table) Serialize(reverseEndian bool) ([]byte, error) {
	if t.maxSeqLen == 0 && !t.canLoadEnUS {
		return nil, errors.New("compose table has no key sequences")
	}
	if t.nNarrow == 0 && t.nWide == 0 && !t.canLoadEnUS {
		return nil, errors.New("compose table has no key sequences")
	}
	if t.nWide > 0 && len(t.wideVals) == 0 {
		return nil, errors.New("compose key sequences are loaded but the values could not be loaded")
	}
	if t.nWide == 0 && len(t.wideVals) > 0 {
		return nil, errors.New("compose values are loaded but the key sequences could not be loaded")
	}

	bo := binary.AppendByteOrder(binary.NativeEndian)
	if reverseEndian {
		bo = oppositeByteOrder()
	}
	size := headerSize + 4*2 + 4 + 2*len(t.data16) + 4 + 2*len(t.wideKeys) + 4 + 4*len(t.wideVals) + 1
	out := make([]byte, 0, size)
	out = append(out, Magic...)
	out = bo.AppendUint16(out, Version)
	out = bo.AppendUint16(out, uint16(t.maxSeqLen))
	out = bo.AppendUint16(out, uint16(t.nNarrow))
	out = bo.AppendUint16(out, uint16(t.nWide))
	out = bo.AppendUint16(out, uint16(len(t.wideVals)))
	out = bo.AppendUint32(out, uint32(len(t.data16)))
	for _, v := range t.data16 {
		out = bo.AppendUint16(out, v)
	}
	out = bo.AppendUint32(out, uint32(len(t.wideKeys)))
	for _, v := range t.wideKeys {
		out = bo.AppendUint16(out, v)
	}
	out = bo.AppendUint32(out, uint32(len(t.wideVals)))
	for _, v := range t.wideVals {
		out = bo.AppendUint32(out, v)
	}
	composeType := byte(0)
	if t.canLoadEnUS {
		composeType = 1
	}
	out = append(out, composeType)
	return out, nil
}

// Deserialize reconstructs a table from a serialised blob.  The returned
// version is the one stored in the blob even when it is rejected, so
// callers can drive migration.  The narrow and wide key arrays reference
// data zero-copy; data must stay untouched for the table's lifetime and
// is retained as the table's backing buffer.
func Deserialize(data []byte) (*Table, uint16, error) {
	if len(data) < headerSize {
		return nil, 0, errors.New("cache is broken")
	}
	if string(data[:len(Magic)]) != Magic {
		return nil, 0, errors.New("cache is not IBusComposeTable")
	}
	version := binary.NativeEndian.Uint16(data[len(Magic):])
	if version != Version {
		return nil, version, errors.Errorf("cache version is different: %d != %d", version, Version)
	}

	r := reader{buf: data, off: headerSize}
	maxSeqLen := int(r.uint16())
	nNarrow := int(r.uint16())
	nWide := int(r.uint16())
	secondSize := int(r.uint16())
	stride := maxSeqLen + 2

	if maxSeqLen == 0 || (nNarrow == 0 && nWide == 0) {
		// A %L-only table legitimately has no rows.
		if len(data) < 1 || data[len(data)-1] == 0 {
			return nil, version, errors.Errorf("cache size is not correct %d %d %d", maxSeqLen, nNarrow, nWide)
		}
	}
	if nWide > 0 && secondSize == 0 {
		return nil, version, errors.New("32bit key sequences are loaded but the values could not be loaded")
	}
	if nWide == 0 && secondSize > 0 {
		return nil, version, errors.New("32bit key sequences could not be loaded but the values are loaded")
	}

	narrow, ok := r.uint16Array()
	if !ok || len(narrow) != nNarrow*stride {
		return nil, version, errors.Errorf("cache size is not correct %d %d %d", maxSeqLen, nNarrow, len(narrow))
	}
	wide, ok := r.uint16Array()
	if !ok || len(wide) != nWide*stride {
		return nil, version, errors.Errorf("32bit cache size is not correct %d %d %d", maxSeqLen, nWide, len(wide))
	}
	vals, ok := r.uint32Array()
	if !ok || len(vals) != secondSize {
		return nil, version, errors.Errorf("32bit cache size is not correct %d %d", maxSeqLen, secondSize)
	}
	composeType, ok := r.byte()
	if !ok {
		return nil, version, errors.New("cache is broken")
	}

	t := &Table{
		maxSeqLen:   maxSeqLen,
		canLoadEnUS: composeType != 0,
		data16:      narrow,
		nNarrow:     nNarrow,
		wideKeys:    wide,
		nWide:       nWide,
		wideVals:    vals,
		raw:         data,
	}
	return t, version, nil
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) uint16() uint16 {
	if r.off+2 > len(r.buf) {
		r.off = len(r.buf) + 1
		return 0
	}
	v := binary.NativeEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) byte() (byte, bool) {
	if r.off >= len(r.buf) {
		return 0, false
	}
	v := r.buf[r.off]
	r.off++
	return v, true
}

// uint16Array returns a zero-copy view of a length-prefixed u16 array.
// Array payloads start at even offsets by construction, so the cast is
// aligned.
func (r *reader) uint16Array() ([]uint16, bool) {
	if r.off+4 > len(r.buf) {
		return nil, false
	}
	n := int(binary.NativeEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	if n < 0 || r.off+2*n > len(r.buf) {
		return nil, false
	}
	d := unsafeBytesToUint16s(r.buf[r.off : r.off+2*n])
	r.off += 2 * n
	return d, true
}

// uint32Array copies a length-prefixed u32 array out of the buffer; its
// offset depends on the preceding array lengths so the alignment needed
// for a view is not guaranteed.
func (r *reader) uint32Array() ([]uint32, bool) {
	if r.off+4 > len(r.buf) {
		return nil, false
	}
	n := int(binary.NativeEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	if n < 0 || r.off+4*n > len(r.buf) {
		return nil, false
	}
	d := make([]uint32, n)
	for i := range d {
		d[i] = binary.NativeEndian.Uint32(r.buf[r.off:])
		r.off += 4
	}
	return d, true
}

func oppositeByteOrder() binary.AppendByteOrder {
	if binary.NativeEndian.Uint16([]byte{0x01, 0x02}) == 0x0201 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
