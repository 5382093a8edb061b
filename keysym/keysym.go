// Package keysym holds the small amount of keysym knowledge the compose
// engine needs: the host-supplied name service, the comparison flag used
// when matching typed keysyms against 16-bit table cells, and the dead-key
// to Unicode data.  The full keysym name and Unicode tables live in the
// host; this package never embeds them.
package keysym

// VoidSymbol is the sentinel the host name service returns for an unknown
// keysym name.
const VoidSymbol = 0xffffff

const (
	deadGrave = 0xfe50
	deadGreek = 0xfe8c
)

// Table is the keysym service supplied by the host input method.
type Table interface {
	// CodeOf resolves a keysym name to its code, VoidSymbol if unknown.
	CodeOf(name string) uint32
	// NameOf returns the canonical name of a keysym code, "" if none.
	NameOf(code uint32) string
	// ToUnicode returns the Unicode scalar a keysym produces on its own,
	// 0 when the keysym has no character.
	ToUnicode(code uint32) rune
}

// IsDeadKey reports whether key lies in the dead-key range dead_grave
// (0xfe50) through dead_greek (0xfe8c).  dead_lowline and the later
// dead_* keysyms (0xfe90 and up) are outside it.
func IsDeadKey(key uint32) bool {
	return key >= deadGrave && key <= deadGreek
}

// Flag returns the offset between a keysym as stored in a compose table
// (truncated to 16 bits) and the keysym a user actually types.  Keysyms
// defined only as "<Uxxxx>" in Compose files are typed with the 0x1000000
// Unicode flag; the Musical Symbol block keeps its 0x10000 plane bit.
// Lookup adds the flag to the stored cell so both spellings match.
func Flag(names Table, key uint32) uint32 {
	if key <= 0xff {
		return 0
	}
	// en-US covers the MUSICAL SYMBOL block.
	if key >= 0xd143 && key <= 0xd1e8 {
		return 0x10000
	}
	switch key {
	case 0x1a1, 0x1af, 0x1b7:
		// Legacy names (Aogonek, Zabovedot, caron) punned by the en
		// compose file for ohorn, Uhorn and EZH.
		return 0x1000000
	}
	name := names.NameOf(key)
	if name == "" || (len(name) >= 2 && name[0] == '0' && name[1] == 'x') {
		return 0x1000000
	}
	// Pointer_* keysyms appear as <UFEF9>-style entries in the file.
	if len(name) >= 3 && name[:3] == "Poi" {
		return 0x1000000
	}
	return 0
}

// CodePoint returns the Unicode scalar directly encoded by a keysym: the
// Latin-1 range maps to itself and 0x1000000-flagged keysyms carry their
// code point.  Hosts typically build their ToUnicode on top of this plus
// their own tables.
func CodePoint(key uint32) rune {
	switch {
	case key >= 0x20 && key <= 0x7e:
		return rune(key)
	case key >= 0xa0 && key <= 0xff:
		return rune(key)
	case key&0x1000000 != 0 && key&0xffffff >= 0x100:
		return rune(key & 0xffffff)
	}
	return 0
}
