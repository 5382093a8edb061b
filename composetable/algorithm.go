package composetable

import (
	"unicode/utf8"

	"github.com/Manish7093/compose/keysym"
	"golang.org/x/text/unicode/norm"
)

// maxComposeAlgorithmLen caps the permutation search: the inner loop
// tries up to (n-1)! orderings, so 9 keeps the worst case at 40320.
const maxComposeAlgorithmLen = 9

// CheckAlgorithmically composes a buffer of dead keys followed by one
// base key through Unicode NFC instead of a table.  A buffer that is all
// dead keys so far reports matched with a zero scalar, meaning "keep
// composing".  Otherwise the dead keys become combining marks, the
// permutations of the mark tail are normalised in turn, and the first
// ordering that collapses to a single character wins.
func CheckAlgorithmically(km keysym.Table, keys []uint32) (bool, rune) {
	n := len(keys)
	if n > maxComposeAlgorithmLen {
		return false, 0
	}
	i := 0
	for i < n && keysym.IsDeadKey(keys[i]) {
		i++
	}
	if i == n {
		return true, 0
	}
	if i == 0 || i != n-1 {
		return false, 0
	}

	buf := make([]rune, n)
	buf[0] = km.ToUnicode(keys[n-1])
	for j := n - 2; j >= 0; j-- {
		r, _ := keysym.DeadKeyToUnicode(keys[j], true)
		if r == 0 {
			r = km.ToUnicode(keys[j])
		}
		buf[j+1] = r
	}
	if !normalizeNFC(buf) {
		return false, 0
	}
	nfc := norm.NFC.String(string(buf))
	r, _ := utf8.DecodeRuneInString(nfc)
	return true, r
}

// normalizeNFC searches the permutations of buf's combining-mark tail
// for one that NFC-normalises to a single character, reordering buf to
// that permutation on success.  Marks in the same canonical combining
// class are not reordered by normalisation itself, hence the search.
func normalizeNFC(buf []rune) bool {
	n := len(buf)
	nCombinations := 1
	for i := 1; i < n; i++ {
		nCombinations *= i
	}

	// Xorg reuses dead_tilde for the perispomeni diacritic: with a
	// Greek base character, tilde means perispomeni.
	if buf[0] >= 0x390 && buf[0] <= 0x3ff {
		for i := 1; i < n; i++ {
			if buf[i] == 0x303 {
				buf[i] = 0x342
			}
		}
	}

	tmp := make([]rune, n)
	copy(tmp, buf)
	for i := 0; i < nCombinations; i++ {
		canonicalOrdering(tmp)
		if utf8.RuneCountInString(norm.NFC.String(string(tmp))) == 1 {
			copy(buf, tmp)
			return true
		}
		if n <= 2 {
			break
		}
		j := i%(n-1) + 1
		k := (i+1)%(n-1) + 1
		tmp[j], tmp[k] = tmp[k], tmp[j]
	}
	return false
}

// canonicalOrdering applies the Unicode canonical ordering algorithm:
// adjacent marks with non-zero combining classes are bubbled into
// non-decreasing class order; starters stay put.
func canonicalOrdering(buf []rune) {
	for {
		swapped := false
		for i := 1; i < len(buf); i++ {
			a := ccc(buf[i-1])
			b := ccc(buf[i])
			if a > b && b != 0 {
				buf[i-1], buf[i] = buf[i], buf[i-1]
				swapped = true
			}
		}
		if !swapped {
			return
		}
	}
}

func ccc(r rune) uint8 {
	return norm.NFD.PropertiesString(string(r)).CCC()
}
