// Package composefile parses X11 Compose-style description files.  Each
// non-comment line either declares a compose sequence:
//
//	<Multi_key> <a> <e>	: "æ"	ae ligature
//
// or pulls in another file:
//
//	include "%L"
//
// The parser is tolerant: malformed lines are logged and skipped, and
// only an unreadable top-level file fails the parse.  Include targets go
// through %-substitution and an inode-based cycle guard before being
// parsed depth-first in place.
package composefile

import (
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/Manish7093/compose/keysym"
	"github.com/grailbio/base/log"
	"github.com/pkg/errors"
)

// MaxComposeLen is the longest key sequence a single record may declare.
const MaxComposeLen = 24

// Record is one parsed compose declaration.
type Record struct {
	// Sequence holds the keysym codes, in typing order.  Length is in
	// [1, MaxComposeLen].
	Sequence []uint32
	// Values holds the Unicode scalars the sequence emits.
	Values []rune
	// Comment is the stripped text after the closing quote, if any.
	Comment string
}

// File is the flat result of parsing a compose file and all its includes.
type File struct {
	Records []Record
	// MaxSeqLen is the longest Sequence across Records.
	MaxSeqLen int
	// CanLoadEnUS is set when the file (or an include) contained
	// `include "%L"`, asking for the builtin English baseline.
	CanLoadEnUS bool
}

// Parse reads the compose file at path, following includes.  Keysym names
// are resolved through km.  Only a top-level read failure is returned;
// everything else is logged and skipped.
func Parse(km keysym.Table, path string) (*File, error) {
	f := &File{}
	if err := parseInto(km, path, f, nil); err != nil {
		return nil, err
	}
	return f, nil
}

func parseInto(km keysym.Table, path string, f *File, ancestors []fileID) error {
	contents, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "compose file %s", path)
	}
	for _, line := range strings.Split(string(contents), "\n") {
		rec, include, ok := parseLine(km, line)
		if !ok {
			continue
		}
		if rec != nil {
			if len(rec.Sequence) > f.MaxSeqLen {
				f.MaxSeqLen = len(rec.Sequence)
			}
			f.Records = append(f.Records, *rec)
			continue
		}
		if include == localeMarker {
			f.CanLoadEnUS = true
			continue
		}
		if include != "" {
			f.followInclude(km, path, include, ancestors)
		}
	}
	return nil
}

// parseLine parses one line.  It returns a record, or a non-empty include
// target (possibly the %L marker), or ok=false when the line holds
// neither.
func parseLine(km keysym.Table, line string) (*Record, string, bool) {
	line = strings.TrimLeft(line, " \t")
	if line == "" || line[0] == '#' {
		return nil, "", false
	}
	if rest, isInclude := strings.CutPrefix(line, "include "); isInclude {
		rest = strings.TrimLeft(rest, " ")
		if strings.HasPrefix(rest, "\"") {
			rest = rest[1:]
			if i := strings.IndexByte(rest, '"'); i >= 0 {
				rest = rest[:i]
			}
		}
		target, err := expandIncludePath(rest)
		if err != nil {
			log.Error.Printf("%v", err)
			return nil, "", false
		}
		return nil, target, true
	}

	seqPart, valPart, found := strings.Cut(line, ":")
	if !found {
		log.Error.Printf("No delimiter ':': %s", line)
		return nil, "", false
	}
	rec := &Record{}
	if !parseSequence(km, rec, strings.TrimSpace(seqPart), line) {
		return nil, "", false
	}
	if !parseValue(rec, strings.TrimSpace(valPart), line) {
		return nil, "", false
	}
	return rec, "", true
}

// isCodepoint reports whether tok is a U<hex> code point literal.  A bare
// "U" is a keysym name, not a code point.
func isCodepoint(tok string) bool {
	if len(tok) < 2 || tok[0] != 'U' {
		return false
	}
	for _, c := range tok[1:] {
		if !isHexDigit(byte(c)) {
			return false
		}
	}
	return true
}

func isHexDigit(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func parseSequence(km keysym.Table, rec *Record, seq, line string) bool {
	words := strings.Split(seq, "<")
	if len(words) < 2 {
		log.Error.Printf("too few words; key sequence format is <a> <b>...: %s", line)
		return false
	}
	for _, word := range words[1:] {
		if word == "" {
			continue
		}
		end := strings.IndexByte(word, '>')
		if end <= 0 {
			log.Error.Printf("key sequence format is <a> <b>...: %s", line)
			return false
		}
		tok := word[:end]
		var code uint32
		if isCodepoint(tok) {
			v, _ := strconv.ParseUint(tok[1:], 16, 32)
			code = uint32(v)
		} else {
			code = km.CodeOf(tok)
		}
		if code >= 0x10000 && keysym.Flag(km, 0xffff&code) == 0 {
			log.Error.Printf("The keysym %s > 0xffff is not supported: %s", tok, line)
		}
		if code == keysym.VoidSymbol {
			log.Error.Printf("Could not get code point of keysym %s: %s", tok, line)
			return false
		}
		rec.Sequence = append(rec.Sequence, code)
	}
	if len(rec.Sequence) == 0 || len(rec.Sequence) > MaxComposeLen {
		log.Error.Printf("The max number of sequences is %d: %s", MaxComposeLen, line)
		rec.Sequence = nil
		return false
	}
	return true
}

// parseValue parses the double-quoted value and trailing comment.  The
// closing quote is the first one not preceded by an odd run of
// backslashes.  A value starting with a backslash followed by an octal
// digit yields a single scalar from the leading octal run; anything else
// is UTF-8 with \" and \\ escapes.
func parseValue(rec *Record, val, line string) bool {
	open := strings.IndexByte(val, '"')
	if open < 0 {
		log.Error.Printf("Need to double-quote the value: %s: %s", val, line)
		return false
	}
	body := val[open+1:]
	end := -1
	for i := 0; i < len(body); i++ {
		if body[i] != '"' {
			continue
		}
		nbs := 0
		for j := i - 1; j >= 0 && body[j] == '\\'; j-- {
			nbs++
		}
		if nbs%2 == 0 {
			end = i
			break
		}
	}
	if end < 0 {
		log.Error.Printf("Need to double-quote the value: %s: %s", val, line)
		return false
	}
	ustr := body[:end]
	rec.Comment = strings.TrimSpace(body[end+1:])

	if len(ustr) >= 2 && ustr[0] == '\\' && ustr[1] >= '0' && ustr[1] <= '8' {
		// Only the first octal run is taken; "\8" starts an empty run
		// and yields 0.
		i := 1
		for i < len(ustr) && ustr[i] >= '0' && ustr[i] <= '7' {
			i++
		}
		var v uint64
		if i > 1 {
			v, _ = strconv.ParseUint(ustr[1:i], 8, 32)
		}
		rec.Values = []rune{rune(v)}
		return true
	}

	if !utf8.ValidString(ustr) {
		log.Error.Printf("Invalid Unicode: %s in %s", ustr, line)
		return false
	}
	runes := []rune(ustr)
	if len(runes) == 0 {
		log.Error.Printf("Invalid Unicode: \"\" in %s", line)
		return false
	}
	for i := 0; i < len(runes); i++ {
		if runes[i] == '\\' {
			i++
			if i >= len(runes) || (runes[i] != '"' && runes[i] != '\\') {
				log.Error.Printf("Invalid backslash: %s: %s", val, line)
				rec.Values = nil
				return false
			}
		}
		rec.Values = append(rec.Values, runes[i])
	}
	return true
}
