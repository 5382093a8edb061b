package main

// See doc.go for documentation
import (
	"bufio"
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/Manish7093/compose/composetable"
	"github.com/Manish7093/compose/keysym"
	"github.com/grailbio/base/grail"
)

var (
	namesPath     = flag.String("keysym-names", "", "Tab-separated keysym name table: name, hex code")
	reverseEndian = flag.Bool("reverse-endian", false, "Byte-swap the blob for an opposite-endian host")
)

// nameTable is a flat file keysym service for offline cache builds.
type nameTable struct {
	codes map[string]uint32
	names map[uint32]string
}

func (t *nameTable) CodeOf(name string) uint32 {
	if c, ok := t.codes[name]; ok {
		return c
	}
	return keysym.VoidSymbol
}

func (t *nameTable) NameOf(code uint32) string { return t.names[code] }

func (t *nameTable) ToUnicode(code uint32) rune { return keysym.CodePoint(code) }

func readNames(path string) (*nameTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t := &nameTable{codes: map[string]uint32{}, names: map[uint32]string{}}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, hex, ok := strings.Cut(scanner.Text(), "\t")
		if !ok {
			continue
		}
		code, err := strconv.ParseUint(strings.TrimPrefix(hex, "0x"), 16, 32)
		if err != nil {
			continue
		}
		t.codes[name] = uint32(code)
		if _, seen := t.names[uint32(code)]; !seen {
			t.names[uint32(code)] = name
		}
	}
	return t, scanner.Err()
}

func main() {
	shutdown := grail.Init()
	defer shutdown()
	flag.Parse()

	if flag.NArg() != 1 || *namesPath == "" {
		panic("usage: compose-cache --keysym-names=names.tsv <compose-file>")
	}
	km, err := readNames(*namesPath)
	if err != nil {
		panic(err.Error())
	}
	table, err := composetable.New(km, flag.Arg(0), nil)
	if err != nil {
		panic(err.Error())
	}
	if table == nil {
		panic("no compose sequences in " + flag.Arg(0))
	}
	blob, err := table.Serialize(*reverseEndian)
	if err != nil {
		panic(err.Error())
	}
	if _, err := os.Stdout.Write(blob); err != nil {
		panic(err.Error())
	}
}
