package composetable

import (
	"fmt"
	"os"
	"path/filepath"

	"blainsmith.com/go/seahash"
	"github.com/Manish7093/compose/encoding/composefile"
	"github.com/Manish7093/compose/keysym"
	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/log"
)

// ErrorDomain tags errors this package surfaces to UIs; MigrationError
// carries it together with a numeric code for message localisation.
const ErrorDomain = "compose-table"

// CodeUpdateComposeTable is the MigrationError sub-code.
const CodeUpdateComposeTable = 1

// MigrationError reports that a compose file written for an older cache
// format replaced the builtin sequences without asking for them back.
// When Rewritten is set the file has already been amended with
// `include "%L"` and its table was rebuilt; the error remains so the UI
// can tell the user.  Recoverable: callers keep the list and display the
// message.
type MigrationError struct {
	Path      string
	Rewritten bool
}

func (e *MigrationError) Error() string {
	if e.Rewritten {
		return fmt.Sprintf("Compose files replace the builtin compose sequences. "+
			"To keep them and add your own sequences on top, the line:\n\n"+
			"  include \"%%L\"\n\nhas been added to the Compose file:\n%s.", e.Path)
	}
	return fmt.Sprintf("Compose files replace the builtin compose sequences. "+
		"To keep them and add your own sequences on top, you need to add the line:\n\n"+
		"  include \"%%L\"\n\nto the Compose file:\n%s.", e.Path)
}

// Domain returns ErrorDomain.
func (e *MigrationError) Domain() string { return ErrorDomain }

// Code returns CodeUpdateComposeTable.
func (e *MigrationError) Code() int { return CodeUpdateComposeTable }

// List is an ordered collection of compose tables, deduplicated by id.
// It belongs to a single goroutine; the tables it holds are immutable
// and may be read concurrently.
type List struct {
	tables []*Table
}

// Tables returns the held tables, most recently added first.
func (l *List) Tables() []*Table { return l.tables }

func (l *List) find(id uint32) *Table {
	for _, t := range l.tables {
		if t.id == id {
			return t
		}
	}
	return nil
}

// AddTable registers an already-built table, ignoring duplicates.
func (l *List) AddTable(t *Table) {
	if t == nil || l.find(t.id) != nil {
		return
	}
	l.tables = append([]*Table{t}, l.tables...)
}

// AddArray ingests a builtin static table: nSeqs packed narrow rows of
// maxSeqLen+2 cells each.  The data is copied; its content hash is the
// table id, so re-adding the same array is a no-op.
func (l *List) AddArray(data []uint16, maxSeqLen, nSeqs int) {
	if data == nil || maxSeqLen > composefile.MaxComposeLen || nSeqs < 0 {
		return
	}
	length := (maxSeqLen + 2) * nSeqs
	if length > len(data) {
		return
	}
	id := uint32(seahash.Sum64(unsafeUint16sToBytes(data[:length])))
	if l.find(id) != nil {
		return
	}
	cells := make([]uint16, length)
	copy(cells, data)
	l.tables = append([]*Table{{
		maxSeqLen: maxSeqLen,
		id:        id,
		data16:    cells,
		nNarrow:   nSeqs,
	}}, l.tables...)
}

// AddFile loads the compose file at path, from cache when fresh and by
// parse+build otherwise, saving a fresh cache after a build.  Adding a
// path already in the list is a no-op.  A *MigrationError return is
// recoverable: the (rebuilt) table has still been added.
func (l *List) AddFile(km keysym.Table, path string) error {
	if l.find(farm.Hash32([]byte(path))) != nil {
		return nil
	}
	cached, savedVersion := LoadCache(path)
	if cached != nil {
		l.tables = append([]*Table{cached}, l.tables...)
		return nil
	}

	t, err := New(km, path, l.tables)
	if err != nil {
		return err
	}
	if t == nil {
		return nil
	}
	var migErr error
	if savedVersion > 0 && savedVersion < Version && !t.canLoadEnUS && t.NumSequences() < 100 {
		if rewriteErr := rewriteComposeFile(path); rewriteErr == nil {
			migErr = &MigrationError{Path: path, Rewritten: true}
			if t2, err2 := New(km, path, l.tables); err2 == nil && t2 != nil {
				t = t2
			}
		} else {
			log.Error.Printf("Failed to rewrite %s: %v", path, rewriteErr)
			migErr = &MigrationError{Path: path}
		}
	}
	SaveCache(t)
	l.tables = append([]*Table{t}, l.tables...)
	return migErr
}

const rewriteBanner = "# IBus has rewritten this file to add the line:\n" +
	"\n" +
	"include \"%L\"\n" +
	"\n" +
	"# This is necessary to add your own Compose sequences\n" +
	"# in addition to the builtin sequences of IBus. If this\n" +
	"# is not what you want, just remove that line.\n" +
	"#\n" +
	"# A backup of the previous file contents has been made.\n" +
	"\n" +
	"\n"

// rewriteComposeFile prepends the %L banner to a compose file, keeping a
// backup of the prior contents and replacing the file atomically.
func rewriteComposeFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path+"~", content, 0644); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(rewriteBanner); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
