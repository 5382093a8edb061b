package composefile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Manish7093/compose/keysym"
	"github.com/grailbio/base/log"
	"golang.org/x/sys/unix"
)

// X11LocaleDataDir is the system X11 locale directory substituted for %S
// and searched for the English baseline.
const X11LocaleDataDir = "/usr/share/X11/locale"

// localeMarker is the expanded form of `include "%L"`: load the builtin
// English baseline instead of a file.
const localeMarker = "%L"

// Overridden in tests.
var localeDataDir = X11LocaleDataDir

// expandIncludePath rewrites %-sequences in an include target: %H is
// $HOME, %S the system locale directory, %% a literal percent and %L the
// baseline marker, which must be the whole path.
func expandIncludePath(path string) (string, error) {
	var out strings.Builder
	for i := 0; i < len(path); i++ {
		if path[i] != '%' {
			out.WriteByte(path[i])
			continue
		}
		if i+1 >= len(path) {
			return "", fmt.Errorf("while parsing XCompose include target %s, found unknown substitution character at end; the include has been ignored", path)
		}
		i++
		switch path[i] {
		case 'H':
			home := os.Getenv("HOME")
			if home == "" {
				return "", fmt.Errorf("while parsing XCompose include target %s, %%H replacement failed because HOME is not defined; the include has been ignored", path)
			}
			out.WriteString(home)
		case 'L':
			if rest := path[i+1:]; rest != "" {
				return "", fmt.Errorf("%q after \"%%L\" is not supported in XCompose include target", rest)
			}
			if out.Len() > 0 {
				return "", fmt.Errorf("%q before \"%%L\" is not supported in XCompose include target", out.String())
			}
			return localeMarker, nil
		case 'S':
			out.WriteString(localeDataDir)
		case '%':
			out.WriteByte('%')
		default:
			return "", fmt.Errorf("while parsing XCompose include target %s, found unknown substitution character '%c'; the include has been ignored", path, path[i])
		}
	}
	return out.String(), nil
}

// enComposeFile returns the system English baseline Compose file, or ""
// when none is installed.
func enComposeFile() string {
	for _, lang := range []string{"en_US.UTF-8", "en_US", "en.UTF-8", "en"} {
		path := filepath.Join(localeDataDir, lang, "Compose")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// fileID identifies a file for the recursion guard.
type fileID struct {
	dev uint64
	ino uint64
}

func statID(path string) (fileID, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fileID{}, err
	}
	return fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, nil
}

// followInclude vets an include target and parses it in place.  Targets
// that alias the current file or any ancestor are skipped; a target that
// is the system English baseline turns into a %L marker.
func (f *File) followInclude(km keysym.Table, parent, include string, ancestors []fileID) {
	includeID, err := statID(include)
	if err != nil {
		log.Error.Printf("Cannot access %s: %v", include, err)
		return
	}
	parentID, err := statID(parent)
	if err != nil {
		log.Error.Printf("Cannot access %s: %v", parent, err)
		return
	}
	if includeID == parentID {
		log.Error.Printf("Found recursive nest same file %s", include)
		return
	}
	for _, a := range ancestors {
		if includeID == a {
			log.Error.Printf("Found recursive nest same file %s", include)
			return
		}
	}
	if en := enComposeFile(); en != "" {
		enID, err := statID(en)
		if err != nil {
			log.Error.Printf("Cannot access %s: %v", en, err)
			return
		}
		if includeID == enID {
			log.Printf("System en_US Compose is already loaded %s", include)
			f.CanLoadEnUS = true
			return
		}
	}
	if err := parseInto(km, include, f, append(ancestors, parentID)); err != nil {
		log.Error.Printf("%v", err)
	}
}
