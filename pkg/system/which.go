package system

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DefaultPathExt is used on Windows when PATHEXT is unset.
const DefaultPathExt = ".EXE;.CMD;.BAT;.COM"

// Which resolves a bare executable name against PATH. Names containing a path
// separator are never resolved.
func Which(bin string) (string, bool) {
	return LookupIn(bin, filepath.SplitList(os.Getenv("PATH")), executableExtensions(runtime.GOOS, os.Getenv("PATHEXT")))
}

// LookupIn searches dirs in order, trying bin with each extension candidate.
func LookupIn(bin string, dirs []string, exts []string) (string, bool) {
	bin = strings.TrimSpace(bin)
	if bin == "" || strings.ContainsAny(bin, `/\`) {
		return "", false
	}
	if len(exts) == 0 {
		exts = []string{""}
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, ext := range exts {
			candidate := filepath.Join(dir, bin+ext)
			if isRegularFile(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

func executableExtensions(goos, pathext string) []string {
	if goos != "windows" {
		return []string{""}
	}
	if strings.TrimSpace(pathext) == "" {
		pathext = DefaultPathExt
	}
	var exts []string
	for _, ext := range strings.Split(pathext, ";") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" {
			exts = append(exts, ext)
		}
	}
	return exts
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
