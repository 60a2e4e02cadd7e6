package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	s := String()
	if !strings.Contains(s, Version) || !strings.Contains(s, runtime.GOOS) {
		t.Fatalf("unexpected version string %q", s)
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Fatalf("unexpected platform %q", info.Platform)
	}
	if info.GoVersion == "" {
		t.Fatalf("expected go version")
	}
}
