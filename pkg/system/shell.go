package system

import (
	"runtime"
	"strings"
)

// Shell names understood by the runner and the approval policy.
const (
	ShellSh         = "sh"
	ShellBash       = "bash"
	ShellZsh        = "zsh"
	ShellCmd        = "cmd"
	ShellPowerShell = "powershell"
	ShellPwsh       = "pwsh"
	// ShellDirect runs the program without any interpreter.
	ShellDirect = "direct"
)

// DefaultShell is the canonical interpreter used when a request names none.
func DefaultShell() string {
	return defaultShellFor(runtime.GOOS)
}

func defaultShellFor(goos string) string {
	if goos == "windows" {
		return ShellPowerShell
	}
	return ShellSh
}

// NormalizeShell lower-cases and trims a shell name, strips a trailing .exe,
// and substitutes DefaultShell for an empty value.
func NormalizeShell(shell string) string {
	s := strings.ToLower(strings.TrimSpace(shell))
	s = strings.TrimSuffix(s, ".exe")
	if s == "" {
		return DefaultShell()
	}
	return s
}
