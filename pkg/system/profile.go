package system

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Profile describes the host a node runs on. It is reported by doctor.
type Profile struct {
	OS           string            `json:"os"`
	Distro       string            `json:"distro,omitempty"`
	Version      string            `json:"version,omitempty"`
	Kernel       string            `json:"kernel,omitempty"`
	Arch         string            `json:"arch"`
	LoginShell   string            `json:"loginShell,omitempty"`
	DefaultShell string            `json:"defaultShell"`
	Shells       map[string]string `json:"shells"`
}

func Detect() *Profile {
	profile := &Profile{
		OS:           runtime.GOOS,
		Arch:         runtime.GOARCH,
		DefaultShell: DefaultShell(),
		Shells:       make(map[string]string),
	}

	switch runtime.GOOS {
	case "linux":
		profile.LoginShell = os.Getenv("SHELL")
		profile.Distro, profile.Version = parseOSRelease("/etc/os-release")
		profile.Kernel, _ = uname("-r")
	case "darwin":
		profile.LoginShell = os.Getenv("SHELL")
		profile.Distro = "macos"
		profile.Kernel, _ = uname("-r")
	case "windows":
		profile.Distro = "windows"
		if os.Getenv("PSModulePath") != "" {
			profile.LoginShell = ShellPowerShell
		} else if os.Getenv("ComSpec") != "" {
			profile.LoginShell = ShellCmd
		}
	}

	for _, name := range []string{ShellSh, ShellBash, ShellZsh, ShellCmd, ShellPowerShell, ShellPwsh} {
		if path, ok := Which(name); ok {
			profile.Shells[name] = path
		}
	}
	return profile
}

// HasShell reports whether the interpreter for shell was found on PATH.
func (p *Profile) HasShell(shell string) bool {
	_, ok := p.Shells[NormalizeShell(shell)]
	return ok
}

func parseOSRelease(path string) (string, string) {
	file, err := os.Open(path)
	if err != nil {
		return "", ""
	}
	defer file.Close()

	var distro, version string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "ID=") {
			distro = strings.Trim(strings.TrimPrefix(line, "ID="), "\"'")
		}
		if strings.HasPrefix(line, "VERSION_ID=") {
			version = strings.Trim(strings.TrimPrefix(line, "VERSION_ID="), "\"'")
		}
	}
	return distro, version
}

func uname(arg string) (string, error) {
	out, err := exec.Command("uname", arg).Output()
	if err != nil {
		return "", fmt.Errorf("uname %s: %w", arg, err)
	}
	return strings.TrimSpace(string(out)), nil
}
