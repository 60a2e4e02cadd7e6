package exec

import (
	"strings"

	"github.com/sameehj/kai-node/pkg/system"
)

// Invocation is the concrete program and argv a Request resolves to.
type Invocation struct {
	Program string
	Args    []string
	// CommandLine is the raw command line passed verbatim on Windows, where
	// interpreters parse their own command line. Empty means argv quoting.
	CommandLine string
}

// BuildInvocation selects the interpreter for req.Shell and composes the
// command line from Command and Args. Unknown shells use the platform default.
func BuildInvocation(req Request) Invocation {
	line := commandLine(req.Command, req.Args)
	switch shell := system.NormalizeShell(req.Shell); shell {
	case system.ShellDirect:
		return Invocation{Program: req.Command, Args: append([]string(nil), req.Args...)}
	case system.ShellCmd:
		return Invocation{Program: "cmd.exe", Args: []string{"/C", line}, CommandLine: "cmd.exe /C " + line}
	case system.ShellPwsh, system.ShellPowerShell:
		return powershellInvocation(shell, line)
	case system.ShellSh, system.ShellBash, system.ShellZsh:
		return Invocation{Program: shell, Args: []string{"-c", line}}
	default:
		return BuildInvocation(Request{Command: req.Command, Args: req.Args, Shell: system.DefaultShell()})
	}
}

func powershellInvocation(program, line string) Invocation {
	args := []string{"-NoProfile", "-NonInteractive", "-Command", line}
	return Invocation{
		Program:     program,
		Args:        args,
		CommandLine: program + " " + strings.Join(args, " "),
	}
}

func commandLine(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}
