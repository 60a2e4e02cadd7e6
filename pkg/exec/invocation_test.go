package exec

import (
	"reflect"
	"testing"

	"github.com/sameehj/kai-node/pkg/system"
)

func TestBuildInvocation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		req  Request
		want Invocation
	}{
		{
			name: "sh composes args into line",
			req:  Request{Command: "git", Args: []string{"status", "--short"}, Shell: "sh"},
			want: Invocation{Program: "sh", Args: []string{"-c", "git status --short"}},
		},
		{
			name: "bash is case-insensitive",
			req:  Request{Command: "echo hi", Shell: "BASH"},
			want: Invocation{Program: "bash", Args: []string{"-c", "echo hi"}},
		},
		{
			name: "cmd",
			req:  Request{Command: "dir", Args: []string{"C:\\"}, Shell: "cmd"},
			want: Invocation{Program: "cmd.exe", Args: []string{"/C", "dir C:\\"}, CommandLine: "cmd.exe /C dir C:\\"},
		},
		{
			name: "pwsh",
			req:  Request{Command: "Get-Date", Shell: "pwsh"},
			want: Invocation{
				Program:     "pwsh",
				Args:        []string{"-NoProfile", "-NonInteractive", "-Command", "Get-Date"},
				CommandLine: "pwsh -NoProfile -NonInteractive -Command Get-Date",
			},
		},
		{
			name: "direct keeps argv",
			req:  Request{Command: "git", Args: []string{"log", "--format=%h %s"}, Shell: "direct"},
			want: Invocation{Program: "git", Args: []string{"log", "--format=%h %s"}},
		},
	}

	for _, tc := range cases {
		if got := BuildInvocation(tc.req); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: BuildInvocation() = %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestBuildInvocationFallsBackToDefaultShell(t *testing.T) {
	t.Parallel()

	want := BuildInvocation(Request{Command: "echo hi", Shell: system.DefaultShell()})
	for _, shell := range []string{"", "fish"} {
		if got := BuildInvocation(Request{Command: "echo hi", Shell: shell}); !reflect.DeepEqual(got, want) {
			t.Errorf("shell %q: got %+v, want %+v", shell, got, want)
		}
	}
}
