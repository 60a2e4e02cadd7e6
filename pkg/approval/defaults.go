package approval

// DefaultPolicyData is the allow-list posture a policy is seeded with:
// chained or redirected command lines and destructive verbs are denied first,
// a set of read-only commands is allowed, and everything else is denied.
func DefaultPolicyData() PolicyData {
	ps := []string{"powershell", "pwsh"}
	rules := []Rule{
		NewRule("*;*", ActionDeny, "Command chaining"),
		NewRule("*&*", ActionDeny, "Command chaining or backgrounding"),
		NewRule("*|*", ActionDeny, "Pipelines"),
		NewRule("*`*", ActionDeny, "Command substitution"),
		NewRule("*$(*", ActionDeny, "Command substitution"),
		NewRule("*>*", ActionDeny, "Output redirection"),

		NewRule("rm *", ActionDeny, "Delete files"),
		NewRule("rmdir *", ActionDeny, "Delete directories"),
		NewRule("del *", ActionDeny, "Delete files"),
		NewRule("erase *", ActionDeny, "Delete files"),
		NewRule("rd *", ActionDeny, "Delete directories"),
		NewRule("Remove-Item*", ActionDeny, "Delete files"),
		NewRule("format *", ActionDeny, "Format volumes"),
		NewRule("mkfs*", ActionDeny, "Format volumes"),
		NewRule("dd *", ActionDeny, "Raw disk writes"),
		NewRule("shutdown*", ActionDeny, "Power off or restart"),
		NewRule("reboot*", ActionDeny, "Power off or restart"),
		NewRule("halt*", ActionDeny, "Power off or restart"),
		NewRule("poweroff*", ActionDeny, "Power off or restart"),
		NewRule("Stop-Computer*", ActionDeny, "Power off or restart"),
		NewRule("Restart-Computer*", ActionDeny, "Power off or restart"),
		NewRule("reg add*", ActionDeny, "Registry edits"),
		NewRule("reg delete*", ActionDeny, "Registry edits"),
		NewRule("reg import*", ActionDeny, "Registry edits"),
		NewRule("Set-ItemProperty*", ActionDeny, "Registry edits"),
		NewRule("New-ItemProperty*", ActionDeny, "Registry edits"),
		NewRule("Invoke-WebRequest*", ActionDeny, "Arbitrary downloads"),
		NewRule("Invoke-RestMethod*", ActionDeny, "Arbitrary downloads"),
		NewRule("iwr *", ActionDeny, "Arbitrary downloads"),
		NewRule("curl *", ActionDeny, "Arbitrary downloads"),
		NewRule("wget *", ActionDeny, "Arbitrary downloads"),
		NewRule("bitsadmin*", ActionDeny, "Arbitrary downloads"),
		NewRule("certutil*", ActionDeny, "Arbitrary downloads"),

		NewRule("echo", ActionAllow, "Print text"),
		NewRule("echo *", ActionAllow, "Print text"),
		NewRule("hostname", ActionAllow, "Host name"),
		NewRule("whoami", ActionAllow, "Current user"),
		NewRule("whoami *", ActionAllow, "Current user"),
		NewRule("date", ActionAllow, "Current date"),
		NewRule("pwd", ActionAllow, "Working directory"),
		NewRule("uname", ActionAllow, "System information"),
		NewRule("uname *", ActionAllow, "System information"),
		NewRule("uptime", ActionAllow, "System information"),
		NewRule("ver", ActionAllow, "System information"),
		NewRule("systeminfo", ActionAllow, "System information"),
		NewRule("ls", ActionAllow, "List files"),
		NewRule("ls *", ActionAllow, "List files"),
		NewRule("dir", ActionAllow, "List files"),
		NewRule("dir *", ActionAllow, "List files"),
		NewRule("cat *", ActionAllow, "Read files"),
		NewRule("type *", ActionAllow, "Read files"),
		NewRule("which *", ActionAllow, "Locate programs"),
		NewRule("where *", ActionAllow, "Locate programs"),
		NewRule("git status*", ActionAllow, "Repository status"),
		NewRule("git log*", ActionAllow, "Repository history"),
		NewRule("git diff*", ActionAllow, "Repository diff"),
		NewRule("Get-*", ActionAllow, "PowerShell queries", ps...),
		NewRule("Test-*", ActionAllow, "PowerShell queries", ps...),
		NewRule("Select-*", ActionAllow, "PowerShell queries", ps...),
		NewRule("Measure-*", ActionAllow, "PowerShell queries", ps...),
		NewRule("Resolve-*", ActionAllow, "PowerShell queries", ps...),
	}
	return PolicyData{DefaultAction: ActionDeny, Rules: rules}
}
