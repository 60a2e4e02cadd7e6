package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sameehj/kai-node/pkg/approval"
	"github.com/sameehj/kai-node/pkg/config"
)

func policyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "policy", Short: "Exec approval policy management"}
	cmd.AddCommand(policyShowCmd())
	cmd.AddCommand(policyAddCmd())
	cmd.AddCommand(policyInsertCmd())
	cmd.AddCommand(policyRemoveCmd())
	cmd.AddCommand(policyDefaultCmd())
	cmd.AddCommand(policyCheckCmd())
	return cmd
}

// openPolicy opens the configured policy even when enforcement is disabled,
// so rules can be prepared before turning it on.
func openPolicy(cmd *cobra.Command) (*approval.Policy, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	dir := cfg.Policy.Dir
	if dir == "" {
		dir = config.DefaultDir()
	}
	policy, err := approval.New(dir, newLogger(cfg, cmd.ErrOrStderr()))
	return policy, cfg, err
}

func parseActionArg(s string) (approval.Action, error) {
	switch a := approval.Action(strings.ToLower(strings.TrimSpace(s))); a {
	case approval.ActionAllow, approval.ActionDeny, approval.ActionPrompt:
		return a, nil
	}
	return "", fmt.Errorf("invalid action %q (want allow, deny or prompt)", s)
}

type ruleFlags struct {
	description string
	shells      []string
	disabled    bool
}

func (f *ruleFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.description, "description", "", "rule description")
	cmd.Flags().StringSliceVar(&f.shells, "shell", nil, "restrict the rule to these shells")
	cmd.Flags().BoolVar(&f.disabled, "disabled", false, "add the rule disabled")
}

func (f *ruleFlags) rule(pattern, action string) (approval.Rule, error) {
	a, err := parseActionArg(action)
	if err != nil {
		return approval.Rule{}, err
	}
	rule := approval.NewRule(pattern, a, f.description, f.shells...)
	rule.Enabled = !f.disabled
	return rule, nil
}

func policyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the policy as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, _, err := openPolicy(cmd)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), policy.PolicyData())
		},
	}
}

func policyAddCmd() *cobra.Command {
	var flags ruleFlags
	cmd := &cobra.Command{
		Use:   "add PATTERN ACTION",
		Short: "Append a rule with the lowest precedence",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := flags.rule(args[0], args[1])
			if err != nil {
				return err
			}
			policy, _, err := openPolicy(cmd)
			if err != nil {
				return err
			}
			if err := policy.AddRule(rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added rule %d: %s -> %s\n", len(policy.Rules())-1, rule.Pattern, rule.Action)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func policyInsertCmd() *cobra.Command {
	var flags ruleFlags
	cmd := &cobra.Command{
		Use:   "insert INDEX PATTERN ACTION",
		Short: "Insert a rule at INDEX (0 is evaluated first)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			rule, err := flags.rule(args[1], args[2])
			if err != nil {
				return err
			}
			policy, _, err := openPolicy(cmd)
			if err != nil {
				return err
			}
			if err := policy.InsertRule(index, rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %s -> %s\n", rule.Pattern, rule.Action)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func policyRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove INDEX",
		Short: "Remove the rule at INDEX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid index %q: %w", args[0], err)
			}
			policy, _, err := openPolicy(cmd)
			if err != nil {
				return err
			}
			removed, err := policy.RemoveRule(index)
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("no rule at index %d", index)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed rule %d\n", index)
			return nil
		},
	}
}

func policyDefaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "default ACTION",
		Short: "Set the action used when no rule matches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := parseActionArg(args[0])
			if err != nil {
				return err
			}
			policy, _, err := openPolicy(cmd)
			if err != nil {
				return err
			}
			if err := policy.SetDefaultAction(action); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "default action: %s\n", action)
			return nil
		},
	}
}

func policyCheckCmd() *cobra.Command {
	var shell string
	cmd := &cobra.Command{
		Use:   "check COMMAND_LINE",
		Short: "Evaluate a command line without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, cfg, err := openPolicy(cmd)
			if err != nil {
				return err
			}
			if shell == "" {
				shell = cfg.Exec.DefaultShell
			}
			return printJSON(cmd.OutOrStdout(), policy.Evaluate(args[0], shell))
		},
	}
	cmd.Flags().StringVar(&shell, "shell", "", "shell the command would run under")
	return cmd
}
