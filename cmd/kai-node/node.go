package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sameehj/kai-node/pkg/approval"
	"github.com/sameehj/kai-node/pkg/capability"
	"github.com/sameehj/kai-node/pkg/config"
	"github.com/sameehj/kai-node/pkg/env"
	"github.com/sameehj/kai-node/pkg/exec"
	"github.com/sameehj/kai-node/pkg/logging"
	"github.com/sameehj/kai-node/pkg/metrics"
	"github.com/sameehj/kai-node/pkg/safety"
)

// node is the wired capability stack shared by serve and invoke.
type node struct {
	cfg      *config.Config
	logger   *slog.Logger
	policy   *approval.Policy
	runner   *exec.LocalRunner
	system   *capability.SystemCapability
	registry *capability.Registry
	metrics  *metrics.Metrics
	audit    *safety.SQLiteRecorder
}

type nodeOptions struct {
	// registerer enables metrics when non-nil.
	registerer     prometheus.Registerer
	approvePrompts bool
}

func newNode(cfg *config.Config, logger *slog.Logger, opts nodeOptions) (*node, error) {
	n := &node{cfg: cfg, logger: logger}
	if opts.registerer != nil {
		n.metrics = metrics.New(opts.registerer)
	}

	baseEnv, err := env.ParseFile(cfg.Exec.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}
	n.runner = &exec.LocalRunner{
		DrainTimeout: cfg.Exec.DrainTimeout,
		MaxOutput:    cfg.Exec.MaxOutput,
		BaseEnv:      baseEnv,
	}
	n.runner.SetLogger(logging.Component(logger, "exec"))

	n.system = capability.NewSystemCapability(logging.Component(logger, "system"))
	n.system.SetCommandRunner(n.runner)
	n.system.SetDefaultTimeout(cfg.Exec.DefaultTimeout)
	n.system.SetDefaultShell(cfg.Exec.DefaultShell)
	n.system.SetMetrics(n.metrics)
	var recorder safety.AuditRecorder = safety.NewLogRecorder(logging.Component(logger, "audit"))
	if cfg.Audit.Database != "" {
		store, err := safety.OpenSQLiteRecorder(cfg.Audit.Database)
		if err != nil {
			return nil, fmt.Errorf("open audit store: %w", err)
		}
		n.audit = store
		recorder = safety.MultiRecorder{recorder, store}
	}
	n.system.SetAuditRecorder(recorder)
	n.system.SetNotifier(capability.NotifierFunc(func(note capability.Notification) {
		logger.Info("notification", "title", note.Title, "body", note.Body, "subtitle", note.Subtitle)
	}))
	if opts.approvePrompts {
		n.system.SetApprover(safety.StaticApprover(true))
	}

	if cfg.Policy.Enabled {
		policy, err := approval.New(cfg.Policy.Dir, logging.Component(logger, "approval"))
		if err != nil {
			logger.Warn("policy_seed_failed", "dir", cfg.Policy.Dir, "error", err)
		}
		n.policy = policy
		n.system.SetApprovalPolicy(policy)
	} else {
		logger.Warn("exec_policy_disabled", "hint", "every system.run command will be executed")
	}

	n.registry = capability.NewRegistry(logging.Component(logger, "registry"))
	n.registry.SetMetrics(n.metrics)
	n.registry.Register(n.system)
	return n, nil
}

// Close releases the audit store.
func (n *node) Close() error {
	if n.audit == nil {
		return nil
	}
	return n.audit.Close()
}
