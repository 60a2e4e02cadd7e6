package approval

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

func (p *Policy) load() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	raw, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		p.data = DefaultPolicyData()
		if err := p.persistLocked(); err != nil {
			return fmt.Errorf("seed policy: %w", err)
		}
		p.logInfo("policy_seeded", "path", p.path, "rules", len(p.data.Rules))
		return nil
	}
	if err != nil {
		p.logWarn("policy_load_failed", "path", p.path, "error", err)
		p.data = DefaultPolicyData()
		return nil
	}

	data, err := decodePolicy(raw)
	if err != nil {
		p.logWarn("policy_parse_failed", "path", p.path, "error", err, "fallback", "defaults")
		p.data = DefaultPolicyData()
		return nil
	}
	p.data = data
	p.logInfo("policy_loaded", "path", p.path, "rules", len(data.Rules), "default_action", data.DefaultAction)
	return nil
}

func decodePolicy(raw []byte) (PolicyData, error) {
	var data PolicyData
	if err := json.Unmarshal(raw, &data); err != nil {
		return PolicyData{}, err
	}
	if data.DefaultAction == "" {
		data.DefaultAction = ActionDeny
	}
	if data.Rules == nil {
		data.Rules = []Rule{}
	}
	return data, nil
}

// persistLocked writes the policy through a temp file and rename so a crash
// never leaves a half-written document. Callers hold p.mu.
func (p *Policy) persistLocked() error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}
	payload, err := json.MarshalIndent(p.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".exec-policy-*.json")
	if err != nil {
		return fmt.Errorf("create temp policy file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(payload, '\n')); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write policy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close policy: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace policy file: %w", err)
	}
	return nil
}
