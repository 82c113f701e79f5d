package iface

import (
	"fmt"
	"os"
	"os/exec"
)

// execScriptRunner invokes the configured hook as a child process, passing
// lease variables as environment (spec.md §6 script_run).
type execScriptRunner struct{}

// NewScriptRunner returns the default ScriptRunner.
func NewScriptRunner() ScriptRunner { return execScriptRunner{} }

func (execScriptRunner) Run(path string, reason string, env map[string]string) error {
	if path == "" {
		return nil
	}
	cmd := exec.Command(path)
	cmd.Env = os.Environ()
	cmd.Env = append(cmd.Env, "reason="+reason)
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("script %s: %w", path, err)
	}
	return nil
}
