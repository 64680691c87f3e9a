package config

import "os"

// EnsureHome creates the Chorus home directory, the shared "agents" parent,
// and each configured agent's own workspace subdirectory, so
// workspace.New (which requires its root to already exist) never fails on
// a first run.
func EnsureHome(cfg *Config) error {
	if err := os.MkdirAll(cfg.Paths.Home, 0700); err != nil {
		return err
	}
	for _, a := range cfg.Agents {
		if err := os.MkdirAll(cfg.WorkspacePath(a.Name), 0700); err != nil {
			return err
		}
	}
	return nil
}
