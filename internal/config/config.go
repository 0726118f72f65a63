// Package config locates chaseai's files and loads the network configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/chaseai/chaseai/internal/errs"
	"github.com/chaseai/chaseai/internal/model"
)

// EnvDir overrides the configuration directory.
const EnvDir = "CHASEAI_CONFIG_DIR"

// File names inside the configuration directory.
const (
	NetworkFile  = "network.yaml"
	ContextsJSON = "contexts.json"
	ContextsDB   = "contexts.db"
	ApprovalsDir = "approvals"
	AuditLogFile = "audit.jsonl"
)

// Dir returns $CHASEAI_CONFIG_DIR, or ~/.config/chaseai.
func Dir() string {
	if d := os.Getenv(EnvDir); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "chaseai")
	}
	return filepath.Join(home, ".config", "chaseai")
}

// Paths are the files chaseai reads and writes under one directory.
type Paths struct {
	Dir       string
	Network   string
	Contexts  string
	Approvals string
	AuditLog  string
}

// PathsIn lays out Paths under dir. driver picks the context store file.
func PathsIn(dir, driver string) Paths {
	contexts := ContextsJSON
	if driver == "sqlite" {
		contexts = ContextsDB
	}
	return Paths{
		Dir:       dir,
		Network:   filepath.Join(dir, NetworkFile),
		Contexts:  filepath.Join(dir, contexts),
		Approvals: filepath.Join(dir, ApprovalsDir),
		AuditLog:  filepath.Join(dir, AuditLogFile),
	}
}

// Load reads the network configuration at path.
// A missing file returns the defaults; invalid YAML is a CONFIGURATION error.
func Load(path string) (*model.NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.DefaultNetworkConfig(), nil
		}
		return nil, errs.Wrap(errs.CodeConfiguration, err, "failed to read network config")
	}

	cfg := &model.NetworkConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(errs.CodeConfiguration, err, fmt.Sprintf("failed to parse %s", path))
	}
	if cfg.DefaultInterface == "" {
		cfg.DefaultInterface = model.InterfaceLoopback
	}
	if cfg.VerificationMode == "" {
		cfg.VerificationMode = model.VerificationPort
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save validates cfg and writes it atomically with owner-only permissions.
func Save(path string, cfg *model.NetworkConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errs.Wrap(errs.CodeInternal, err, "failed to encode network config")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return errs.Wrap(errs.CodePersistence, err, "cannot create config directory")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errs.Wrap(errs.CodePersistence, err, "failed to write network config")
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.CodePersistence, err, "failed to replace network config")
	}
	return nil
}
