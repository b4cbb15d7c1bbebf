// Package config loads the engine's configuration directory: engine
// settings, mail accounts, extraction rules and shared rule templates. The
// loaded Store is an explicit handle passed into the executor; there is no
// package-global state.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/attachflow/attachflow/internal/types"
	"github.com/attachflow/attachflow/internal/validation"
)

const (
	accountSuffix = ".account.yaml"
	ruleSuffix    = ".rule.yaml"
	settingsFile  = "settings.yaml"
	templatesDir  = "templates"
)

// Store holds one immutable snapshot of the configuration directory.
type Store struct {
	settings types.Settings
	accounts map[string]*types.MailAccount
	rules    map[string]*types.Rule
}

// Load reads every configuration file under configDir.
func Load(configDir string, logger *slog.Logger) (*Store, error) {
	store := &Store{
		accounts: make(map[string]*types.MailAccount),
		rules:    make(map[string]*types.Rule),
	}

	if err := loadYAML(filepath.Join(configDir, settingsFile), &store.settings); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
	}
	applySettingsDefaults(&store.settings)

	templates, err := LoadTemplates(filepath.Join(configDir, templatesDir))
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	entries, err := os.ReadDir(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(configDir, name)

		switch {
		case strings.HasSuffix(name, accountSuffix):
			account := &types.MailAccount{}
			if err := loadYAML(path, account); err != nil {
				return nil, fmt.Errorf("failed to load account %s: %w", name, err)
			}
			applyAccountDefaults(account)
			if err := validation.ValidateAccount(account); err != nil {
				return nil, fmt.Errorf("invalid account config %s: %w", name, err)
			}
			if _, exists := store.accounts[account.Name]; exists {
				return nil, fmt.Errorf("duplicate account name %q in %s", account.Name, name)
			}
			store.accounts[account.Name] = account

		case strings.HasSuffix(name, ruleSuffix):
			rule := &types.Rule{}
			if err := loadYAML(path, rule); err != nil {
				return nil, fmt.Errorf("failed to load rule %s: %w", name, err)
			}
			if rule.Defaults != "" {
				if err := ApplyTemplate(rule, templates); err != nil {
					return nil, fmt.Errorf("failed to apply template to rule %s: %w", name, err)
				}
			}
			if err := validation.ValidateRule(rule); err != nil {
				return nil, fmt.Errorf("invalid rule config %s: %w", name, err)
			}
			if _, exists := store.rules[rule.Name]; exists {
				return nil, fmt.Errorf("duplicate rule name %q in %s", rule.Name, name)
			}
			store.rules[rule.Name] = rule
		}
	}

	// Rules must reference loaded accounts, and inherit the account's base
	// folder when they set no source folder of their own.
	for _, rule := range store.rules {
		account, ok := store.accounts[rule.Account]
		if !ok {
			return nil, fmt.Errorf("rule %q references unknown account %q", rule.Name, rule.Account)
		}
		if rule.SourceFolder == "" {
			rule.SourceFolder = account.Folder
		}
	}

	logger.Debug("loaded configuration",
		"accounts", len(store.accounts),
		"rules", len(store.rules),
	)

	return store, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	// Credentials are usually injected through the environment.
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), out); err != nil {
		return err
	}
	return nil
}

func applyAccountDefaults(a *types.MailAccount) {
	if a.Protocol == "" {
		a.Protocol = "imap"
	}
	if a.Folder == "" {
		a.Folder = "INBOX"
	}
	if a.Port == 0 {
		if a.Protocol == "pop3" {
			a.Port = 995
		} else {
			a.Port = 993
		}
	}
}

func applySettingsDefaults(s *types.Settings) {
	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
	if s.Logging.Format == "" {
		s.Logging.Format = "text"
	}
	if s.Ledger.Path == "" {
		s.Ledger.Path = "attachflow.db"
	}
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = 4
	}
}

// Settings returns the engine-wide settings.
func (s *Store) Settings() *types.Settings {
	return &s.settings
}

// Account retrieves an account by name.
func (s *Store) Account(name string) (*types.MailAccount, error) {
	account, ok := s.accounts[name]
	if !ok {
		return nil, fmt.Errorf("account %q not found", name)
	}
	return account, nil
}

// Rule retrieves a rule by name.
func (s *Store) Rule(name string) (*types.Rule, error) {
	rule, ok := s.rules[name]
	if !ok {
		return nil, fmt.Errorf("rule %q not found", name)
	}
	return rule, nil
}

// Rules returns all rules, sorted by name.
func (s *Store) Rules() []*types.Rule {
	rules := make([]*types.Rule, 0, len(s.rules))
	for _, r := range s.rules {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// EnabledRules returns the rules that are enabled and whose account is
// active, sorted by name.
func (s *Store) EnabledRules() []*types.Rule {
	var rules []*types.Rule
	for _, r := range s.rules {
		if !r.Enabled {
			continue
		}
		if account, ok := s.accounts[r.Account]; !ok || !account.Active {
			continue
		}
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}
