// Package validation holds the pure, pre-I/O checks applied to accounts and
// rules before any connection is opened. Pattern and template compilation
// live in the rules package; this package covers everything checkable from
// the raw configuration alone.
package validation

import (
	"fmt"
	"strings"

	"github.com/attachflow/attachflow/internal/types"
)

// ValidateAccount verifies one mail account configuration.
func ValidateAccount(a *types.MailAccount) error {
	if a.Name == "" {
		return fmt.Errorf("account name is required")
	}
	if !isValidID(a.Name) {
		return fmt.Errorf("account name %q contains invalid characters (use only alphanumeric, dash, underscore)", a.Name)
	}
	if a.Host == "" {
		return fmt.Errorf("account %q: host is required", a.Name)
	}
	if a.Port <= 0 || a.Port > 65535 {
		return fmt.Errorf("account %q: port must be between 1 and 65535", a.Name)
	}
	if a.Username == "" {
		return fmt.Errorf("account %q: username is required", a.Name)
	}

	switch a.Protocol {
	case "", "imap", "pop3":
	default:
		return fmt.Errorf("account %q: protocol must be 'imap' or 'pop3'", a.Name)
	}

	return nil
}

// ValidateRule verifies one rule configuration against its account.
func ValidateRule(r *types.Rule) error {
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	if !isValidID(r.Name) {
		return fmt.Errorf("rule name %q contains invalid characters (use only alphanumeric, dash, underscore)", r.Name)
	}
	if r.Account == "" {
		return fmt.Errorf("rule %q: account is required", r.Name)
	}
	if r.DestFolder == "" {
		return fmt.Errorf("rule %q: dest_folder is required", r.Name)
	}

	for _, t := range r.AllowedTypes {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("rule %q: allowed_types must not contain empty entries", r.Name)
		}
	}

	// Moving a processed message back into the folder the rule scans would
	// re-match it forever.
	if r.MoveToFolder != "" && strings.EqualFold(r.MoveToFolder, r.SourceFolder) {
		return fmt.Errorf("rule %q: move_to_folder must differ from source_folder", r.Name)
	}

	return nil
}

func isValidID(id string) bool {
	for _, r := range id {
		if !isValidIDChar(r) {
			return false
		}
	}
	return true
}

func isValidIDChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '-' ||
		r == '_'
}
