// Package rules compiles rule configurations and evaluates them against
// message metadata. Filtering is layered: a message-level filter over sender
// and subject, then an attachment-level filter over name pattern and type,
// so one message can contribute some attachments while excluding others.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/attachflow/attachflow/internal/email/parser"
	"github.com/attachflow/attachflow/internal/models"
	"github.com/attachflow/attachflow/internal/template"
	"github.com/attachflow/attachflow/internal/types"
)

// ConfigError reports a misconfigured rule. It aborts the rule's run before
// any network I/O is attempted.
type ConfigError struct {
	Rule string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("rule %q misconfigured: %v", e.Rule, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// CompiledRule is a rule whose pattern and filename template compiled
// successfully, bound to its account snapshot.
type CompiledRule struct {
	Rule    *types.Rule
	Account *types.MailAccount

	// NamePattern is nil when the rule sets no attachment-name filter.
	NamePattern *regexp.Regexp
	// Types holds normalized allowed attachment types: extensions with a
	// leading dot and bare MIME types, all lower-cased. Empty means any.
	Types map[string]struct{}

	Template *template.Template
}

// Compile validates and compiles one rule. Any failure yields a *ConfigError;
// invalid rules are rejected, never silently skipped.
func Compile(rule *types.Rule, account *types.MailAccount) (*CompiledRule, error) {
	c := &CompiledRule{Rule: rule, Account: account}

	if rule.FilenamePattern != "" {
		re, err := regexp.Compile(rule.FilenamePattern)
		if err != nil {
			return nil, &ConfigError{Rule: rule.Name, Err: fmt.Errorf("filename pattern: %w", err)}
		}
		c.NamePattern = re
	}

	if len(rule.AllowedTypes) > 0 {
		c.Types = make(map[string]struct{}, len(rule.AllowedTypes))
		for _, t := range rule.AllowedTypes {
			c.Types[normalizeType(t)] = struct{}{}
		}
	}

	tmplStr := rule.FilenameTemplate
	if tmplStr == "" {
		tmplStr = types.DefaultFilenameTemplate
	}
	tmpl, err := template.Compile(tmplStr)
	if err != nil {
		return nil, &ConfigError{Rule: rule.Name, Err: err}
	}
	c.Template = tmpl

	return c, nil
}

// normalizeType lower-cases a configured type and turns bare extensions into
// dotted ones, so "PDF", ".pdf" and "application/pdf" are all recognized.
func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" || strings.ContainsRune(t, '/') || strings.HasPrefix(t, ".") {
		return t
	}
	return "." + t
}

// Matches applies the message-level filter: conjunction of the sender and
// subject filters, each optional. An unset filter always passes.
func (c *CompiledRule) Matches(msg *models.Message) bool {
	if f := c.Rule.FromContains; f != "" {
		if c.Rule.FromExact {
			if !senderEquals(msg.Sender, f) {
				return false
			}
		} else if !containsFold(msg.Sender, f) {
			return false
		}
	}

	if f := c.Rule.SubjectContains; f != "" {
		if !containsFold(msg.Subject, f) {
			return false
		}
	}

	return true
}

// FilterAttachments returns the attachments that pass the attachment-level
// filter. Attachments failing the name pattern or the type set are excluded
// individually; the rest of the message is unaffected.
func (c *CompiledRule) FilterAttachments(atts []models.Attachment) []models.Attachment {
	var kept []models.Attachment
	for _, a := range atts {
		if c.attachmentAllowed(&a) {
			kept = append(kept, a)
		}
	}
	return kept
}

func (c *CompiledRule) attachmentAllowed(a *models.Attachment) bool {
	if c.NamePattern != nil && !c.NamePattern.MatchString(a.Filename) {
		return false
	}
	if c.Types == nil {
		return true
	}

	ext := strings.ToLower(strings.TrimSpace(pathExt(a.Filename)))
	if ext != "" {
		if _, ok := c.Types[ext]; ok {
			return true
		}
	}

	mime := parser.NormalizeMediaType(a.MIMEType)
	if mime != "" {
		if _, ok := c.Types[mime]; ok {
			return true
		}
		// A configured extension also admits attachments whose MIME type
		// maps to it, for senders that omit filename extensions.
		if mapped := parser.ExtensionForMime(mime); mapped != "" {
			if _, ok := c.Types[mapped]; ok {
				return true
			}
		}
	}

	return false
}

func pathExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

// containsFold reports whether s contains substr, case-insensitively.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// senderEquals matches want against the full sender string or the bare
// address inside angle brackets, case-insensitively.
func senderEquals(sender, want string) bool {
	if strings.EqualFold(strings.TrimSpace(sender), strings.TrimSpace(want)) {
		return true
	}
	if open := strings.LastIndexByte(sender, '<'); open >= 0 {
		if end := strings.IndexByte(sender[open:], '>'); end > 0 {
			addr := sender[open+1 : open+end]
			return strings.EqualFold(strings.TrimSpace(addr), strings.TrimSpace(want))
		}
	}
	return false
}
