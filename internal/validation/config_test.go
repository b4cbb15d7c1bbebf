package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/attachflow/attachflow/internal/types"
)

func validAccount() *types.MailAccount {
	return &types.MailAccount{
		Name:     "office",
		Protocol: "imap",
		Host:     "mail.corp.example",
		Port:     993,
		Username: "extractor",
	}
}

func TestValidateAccount(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.MailAccount)
		wantErr string
	}{
		{"valid", func(a *types.MailAccount) {}, ""},
		{"empty protocol is allowed", func(a *types.MailAccount) { a.Protocol = "" }, ""},
		{"pop3", func(a *types.MailAccount) { a.Protocol = "pop3" }, ""},
		{"missing name", func(a *types.MailAccount) { a.Name = "" }, "name is required"},
		{"bad name", func(a *types.MailAccount) { a.Name = "off ice" }, "invalid characters"},
		{"missing host", func(a *types.MailAccount) { a.Host = "" }, "host is required"},
		{"port too small", func(a *types.MailAccount) { a.Port = 0 }, "port must be between"},
		{"port too large", func(a *types.MailAccount) { a.Port = 70000 }, "port must be between"},
		{"missing username", func(a *types.MailAccount) { a.Username = "" }, "username is required"},
		{"unknown protocol", func(a *types.MailAccount) { a.Protocol = "nntp" }, "protocol must be"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			account := validAccount()
			tt.mutate(account)
			err := ValidateAccount(account)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func validRule() *types.Rule {
	return &types.Rule{
		Name:         "billing",
		Account:      "office",
		SourceFolder: "INBOX",
		DestFolder:   "/var/attachments/billing",
	}
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*types.Rule)
		wantErr string
	}{
		{"valid", func(r *types.Rule) {}, ""},
		{"move to other folder", func(r *types.Rule) { r.MoveToFolder = "Archive" }, ""},
		{"missing name", func(r *types.Rule) { r.Name = "" }, "name is required"},
		{"bad name", func(r *types.Rule) { r.Name = "billing/2025" }, "invalid characters"},
		{"missing account", func(r *types.Rule) { r.Account = "" }, "account is required"},
		{"missing destination", func(r *types.Rule) { r.DestFolder = "" }, "dest_folder is required"},
		{"empty allowed type", func(r *types.Rule) { r.AllowedTypes = []string{"pdf", " "} }, "empty entries"},
		{"move into source folder", func(r *types.Rule) { r.MoveToFolder = "INBOX" }, "must differ from source_folder"},
		{"move into source folder case-insensitive", func(r *types.Rule) { r.MoveToFolder = "inbox" }, "must differ from source_folder"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(rule)
			err := ValidateRule(rule)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
