package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

const officeAccount = `
name: office
host: mail.corp.example
username: extractor
password: ${OFFICE_PASSWORD}
active: true
`

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OFFICE_PASSWORD", "hunter2")

	writeFile(t, dir, "settings.yaml", `
attachments:
  max_size: 10485760
ledger:
  path: /var/lib/attachflow/ledger.db
max_concurrent: 2
`)
	writeFile(t, dir, "office.account.yaml", officeAccount)
	writeFile(t, dir, "billing.rule.yaml", `
name: billing
account: office
enabled: true
from_contains: supplier.example
dest_folder: /tmp/attachments/billing
`)

	store, err := Load(dir, testLogger())
	require.NoError(t, err)

	settings := store.Settings()
	assert.Equal(t, int64(10485760), settings.Attachments.MaxSize)
	assert.Equal(t, "/var/lib/attachflow/ledger.db", settings.Ledger.Path)
	assert.Equal(t, 2, settings.MaxConcurrent)
	// Unset settings fall back to defaults.
	assert.Equal(t, "info", settings.Logging.Level)
	assert.Equal(t, "text", settings.Logging.Format)

	account, err := store.Account("office")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", account.Password)
	assert.Equal(t, "imap", account.Protocol)
	assert.Equal(t, 993, account.Port)
	assert.Equal(t, "INBOX", account.Folder)

	rule, err := store.Rule("billing")
	require.NoError(t, err)
	// Rules without a source folder inherit the account's base folder.
	assert.Equal(t, "INBOX", rule.SourceFolder)
}

func TestLoadWithoutSettingsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "office.account.yaml", officeAccount)

	store, err := Load(dir, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "attachflow.db", store.Settings().Ledger.Path)
	assert.Equal(t, 4, store.Settings().MaxConcurrent)
}

func TestLoadRejectsBrokenConfig(t *testing.T) {
	t.Run("duplicate account name", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "a.account.yaml", officeAccount)
		writeFile(t, dir, "b.account.yaml", officeAccount)

		_, err := Load(dir, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate account")
	})

	t.Run("rule referencing unknown account", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "office.account.yaml", officeAccount)
		writeFile(t, dir, "billing.rule.yaml", `
name: billing
account: nonexistent
enabled: true
dest_folder: /tmp/out
`)

		_, err := Load(dir, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown account")
	})

	t.Run("invalid account", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "bad.account.yaml", `
name: office
username: extractor
`)
		_, err := Load(dir, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "host is required")
	})

	t.Run("rule without destination", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "office.account.yaml", officeAccount)
		writeFile(t, dir, "billing.rule.yaml", `
name: billing
account: office
enabled: true
`)
		_, err := Load(dir, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dest_folder is required")
	})
}

func TestLoadAppliesRuleTemplates(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "office.account.yaml", officeAccount)
	writeFile(t, dir, filepath.Join("templates", "invoices.yaml"), `
subject_contains: invoice
allowed_types:
  - pdf
filename_template: "{date:%Y-%m-%d} {original_name}{ext}"
mark_as_read: true
`)
	writeFile(t, dir, "billing.rule.yaml", `
name: billing
account: office
template: invoices
enabled: true
from_contains: supplier.example
dest_folder: /tmp/attachments/billing
subject_contains: november invoice
`)

	store, err := Load(dir, testLogger())
	require.NoError(t, err)

	rule, err := store.Rule("billing")
	require.NoError(t, err)

	// Template values fill the gaps.
	assert.Equal(t, []string{"pdf"}, rule.AllowedTypes)
	assert.Equal(t, "{date:%Y-%m-%d} {original_name}{ext}", rule.FilenameTemplate)
	assert.True(t, rule.MarkAsRead)
	// Rule values win over template values.
	assert.Equal(t, "november invoice", rule.SubjectContains)
	assert.Equal(t, "supplier.example", rule.FromContains)
}

func TestLoadUnknownRuleTemplate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "office.account.yaml", officeAccount)
	writeFile(t, dir, "billing.rule.yaml", `
name: billing
account: office
template: nonexistent
enabled: true
dest_folder: /tmp/out
`)

	_, err := Load(dir, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `template "nonexistent" not found`)
}

func TestEnabledRules(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "office.account.yaml", officeAccount)
	writeFile(t, dir, "inactive.account.yaml", `
name: inactive
host: mail.old.example
username: extractor
active: false
`)
	writeFile(t, dir, "billing.rule.yaml", `
name: billing
account: office
enabled: true
dest_folder: /tmp/out
`)
	writeFile(t, dir, "disabled.rule.yaml", `
name: disabled
account: office
enabled: false
dest_folder: /tmp/out
`)
	writeFile(t, dir, "orphaned.rule.yaml", `
name: orphaned
account: inactive
enabled: true
dest_folder: /tmp/out
`)

	store, err := Load(dir, testLogger())
	require.NoError(t, err)

	assert.Len(t, store.Rules(), 3)

	enabled := store.EnabledRules()
	require.Len(t, enabled, 1)
	assert.Equal(t, "billing", enabled[0].Name)
}
