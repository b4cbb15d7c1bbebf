package types

// MailAccount describes one mailbox the engine can connect to. Accounts are
// loaded from the configuration directory and treated as read-only for the
// duration of a run.
type MailAccount struct {
	Name     string `yaml:"name" json:"name"`
	Protocol string `yaml:"protocol" json:"protocol"` // "imap" or "pop3"
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"-"`
	UseSSL   bool   `yaml:"use_ssl" json:"use_ssl"`
	Folder   string `yaml:"folder" json:"folder"` // base folder, default INBOX
	Active   bool   `yaml:"active" json:"active"`

	Timeout    int  `yaml:"timeout" json:"timeout"` // seconds, connection + command timeout
	VerifyCert bool `yaml:"verify_cert" json:"verify_cert"`
}

// Rule is one filter+action specification bound to a single account. Optional
// filter fields left empty mean "no filter". The filename pattern must compile
// and the template must parse before the rule is allowed to run.
type Rule struct {
	Name    string `yaml:"name" json:"name"`
	Account string `yaml:"account" json:"account"`
	Enabled bool   `yaml:"enabled" json:"enabled"`

	// Name of a shared rule template under templates/ whose settings are
	// merged into this rule as defaults.
	Defaults string `yaml:"template,omitempty" json:"template,omitempty"`

	SourceFolder    string   `yaml:"source_folder" json:"source_folder"`
	FromContains    string   `yaml:"from_contains,omitempty" json:"from_contains,omitempty"`
	FromExact       bool     `yaml:"from_exact,omitempty" json:"from_exact,omitempty"`
	SubjectContains string   `yaml:"subject_contains,omitempty" json:"subject_contains,omitempty"`
	FilenamePattern string   `yaml:"filename_pattern,omitempty" json:"filename_pattern,omitempty"`
	AllowedTypes    []string `yaml:"allowed_types,omitempty" json:"allowed_types,omitempty"`

	DestFolder       string `yaml:"dest_folder" json:"dest_folder"`
	FilenameTemplate string `yaml:"filename_template" json:"filename_template"`
	MarkAsRead       bool   `yaml:"mark_as_read" json:"mark_as_read"`
	MoveToFolder     string `yaml:"move_to_folder,omitempty" json:"move_to_folder,omitempty"`
}

// AttachmentSettings are global limits applied on top of per-rule filters.
type AttachmentSettings struct {
	MaxSize           int64 `yaml:"max_size"` // bytes, 0 = unlimited
	SanitizeFilenames bool  `yaml:"sanitize_filenames"`
}

// Settings is the engine-wide configuration loaded from settings.yaml.
type Settings struct {
	Attachments AttachmentSettings `yaml:"attachments"`

	Ledger struct {
		Path string `yaml:"path"` // SQLite database file
	} `yaml:"ledger"`

	Reports struct {
		Enabled     bool   `yaml:"enabled"`
		StoragePath string `yaml:"storage_path"`
	} `yaml:"reports"`

	Logging struct {
		Level         string `yaml:"level"`  // debug, info, warn, error
		Format        string `yaml:"format"` // text, json, dev
		IncludeCaller bool   `yaml:"include_caller"`
	} `yaml:"logging"`

	MaxConcurrent int `yaml:"max_concurrent"` // parallel account connections
}

// DefaultFilenameTemplate is applied when a rule does not set one.
const DefaultFilenameTemplate = "{date:%Y.%m.%d %H.%M} - {rule_name}{ext}"
