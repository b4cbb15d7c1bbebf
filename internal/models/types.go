package models

import (
	"time"

	"github.com/google/uuid"
)

// Attachment describes one attachment of a fetched message. Data is populated
// lazily by the mail client, only after the owning message passed filtering.
type Attachment struct {
	// Ref is the protocol-native part reference (IMAP body section path,
	// POP3 attachment index).
	Ref      string `json:"ref"`
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`

	// Encoding is the transfer encoding of the part, needed to decode a
	// lazily fetched body section.
	Encoding string `json:"-"`
	Data     []byte `json:"-"`
}

// Message is the transient metadata of one mailbox message.
type Message struct {
	UID         string       `json:"uid"`
	Sender      string       `json:"sender"`
	Subject     string       `json:"subject"`
	ReceivedAt  time.Time    `json:"received_at"`
	Attachments []Attachment `json:"attachments"`
}

// Outcome of handling a single attachment (or a ledger-skipped message).
type Outcome string

const (
	OutcomeWritten         Outcome = "written"
	OutcomeSkippedDupe     Outcome = "skipped_duplicate"
	OutcomeSkippedFiltered Outcome = "skipped_filtered"
	OutcomeFailed          Outcome = "failed"
)

// ExtractionResult records the fate of one attempted attachment extraction.
type ExtractionResult struct {
	MessageUID   string  `json:"message_uid"`
	OriginalName string  `json:"original_name,omitempty"`
	DestPath     string  `json:"dest_path,omitempty"`
	Size         int64   `json:"size,omitempty"`
	Outcome      Outcome `json:"outcome"`
	Error        string  `json:"error,omitempty"`
}

// RunReport aggregates the outcome of one rule execution against one account.
// It is handed to the persistence sink as an immutable value; callers must
// inspect Completed and Errors rather than rely on an error return to detect
// partial failure.
type RunReport struct {
	ID          string    `json:"id"`
	RuleName    string    `json:"rule_name"`
	AccountName string    `json:"account_name"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`

	Scanned int `json:"scanned"`
	Matched int `json:"matched"`
	Written int `json:"written"`
	Skipped int `json:"skipped"`

	// Completed is false when a connection-level failure aborted the run
	// before all search results were handled.
	Completed bool `json:"completed"`

	Results []ExtractionResult `json:"results"`
	Errors  []string           `json:"errors"`
}

// NewRunReport starts a report for one (rule, account) execution.
func NewRunReport(ruleName, accountName string) *RunReport {
	return &RunReport{
		ID:          uuid.New().String(),
		RuleName:    ruleName,
		AccountName: accountName,
		StartedAt:   time.Now().UTC(),
	}
}

// Finish stamps the end time and returns the report for chaining.
func (r *RunReport) Finish() *RunReport {
	r.FinishedAt = time.Now().UTC()
	return r
}

// AddError records a non-fatal error description.
func (r *RunReport) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// AddResult appends one extraction result and updates the counters.
func (r *RunReport) AddResult(res ExtractionResult) {
	r.Results = append(r.Results, res)
	switch res.Outcome {
	case OutcomeWritten:
		r.Written++
	case OutcomeSkippedDupe, OutcomeSkippedFiltered:
		r.Skipped++
	}
}

// ErrorCount returns the number of accumulated non-fatal errors.
func (r *RunReport) ErrorCount() int {
	return len(r.Errors)
}
