// Package pipeline runs one rule against one connected mailbox session:
// search, filter, fetch attachments, render filenames, write files, run
// post-actions and record processed messages, accumulating a RunReport.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/attachflow/attachflow/internal/email"
	"github.com/attachflow/attachflow/internal/ledger"
	"github.com/attachflow/attachflow/internal/models"
	"github.com/attachflow/attachflow/internal/rules"
	"github.com/attachflow/attachflow/internal/template"
	"github.com/attachflow/attachflow/internal/types"
	"github.com/attachflow/attachflow/internal/utility/u_io"
)

// Options tune one pipeline execution.
type Options struct {
	// Force bypasses the ledger check, reprocessing messages that were
	// already handled in earlier runs.
	Force bool
	// Attachments are the engine-wide attachment limits.
	Attachments types.AttachmentSettings
}

// Pipeline executes rules. It is stateless between runs; all run context is
// passed into Run explicitly.
type Pipeline struct {
	logger *slog.Logger
	ledger ledger.Ledger
}

// New creates a pipeline bound to a ledger handle.
func New(logger *slog.Logger, led ledger.Ledger) *Pipeline {
	return &Pipeline{
		logger: logger,
		ledger: led,
	}
}

// Run executes one compiled rule over a connected client session. A
// RunReport is always returned, even for a completely failed run. The error
// return is non-nil only for a connection-level abort (context cancellation
// included); the caller uses it to decide whether the session is still
// usable for sibling rules.
func (p *Pipeline) Run(ctx context.Context, rule *rules.CompiledRule, client email.Client, opts Options) (*models.RunReport, error) {
	report := models.NewRunReport(rule.Rule.Name, rule.Account.Name)
	logger := p.logger.With("rule", rule.Rule.Name, "account", rule.Account.Name)

	// The destination must exist before anything is fetched.
	if err := u_io.EnsureDir(rule.Rule.DestFolder); err != nil {
		cfgErr := &rules.ConfigError{Rule: rule.Rule.Name, Err: fmt.Errorf("destination folder: %w", err)}
		report.AddError(cfgErr.Error())
		return report.Finish(), nil
	}

	folder := rule.Rule.SourceFolder
	crit := email.Criteria{
		From:    rule.Rule.FromContains,
		Subject: rule.Rule.SubjectContains,
	}

	logger.Info("searching source folder", "folder", folder, "from", crit.From, "subject", crit.Subject)

	uids, err := client.Search(ctx, folder, crit)
	if err != nil {
		report.AddError(err.Error())
		logger.Error("search failed", "folder", folder, "error", err)
		return report.Finish(), err
	}

	logger.Info("search returned messages", "folder", folder, "count", len(uids))

	for _, uid := range uids {
		if err := ctx.Err(); err != nil {
			report.AddError(fmt.Sprintf("run cancelled: %v", err))
			return report.Finish(), err
		}

		key := ledger.Key{Account: rule.Account.Name, Folder: folder, UID: uid}

		if !opts.Force {
			processed, err := p.ledger.IsProcessed(ctx, key)
			if err != nil {
				// Leave the message unrecorded; the next run retries it.
				report.Scanned++
				report.AddError(fmt.Sprintf("ledger check for message %s: %v", uid, err))
				continue
			}
			if processed {
				report.Scanned++
				report.AddResult(models.ExtractionResult{
					MessageUID: uid,
					Outcome:    models.OutcomeSkippedDupe,
				})
				logger.Debug("skipping already processed message", "uid", uid)
				continue
			}
		}

		msg, err := client.FetchMetadata(ctx, uid)
		report.Scanned++
		if err != nil {
			report.AddError(err.Error())
			var connErr *email.ConnectionError
			if errors.As(err, &connErr) {
				logger.Error("connection lost, aborting remaining messages", "uid", uid, "error", err)
				return report.Finish(), err
			}
			logger.Warn("failed to fetch message metadata", "uid", uid, "error", err)
			continue
		}

		if !rule.Matches(msg) {
			logger.Debug("message does not match rule filters", "uid", uid, "sender", msg.Sender)
			continue
		}
		kept := rule.FilterAttachments(msg.Attachments)
		if len(kept) == 0 {
			logger.Debug("no attachments survive filtering", "uid", uid, "attachments", len(msg.Attachments))
			continue
		}

		report.Matched++

		written, fetchFailed, err := p.extractAttachments(ctx, rule, client, msg, kept, report, opts)
		if err != nil {
			return report.Finish(), err
		}

		// A failed attachment fetch leaves the message unrecorded so the
		// next run retries it; no post-actions either, a move would take
		// the message out of the folder the retry searches. Write failures
		// do not block recording (the files that could be written are on
		// disk).
		if fetchFailed {
			logger.Warn("message left unrecorded for retry", "uid", uid)
			continue
		}

		p.runPostActions(ctx, rule, client, msg.UID, report, logger)

		outcome := "extracted"
		if written == 0 {
			outcome = "skipped"
		}
		if err := p.ledger.Record(ctx, key, outcome); err != nil {
			report.AddError(fmt.Sprintf("ledger record for message %s: %v", uid, err))
			continue
		}

		logger.Info("processed message",
			"uid", uid,
			"attachments_written", written,
			"attachments_total", len(kept),
		)
	}

	report.Completed = true
	return report.Finish(), nil
}

// extractAttachments handles every surviving attachment of one message. It
// returns the number written, whether any content fetch failed, and a
// non-nil error only on connection-level failure.
func (p *Pipeline) extractAttachments(
	ctx context.Context,
	rule *rules.CompiledRule,
	client email.Client,
	msg *models.Message,
	kept []models.Attachment,
	report *models.RunReport,
	opts Options,
) (written int, fetchFailed bool, abort error) {
	for i := range kept {
		att := &kept[i]
		result := models.ExtractionResult{
			MessageUID:   msg.UID,
			OriginalName: att.Filename,
		}

		if max := opts.Attachments.MaxSize; max > 0 && att.Size > max {
			result.Outcome = models.OutcomeSkippedFiltered
			result.Error = fmt.Sprintf("attachment size %d exceeds maximum allowed size %d", att.Size, max)
			report.AddResult(result)
			continue
		}

		data, err := client.FetchAttachment(ctx, msg.UID, att)
		if err != nil {
			result.Outcome = models.OutcomeFailed
			result.Error = err.Error()
			report.AddResult(result)
			report.AddError(err.Error())

			var connErr *email.ConnectionError
			if errors.As(err, &connErr) {
				return written, true, err
			}
			fetchFailed = true
			continue
		}

		if max := opts.Attachments.MaxSize; max > 0 && int64(len(data)) > max {
			result.Outcome = models.OutcomeSkippedFiltered
			result.Error = fmt.Sprintf("attachment size %d exceeds maximum allowed size %d", len(data), max)
			report.AddResult(result)
			continue
		}

		stem, ext := template.SplitName(att.Filename)
		values := template.Values{
			Date:         msg.ReceivedAt,
			RuleName:     rule.Rule.Name,
			AccountName:  rule.Account.Name,
			OriginalName: stem,
			Ext:          ext,
			Index:        i + 1,
		}

		sanitize := opts.Attachments.SanitizeFilenames
		candidate := func(n int) string {
			name := rule.Template.Candidate(values, n)
			if sanitize {
				return u_io.CleanFilename(name)
			}
			// Path separators never belong in a rendered filename.
			name = strings.ReplaceAll(name, "/", "_")
			return strings.ReplaceAll(name, "\\", "_")
		}

		path, err := u_io.CreateUnique(rule.Rule.DestFolder, candidate, data)
		if err != nil {
			result.Outcome = models.OutcomeFailed
			result.Error = err.Error()
			report.AddResult(result)
			report.AddError(fmt.Sprintf("message %s attachment %q: %v", msg.UID, att.Filename, err))
			continue
		}

		result.Outcome = models.OutcomeWritten
		result.DestPath = path
		result.Size = int64(len(data))
		report.AddResult(result)
		written++

		p.logger.Debug("saved attachment",
			"uid", msg.UID,
			"filename", att.Filename,
			"path", filepath.Base(path),
			"bytes", len(data),
		)
	}

	return written, fetchFailed, nil
}

// runPostActions performs mark-read and move, best-effort. Failures are
// non-fatal: the written files and the ledger record stand.
func (p *Pipeline) runPostActions(ctx context.Context, rule *rules.CompiledRule, client email.Client, uid string, report *models.RunReport, logger *slog.Logger) {
	if rule.Rule.MarkAsRead {
		if err := client.MarkRead(ctx, uid); err != nil {
			report.AddError(fmt.Sprintf("mark message %s read: %v", uid, err))
			logger.Warn("failed to mark message read", "uid", uid, "error", err)
		}
	}

	if target := rule.Rule.MoveToFolder; target != "" {
		if err := client.Move(ctx, uid, target); err != nil {
			report.AddError(fmt.Sprintf("move message %s to %q: %v", uid, target, err))
			logger.Warn("failed to move message", "uid", uid, "target", target, "error", err)
		}
	}
}
