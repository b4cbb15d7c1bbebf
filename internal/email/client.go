// Package email provides the mail-retrieval capability set the extraction
// engine consumes, with IMAP and POP3 adapters. The engine never depends on
// protocol details beyond this interface; capabilities a protocol cannot
// provide surface as ErrNotSupported rather than being silently faked.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/attachflow/attachflow/internal/models"
	"github.com/attachflow/attachflow/internal/types"
)

// Capability names an optional mailbox operation.
type Capability int

const (
	CapFolders Capability = iota
	CapSearch
	CapMarkRead
	CapMove
)

func (c Capability) String() string {
	switch c {
	case CapFolders:
		return "folders"
	case CapSearch:
		return "search"
	case CapMarkRead:
		return "mark-read"
	case CapMove:
		return "move"
	default:
		return "unknown"
	}
}

// Criteria is the server-side pre-filter pushed down with a search. Adapters
// that cannot push filters down may ignore it and return every identifier;
// the rule matcher re-validates independently.
type Criteria struct {
	From    string
	Subject string
}

// ErrNotSupported reports a capability the underlying mailbox lacks.
var ErrNotSupported = errors.New("operation not supported by this mailbox")

// ConnectionError is a transport or authentication level failure. It aborts
// the remaining work for its account.
type ConnectionError struct {
	Account string
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("account %q: %s: %v", e.Account, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// FetchError is a single-message or single-attachment retrieval failure. The
// item is skipped and, for messages, left unrecorded in the ledger so the
// next run retries it.
type FetchError struct {
	Account string
	UID     string
	What    string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("account %q message %s: failed to fetch %s: %v", e.Account, e.UID, e.What, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client is one session against one account's mailbox. Sessions are
// single-threaded: callers must serialize use of a Client.
type Client interface {
	Connect(ctx context.Context) error
	ListFolders(ctx context.Context) ([]string, error)
	// Search returns the identifiers of messages in folder matching the
	// criteria, best-effort.
	Search(ctx context.Context, folder string, crit Criteria) ([]string, error)
	// FetchMetadata returns message metadata with attachment descriptors.
	// Attachment content may or may not be populated; use FetchAttachment.
	FetchMetadata(ctx context.Context, uid string) (*models.Message, error)
	// FetchAttachment returns the decoded content of one attachment.
	FetchAttachment(ctx context.Context, uid string, att *models.Attachment) ([]byte, error)
	MarkRead(ctx context.Context, uid string) error
	Move(ctx context.Context, uid string, folder string) error
	// Supports reports whether the session can perform the capability.
	Supports(c Capability) bool
	Close() error
}

// NewClient builds the protocol adapter for an account.
func NewClient(account *types.MailAccount, logger *slog.Logger) (Client, error) {
	switch account.Protocol {
	case "imap", "":
		return NewIMAPClient(account, logger), nil
	case "pop3":
		return NewPOP3Client(account, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail protocol %q for account %q", account.Protocol, account.Name)
	}
}
