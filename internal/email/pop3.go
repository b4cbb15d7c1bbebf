package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/knadh/go-pop3"

	"github.com/attachflow/attachflow/internal/email/parser"
	"github.com/attachflow/attachflow/internal/models"
	"github.com/attachflow/attachflow/internal/types"
)

// POP3Client is the degraded adapter for POP3 mailboxes. POP3 has a single
// implicit folder and no server-side search, flags or moves: Search lists
// every message (the rule matcher re-validates), and the folder, mark-read
// and move capabilities report unsupported.
type POP3Client struct {
	account *types.MailAccount
	logger  *slog.Logger
	conn    *pop3.Conn

	// uid -> POP3 message number for the current session
	ids map[string]int
}

// NewPOP3Client creates a new, not yet connected POP3 client.
func NewPOP3Client(account *types.MailAccount, logger *slog.Logger) *POP3Client {
	return &POP3Client{
		account: account,
		logger:  logger,
		ids:     make(map[string]int),
	}
}

// Connect dials the POP3 server and authenticates.
func (c *POP3Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &ConnectionError{Account: c.account.Name, Op: "connect", Err: err}
	}

	c.logger.Info("connecting to POP3 server",
		"server", c.account.Host,
		"port", c.account.Port,
		"tls_enabled", c.account.UseSSL,
		"username", c.account.Username,
	)

	p := pop3.New(pop3.Opt{
		Host:          c.account.Host,
		Port:          c.account.Port,
		TLSEnabled:    c.account.UseSSL,
		TLSSkipVerify: !c.account.VerifyCert,
	})

	conn, err := p.NewConn()
	if err != nil {
		return &ConnectionError{Account: c.account.Name, Op: "connect", Err: err}
	}

	if err := conn.Auth(c.account.Username, c.account.Password); err != nil {
		conn.Quit()
		return &ConnectionError{Account: c.account.Name, Op: "login", Err: err}
	}

	c.conn = conn
	c.logger.Info("connected to POP3 server", "account", c.account.Name)
	return nil
}

// ListFolders returns the single implicit POP3 folder.
func (c *POP3Client) ListFolders(ctx context.Context) ([]string, error) {
	return []string{"INBOX"}, nil
}

// Search lists all message identifiers; POP3 cannot push criteria down.
func (c *POP3Client) Search(ctx context.Context, folder string, crit Criteria) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if folder != "" && !strings.EqualFold(folder, "INBOX") {
		return nil, &ConnectionError{
			Account: c.account.Name,
			Op:      fmt.Sprintf("select folder %q", folder),
			Err:     ErrNotSupported,
		}
	}

	msgIDs, err := c.conn.Uidl(0)
	if err != nil {
		return nil, &ConnectionError{Account: c.account.Name, Op: "list messages", Err: err}
	}

	uids := make([]string, 0, len(msgIDs))
	for _, m := range msgIDs {
		uid := m.UID
		if uid == "" {
			uid = fmt.Sprintf("%d", m.ID)
		}
		c.ids[uid] = m.ID
		uids = append(uids, uid)
	}
	return uids, nil
}

// FetchMetadata retrieves and parses the full message. POP3 cannot fetch
// parts individually, so attachment content arrives with the metadata and
// FetchAttachment serves it from there.
func (c *POP3Client) FetchMetadata(ctx context.Context, uid string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id, ok := c.ids[uid]
	if !ok {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: "metadata", Err: fmt.Errorf("unknown uid, not returned by Search")}
	}

	buf, err := c.conn.RetrRaw(id)
	if err != nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: "metadata", Err: err}
	}

	msg, err := parser.ParseMessage(uid, buf.Bytes())
	if err != nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: "metadata", Err: err}
	}
	return msg, nil
}

// FetchAttachment returns content already captured by FetchMetadata.
func (c *POP3Client) FetchAttachment(ctx context.Context, uid string, att *models.Attachment) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if att.Data == nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: att.Filename, Err: fmt.Errorf("attachment content not captured")}
	}
	return att.Data, nil
}

func (c *POP3Client) MarkRead(ctx context.Context, uid string) error {
	return &ConnectionError{Account: c.account.Name, Op: "mark-read", Err: ErrNotSupported}
}

func (c *POP3Client) Move(ctx context.Context, uid string, folder string) error {
	return &ConnectionError{Account: c.account.Name, Op: "move", Err: ErrNotSupported}
}

func (c *POP3Client) Supports(capability Capability) bool {
	return false
}

// Close ends the POP3 session.
func (c *POP3Client) Close() error {
	if c.conn != nil {
		return c.conn.Quit()
	}
	return nil
}
