package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/attachflow/attachflow/internal/email/parser"
	"github.com/attachflow/attachflow/internal/models"
	"github.com/attachflow/attachflow/internal/types"
)

// IMAPClient handles IMAP email operations for one account session.
type IMAPClient struct {
	account  *types.MailAccount
	logger   *slog.Logger
	client   *client.Client
	selected string
}

// NewIMAPClient creates a new, not yet connected IMAP client.
func NewIMAPClient(account *types.MailAccount, logger *slog.Logger) *IMAPClient {
	return &IMAPClient{
		account: account,
		logger:  logger,
	}
}

// Connect establishes a connection to the IMAP server and logs in.
func (c *IMAPClient) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &ConnectionError{Account: c.account.Name, Op: "connect", Err: err}
	}

	server := fmt.Sprintf("%s:%d", c.account.Host, c.account.Port)

	c.logger.Info("connecting to IMAP server",
		"server", c.account.Host,
		"port", c.account.Port,
		"tls_enabled", c.account.UseSSL,
		"username", c.account.Username,
	)

	var err error

	// Port 143 starts plain and upgrades with STARTTLS when SSL is wanted.
	if c.account.Port == 143 {
		c.client, err = client.Dial(server)
		if err != nil {
			return &ConnectionError{Account: c.account.Name, Op: "connect", Err: err}
		}

		if c.account.UseSSL {
			tlsConfig := &tls.Config{
				ServerName:         c.account.Host,
				MinVersion:         tls.VersionTLS12,
				InsecureSkipVerify: !c.account.VerifyCert,
			}
			if err := c.client.StartTLS(tlsConfig); err != nil {
				c.logger.Warn("STARTTLS failed, continuing with plain connection", "error", err)
			}
		}
	} else if c.account.UseSSL {
		tlsConfig := &tls.Config{
			ServerName:         c.account.Host,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: !c.account.VerifyCert,
		}
		c.client, err = client.DialTLS(server, tlsConfig)
		if err != nil {
			return &ConnectionError{Account: c.account.Name, Op: "connect", Err: err}
		}
	} else {
		c.client, err = client.Dial(server)
		if err != nil {
			return &ConnectionError{Account: c.account.Name, Op: "connect", Err: err}
		}
	}

	if c.account.Timeout > 0 {
		c.client.Timeout = time.Duration(c.account.Timeout) * time.Second
	}

	if err := c.client.Login(c.account.Username, c.account.Password); err != nil {
		return &ConnectionError{Account: c.account.Name, Op: "login", Err: err}
	}

	c.logger.Info("connected to IMAP server and logged in", "account", c.account.Name)
	return nil
}

// ListFolders lists all folders of the mailbox.
func (c *IMAPClient) ListFolders(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mailboxes := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.client.List("", "*", mailboxes)
	}()

	var folders []string
	for mb := range mailboxes {
		folders = append(folders, mb.Name)
	}
	if err := <-done; err != nil {
		return nil, &ConnectionError{Account: c.account.Name, Op: "list folders", Err: err}
	}
	return folders, nil
}

func (c *IMAPClient) selectFolder(folder string) error {
	if c.selected == folder {
		return nil
	}
	if _, err := c.client.Select(folder, false); err != nil {
		return &ConnectionError{Account: c.account.Name, Op: fmt.Sprintf("select folder %q", folder), Err: err}
	}
	c.selected = folder
	return nil
}

// Search performs a UID search in folder with FROM/SUBJECT criteria pushed
// down to the server.
func (c *IMAPClient) Search(ctx context.Context, folder string, crit Criteria) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.selectFolder(folder); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	if crit.From != "" {
		criteria.Header.Add("From", crit.From)
	}
	if crit.Subject != "" {
		criteria.Header.Add("Subject", crit.Subject)
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, &ConnectionError{Account: c.account.Name, Op: fmt.Sprintf("search folder %q", folder), Err: err}
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, strconv.FormatUint(uint64(uid), 10))
	}
	return ids, nil
}

// FetchMetadata fetches envelope and body structure for one message. The
// attachment descriptors carry body section paths so content can be fetched
// lazily, part by part, after filtering.
func (c *IMAPClient) FetchMetadata(ctx context.Context, uid string) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	num, err := parseUID(uid)
	if err != nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: "metadata", Err: err}
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(num)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchBodyStructure, imap.FetchInternalDate, imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	fetched := <-messages
	if err := <-done; err != nil {
		return nil, c.fetchErr(uid, "metadata", err)
	}
	if fetched == nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: "metadata", Err: fmt.Errorf("no data returned")}
	}

	msg := &models.Message{UID: uid, ReceivedAt: fetched.InternalDate}
	if env := fetched.Envelope; env != nil {
		msg.Subject = env.Subject
		if !env.Date.IsZero() {
			msg.ReceivedAt = env.Date
		}
		if len(env.From) > 0 && env.From[0] != nil {
			msg.Sender = formatIMAPAddress(env.From[0])
		}
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}

	if fetched.BodyStructure != nil {
		msg.Attachments = collectAttachmentParts(fetched.BodyStructure)
	}

	return msg, nil
}

// collectAttachmentParts walks the body structure and returns descriptors for
// every part that looks like an attachment.
func collectAttachmentParts(bs *imap.BodyStructure) []models.Attachment {
	var atts []models.Attachment
	bs.Walk(func(path []int, part *imap.BodyStructure) bool {
		if strings.EqualFold(part.MIMEType, "multipart") {
			return true
		}

		filename, _ := part.Filename()
		disposition := strings.ToLower(part.Disposition)
		if filename == "" && disposition != "attachment" {
			return false
		}

		mimeType := strings.ToLower(part.MIMEType + "/" + part.MIMESubType)
		if filename == "" {
			filename = "attachment" + parser.ExtensionForMime(mimeType)
		}

		atts = append(atts, models.Attachment{
			Ref:      sectionPath(path),
			Filename: parser.DecodeFilename(filename),
			MIMEType: mimeType,
			Size:     int64(part.Size),
			Encoding: part.Encoding,
		})
		return false
	})
	return atts
}

func sectionPath(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}

func parseSectionPath(ref string) ([]int, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty body section reference")
	}
	segs := strings.Split(ref, ".")
	path := make([]int, len(segs))
	for i, s := range segs {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid body section reference %q", ref)
		}
		path[i] = n
	}
	return path, nil
}

// FetchAttachment fetches and decodes the body section of one attachment.
func (c *IMAPClient) FetchAttachment(ctx context.Context, uid string, att *models.Attachment) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	num, err := parseUID(uid)
	if err != nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: att.Filename, Err: err}
	}
	path, err := parseSectionPath(att.Ref)
	if err != nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: att.Filename, Err: err}
	}

	section := &imap.BodySectionName{
		BodyPartName: imap.BodyPartName{Path: path},
		Peek:         true,
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(num)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	fetched := <-messages
	if err := <-done; err != nil {
		return nil, c.fetchErr(uid, att.Filename, err)
	}
	if fetched == nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: att.Filename, Err: fmt.Errorf("no data returned")}
	}

	literal := fetched.GetBody(section)
	if literal == nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: att.Filename, Err: fmt.Errorf("missing body section %s", att.Ref)}
	}

	raw, err := io.ReadAll(literal)
	if err != nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: att.Filename, Err: err}
	}

	data, err := parser.DecodeContent(raw, att.Encoding)
	if err != nil {
		return nil, &FetchError{Account: c.account.Name, UID: uid, What: att.Filename, Err: fmt.Errorf("decode %s: %w", att.Encoding, err)}
	}
	return data, nil
}

// MarkRead adds the \Seen flag to one message.
func (c *IMAPClient) MarkRead(ctx context.Context, uid string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	num, err := parseUID(uid)
	if err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(num)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := c.client.UidStore(seqSet, item, flags, nil); err != nil {
		return &ConnectionError{Account: c.account.Name, Op: fmt.Sprintf("mark message %s read", uid), Err: err}
	}
	return nil
}

// Move moves one message to another folder. Servers without the MOVE
// capability fail the operation; no copy+delete fallback is attempted.
func (c *IMAPClient) Move(ctx context.Context, uid string, folder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if !c.Supports(CapMove) {
		return &ConnectionError{Account: c.account.Name, Op: "move", Err: ErrNotSupported}
	}

	num, err := parseUID(uid)
	if err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(num)
	if err := c.client.UidMove(seqSet, folder); err != nil {
		return &ConnectionError{Account: c.account.Name, Op: fmt.Sprintf("move message %s to %q", uid, folder), Err: err}
	}
	return nil
}

// Supports reports session capabilities; MOVE depends on the server.
func (c *IMAPClient) Supports(capability Capability) bool {
	switch capability {
	case CapFolders, CapSearch, CapMarkRead:
		return true
	case CapMove:
		if c.client == nil {
			return false
		}
		ok, err := c.client.Support("MOVE")
		return err == nil && ok
	default:
		return false
	}
}

// Close terminates the IMAP connection.
func (c *IMAPClient) Close() error {
	if c.client != nil {
		c.client.Logout()
		return c.client.Close()
	}
	return nil
}

// fetchErr classifies a fetch failure: a dead session is a connection-level
// failure that must abort the rest of the run, anything else skips just the
// one item.
func (c *IMAPClient) fetchErr(uid, what string, err error) error {
	if c.client.State() == imap.LogoutState {
		return &ConnectionError{Account: c.account.Name, Op: fmt.Sprintf("fetch %s of message %s", what, uid), Err: err}
	}
	return &FetchError{Account: c.account.Name, UID: uid, What: what, Err: err}
}

func parseUID(uid string) (uint32, error) {
	n, err := strconv.ParseUint(uid, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid message uid %q", uid)
	}
	return uint32(n), nil
}

func formatIMAPAddress(addr *imap.Address) string {
	address := addr.Address()
	if addr.PersonalName != "" {
		return fmt.Sprintf("%s <%s>", addr.PersonalName, address)
	}
	return address
}
