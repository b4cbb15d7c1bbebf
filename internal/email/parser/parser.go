// Package parser holds the MIME helpers shared by the mail protocol
// adapters: transfer-encoding and filename decoding, media type
// normalization, and raw message parsing for protocols that only deliver
// full RFC822 bodies.
package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"mime/quotedprintable"
	"strconv"
	"strings"
	"time"

	"github.com/DusanKasan/parsemail"
	"github.com/jhillyerd/enmime/mediatype"

	"github.com/attachflow/attachflow/internal/models"
)

// DecodeContent decodes content based on the specified transfer encoding.
func DecodeContent(content []byte, encoding string) ([]byte, error) {
	switch strings.ToLower(encoding) {
	case "base64":
		decoded := make([]byte, base64.StdEncoding.DecodedLen(len(content)))
		n, err := base64.StdEncoding.Decode(decoded, bytes.TrimSpace(content))
		if err != nil {
			return nil, err
		}
		return decoded[:n], nil

	case "quoted-printable":
		reader := quotedprintable.NewReader(bytes.NewReader(content))
		return io.ReadAll(reader)

	case "7bit", "8bit", "binary", "":
		return content, nil

	default:
		return content, nil
	}
}

// DecodeFilename decodes RFC 2047 encoded-word syntax in filenames.
func DecodeFilename(filename string) string {
	decoder := mime.WordDecoder{}
	decoded, err := decoder.DecodeHeader(filename)
	if err != nil {
		return filename
	}
	return decoded
}

// NormalizeMediaType reduces a Content-Type header value to its bare,
// lower-cased media type, tolerating the malformed parameters real senders
// produce. Returns "" when the value cannot be parsed at all.
func NormalizeMediaType(value string) string {
	if value == "" {
		return ""
	}
	mt, _, _, err := mediatype.Parse(value)
	if err != nil {
		if base, _, ok := strings.Cut(value, ";"); ok {
			return strings.ToLower(strings.TrimSpace(base))
		}
		return ""
	}
	return strings.ToLower(mt)
}

// ParseMessage parses a full raw RFC822 message into transient message
// metadata with attachment content already present. Used by adapters whose
// protocol cannot fetch message parts individually.
func ParseMessage(uid string, raw []byte) (*models.Message, error) {
	email, err := parsemail.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", uid, err)
	}

	msg := &models.Message{
		UID:        uid,
		Subject:    email.Subject,
		ReceivedAt: email.Date,
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	if len(email.From) > 0 && email.From[0] != nil {
		msg.Sender = formatAddress(email.From[0].Name, email.From[0].Address)
	}

	for i, a := range email.Attachments {
		data, err := io.ReadAll(a.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %q of message %s: %w", a.Filename, uid, err)
		}
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Ref:      strconv.Itoa(i),
			Filename: DecodeFilename(a.Filename),
			MIMEType: NormalizeMediaType(a.ContentType),
			Size:     int64(len(data)),
			Data:     data,
		})
	}
	// Embedded files without a disposition of "attachment" still count when
	// they carry a filename; mixed senders are sloppy about disposition.
	for i, e := range email.EmbeddedFiles {
		data, err := io.ReadAll(e.Data)
		if err != nil {
			continue
		}
		name := DecodeFilename(e.CID)
		if name == "" {
			name = fmt.Sprintf("embedded_%d%s", i, ExtensionForMime(NormalizeMediaType(e.ContentType)))
		}
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Ref:      "e" + strconv.Itoa(i),
			Filename: name,
			MIMEType: NormalizeMediaType(e.ContentType),
			Size:     int64(len(data)),
			Data:     data,
		})
	}

	return msg, nil
}

func formatAddress(name, address string) string {
	if name != "" && !strings.EqualFold(name, address) {
		return fmt.Sprintf("%s <%s>", name, address)
	}
	return address
}

// ExtensionForMime returns the dotted extension for a known MIME type, or "".
func ExtensionForMime(mimeType string) string {
	return mimeToExt[strings.ToLower(mimeType)]
}

// mimeToExt maps MIME types to file extensions.
var mimeToExt = map[string]string{
	"application/pdf":          ".pdf",
	"application/msword":       ".doc",
	"application/vnd.ms-excel": ".xls",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   ".docx",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         ".xlsx",
	"application/vnd.ms-powerpoint":                                             ".ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": ".pptx",
	"image/jpeg":                   ".jpg",
	"image/png":                    ".png",
	"image/gif":                    ".gif",
	"image/bmp":                    ".bmp",
	"image/tiff":                   ".tiff",
	"text/plain":                   ".txt",
	"text/html":                    ".html",
	"text/csv":                     ".csv",
	"text/xml":                     ".xml",
	"application/xml":              ".xml",
	"application/zip":              ".zip",
	"application/x-7z-compressed":  ".7z",
	"application/x-rar-compressed": ".rar",
	"application/gzip":             ".gz",
	"application/x-tar":            ".tar",
	"application/octet-stream":     ".bin",
}
