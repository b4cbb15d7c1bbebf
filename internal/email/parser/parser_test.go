package parser

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeContent(t *testing.T) {
	payload := []byte("%PDF-1.7 fake body")

	t.Run("base64", func(t *testing.T) {
		encoded := []byte(base64.StdEncoding.EncodeToString(payload) + "\r\n")
		decoded, err := DecodeContent(encoded, "BASE64")
		require.NoError(t, err)
		assert.Equal(t, payload, decoded)
	})

	t.Run("quoted-printable", func(t *testing.T) {
		decoded, err := DecodeContent([]byte("caf=C3=A9"), "quoted-printable")
		require.NoError(t, err)
		assert.Equal(t, "café", string(decoded))
	})

	t.Run("identity encodings", func(t *testing.T) {
		for _, enc := range []string{"7bit", "8bit", "binary", "", "x-unknown"} {
			decoded, err := DecodeContent(payload, enc)
			require.NoError(t, err)
			assert.Equal(t, payload, decoded, enc)
		}
	})

	t.Run("invalid base64", func(t *testing.T) {
		_, err := DecodeContent([]byte("!!! not base64 !!!"), "base64")
		assert.Error(t, err)
	})
}

func TestDecodeFilename(t *testing.T) {
	assert.Equal(t, "Rechnung März.pdf", DecodeFilename("=?UTF-8?Q?Rechnung_M=C3=A4rz.pdf?="))
	assert.Equal(t, "plain.pdf", DecodeFilename("plain.pdf"))
}

func TestNormalizeMediaType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"application/pdf", "application/pdf"},
		{`Application/PDF; name="x.pdf"`, "application/pdf"},
		{"image/png; charset=", "image/png"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeMediaType(tt.in), tt.in)
	}
}

func TestExtensionForMime(t *testing.T) {
	assert.Equal(t, ".pdf", ExtensionForMime("application/pdf"))
	assert.Equal(t, ".pdf", ExtensionForMime("Application/PDF"))
	assert.Equal(t, "", ExtensionForMime("application/x-unheard-of"))
}

const rawMessage = "From: Billing Dept <no-reply@supplier.example>\r\n" +
	"To: office@corp.example\r\n" +
	"Subject: Your Invoice for November\r\n" +
	"Date: Tue, 18 Nov 2025 14:32:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"frontier\"\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain\r\n" +
	"\r\n" +
	"Please find the invoice attached.\r\n" +
	"--frontier\r\n" +
	"Content-Type: application/pdf; name=\"invoice-4711.pdf\"\r\n" +
	"Content-Disposition: attachment; filename=\"invoice-4711.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjcgZmFrZSBib2R5\r\n" +
	"--frontier--\r\n"

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage("101", []byte(rawMessage))
	require.NoError(t, err)

	assert.Equal(t, "101", msg.UID)
	assert.Equal(t, "Billing Dept <no-reply@supplier.example>", msg.Sender)
	assert.Equal(t, "Your Invoice for November", msg.Subject)
	assert.Equal(t, 2025, msg.ReceivedAt.Year())

	require.Len(t, msg.Attachments, 1)
	att := msg.Attachments[0]
	assert.Equal(t, "invoice-4711.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.MIMEType)
	assert.Equal(t, "%PDF-1.7 fake body", string(att.Data))
	assert.Equal(t, int64(len(att.Data)), att.Size)
}

func TestParseMessageRejectsGarbage(t *testing.T) {
	_, err := ParseMessage("1", []byte("not an rfc822 message"))
	assert.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "message 1"))
}
