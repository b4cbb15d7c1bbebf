package rules

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attachflow/attachflow/internal/models"
	"github.com/attachflow/attachflow/internal/types"
)

func compileRule(t *testing.T, rule *types.Rule) *CompiledRule {
	t.Helper()
	c, err := Compile(rule, &types.MailAccount{Name: "office"})
	require.NoError(t, err)
	return c
}

func TestCompileRejectsBadConfig(t *testing.T) {
	t.Run("invalid filename pattern", func(t *testing.T) {
		_, err := Compile(&types.Rule{Name: "bad", FilenamePattern: "([unclosed"}, &types.MailAccount{})
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Equal(t, "bad", cerr.Rule)
	})

	t.Run("invalid filename template", func(t *testing.T) {
		_, err := Compile(&types.Rule{Name: "bad", FilenameTemplate: "{nope}"}, &types.MailAccount{})
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
	})

	t.Run("default template applies when unset", func(t *testing.T) {
		c := compileRule(t, &types.Rule{Name: "plain"})
		assert.Equal(t, types.DefaultFilenameTemplate, c.Template.String())
	})
}

func TestMatches(t *testing.T) {
	msg := &models.Message{
		UID:        "101",
		Sender:     "Billing Dept <no-reply@supplier.example>",
		Subject:    "Your Invoice for November",
		ReceivedAt: time.Now(),
	}

	tests := []struct {
		name string
		rule types.Rule
		want bool
	}{
		{"no filters match everything", types.Rule{}, true},
		{"sender substring", types.Rule{FromContains: "supplier.example"}, true},
		{"sender substring case-insensitive", types.Rule{FromContains: "SUPPLIER.Example"}, true},
		{"sender substring miss", types.Rule{FromContains: "other.example"}, false},
		{"sender exact address", types.Rule{FromContains: "no-reply@supplier.example", FromExact: true}, true},
		{"sender exact full string", types.Rule{FromContains: "Billing Dept <no-reply@supplier.example>", FromExact: true}, true},
		{"sender exact rejects substring", types.Rule{FromContains: "supplier.example", FromExact: true}, false},
		{"subject substring", types.Rule{SubjectContains: "invoice"}, true},
		{"subject miss", types.Rule{SubjectContains: "receipt"}, false},
		{"filters are conjunctive", types.Rule{FromContains: "supplier.example", SubjectContains: "receipt"}, false},
		{"both filters pass", types.Rule{FromContains: "supplier.example", SubjectContains: "invoice"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := compileRule(t, &tt.rule)
			assert.Equal(t, tt.want, c.Matches(msg))
		})
	}
}

func TestFilterAttachments(t *testing.T) {
	atts := []models.Attachment{
		{Ref: "1", Filename: "invoice-4711.pdf", MIMEType: "application/pdf"},
		{Ref: "2", Filename: "logo.png", MIMEType: "image/png"},
		{Ref: "3", Filename: "terms.docx", MIMEType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
	}

	t.Run("no filter keeps all", func(t *testing.T) {
		c := compileRule(t, &types.Rule{})
		assert.Len(t, c.FilterAttachments(atts), 3)
	})

	t.Run("name pattern", func(t *testing.T) {
		c := compileRule(t, &types.Rule{FilenamePattern: `^invoice-\d+`})
		kept := c.FilterAttachments(atts)
		require.Len(t, kept, 1)
		assert.Equal(t, "invoice-4711.pdf", kept[0].Filename)
	})

	t.Run("type filter by extension", func(t *testing.T) {
		c := compileRule(t, &types.Rule{AllowedTypes: []string{"pdf", ".PNG"}})
		kept := c.FilterAttachments(atts)
		require.Len(t, kept, 2)
		assert.Equal(t, "invoice-4711.pdf", kept[0].Filename)
		assert.Equal(t, "logo.png", kept[1].Filename)
	})

	t.Run("type filter by mime", func(t *testing.T) {
		c := compileRule(t, &types.Rule{AllowedTypes: []string{"application/pdf"}})
		kept := c.FilterAttachments(atts)
		require.Len(t, kept, 1)
		assert.Equal(t, "invoice-4711.pdf", kept[0].Filename)
	})

	t.Run("mime parameters are stripped", func(t *testing.T) {
		c := compileRule(t, &types.Rule{AllowedTypes: []string{"application/pdf"}})
		kept := c.FilterAttachments([]models.Attachment{
			{Filename: "x.pdf", MIMEType: `application/pdf; name="x.pdf"`},
		})
		assert.Len(t, kept, 1)
	})

	t.Run("configured extension admits matching mime without filename extension", func(t *testing.T) {
		c := compileRule(t, &types.Rule{AllowedTypes: []string{"pdf"}})
		kept := c.FilterAttachments([]models.Attachment{
			{Filename: "statement", MIMEType: "application/pdf"},
		})
		assert.Len(t, kept, 1)
	})

	t.Run("pattern and type are conjunctive", func(t *testing.T) {
		c := compileRule(t, &types.Rule{FilenamePattern: `^logo`, AllowedTypes: []string{"pdf"}})
		assert.Empty(t, c.FilterAttachments(atts))
	})

	t.Run("partial exclusion leaves siblings intact", func(t *testing.T) {
		c := compileRule(t, &types.Rule{AllowedTypes: []string{"pdf"}})
		kept := c.FilterAttachments(atts)
		require.Len(t, kept, 1)
		assert.Equal(t, "1", kept[0].Ref)
	})
}
