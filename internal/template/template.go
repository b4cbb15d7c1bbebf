// Package template compiles filename templates for extracted attachments.
//
// A template is a literal string with embedded placeholders:
//
//	{date:%Y.%m.%d}  message received time, strftime-style format
//	{rule_name}      name of the rule being executed
//	{account_name}   name of the account being scanned
//	{original_name}  attachment filename without extension
//	{index}          1-based disambiguation counter
//	{ext}            attachment extension including the dot, lower-cased
//
// Unknown placeholders and invalid date format specifiers are compile errors,
// never silently dropped.
package template

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// Error reports an invalid template. It is a rule-configuration class
// failure: the owning rule must be rejected before any network I/O.
type Error struct {
	Template string
	Reason   string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid filename template %q: %s", e.Template, e.Reason)
}

// Values carries the placeholder inputs for one render.
type Values struct {
	Date         time.Time
	RuleName     string
	AccountName  string
	OriginalName string // without extension
	Ext          string // including dot, already lower-cased
	Index        int    // 1-based
}

type segKind int

const (
	segText segKind = iota
	segDate
	segRuleName
	segAccountName
	segOriginalName
	segIndex
	segExt
)

type segment struct {
	kind segKind
	// literal text for segText, strftime format for segDate
	text string
}

// Template is a compiled filename template.
type Template struct {
	raw      string
	segs     []segment
	hasIndex bool
	hasExt   bool
}

// strftime specifiers accepted in {date:...} formats.
const dateSpecifiers = "aAbBcCdDeFgGhHIjklmMnpPrRsStTuUVwWxXyYzZ%"

// Compile parses and validates a template string.
func Compile(raw string) (*Template, error) {
	t := &Template{raw: raw}

	rest := raw
	for len(rest) > 0 {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			t.segs = append(t.segs, segment{kind: segText, text: rest})
			break
		}
		if open > 0 {
			t.segs = append(t.segs, segment{kind: segText, text: rest[:open]})
		}

		end := strings.IndexByte(rest[open:], '}')
		if end < 0 {
			return nil, &Error{Template: raw, Reason: "unclosed placeholder"}
		}
		body := rest[open+1 : open+end]
		rest = rest[open+end+1:]

		seg, err := parsePlaceholder(raw, body)
		if err != nil {
			return nil, err
		}
		switch seg.kind {
		case segIndex:
			t.hasIndex = true
		case segExt:
			t.hasExt = true
		}
		t.segs = append(t.segs, seg)
	}

	return t, nil
}

func parsePlaceholder(raw, body string) (segment, error) {
	if name, format, ok := strings.Cut(body, ":"); ok {
		if name != "date" {
			return segment{}, &Error{Template: raw, Reason: fmt.Sprintf("placeholder %q does not take a format", name)}
		}
		if err := validateDateFormat(raw, format); err != nil {
			return segment{}, err
		}
		return segment{kind: segDate, text: format}, nil
	}

	switch body {
	case "rule_name":
		return segment{kind: segRuleName}, nil
	case "account_name":
		return segment{kind: segAccountName}, nil
	case "original_name":
		return segment{kind: segOriginalName}, nil
	case "index":
		return segment{kind: segIndex}, nil
	case "ext":
		return segment{kind: segExt}, nil
	case "date":
		return segment{}, &Error{Template: raw, Reason: "date placeholder requires a format, e.g. {date:%Y-%m-%d}"}
	default:
		return segment{}, &Error{Template: raw, Reason: fmt.Sprintf("unknown placeholder %q", body)}
	}
}

func validateDateFormat(raw, format string) error {
	if format == "" {
		return &Error{Template: raw, Reason: "empty date format"}
	}
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		if i+1 >= len(format) {
			return &Error{Template: raw, Reason: "dangling % in date format"}
		}
		i++
		if !strings.ContainsRune(dateSpecifiers, rune(format[i])) {
			return &Error{Template: raw, Reason: fmt.Sprintf("unsupported date format specifier %%%c", format[i])}
		}
	}
	return nil
}

// HasIndex reports whether the template contains an {index} placeholder.
func (t *Template) HasIndex() bool { return t.hasIndex }

// String returns the original template text.
func (t *Template) String() string { return t.raw }

// Render produces the filename for the given values.
func (t *Template) Render(v Values) string {
	var b strings.Builder
	for _, seg := range t.segs {
		switch seg.kind {
		case segText:
			b.WriteString(seg.text)
		case segDate:
			b.WriteString(strftime.Format(seg.text, v.Date))
		case segRuleName:
			b.WriteString(v.RuleName)
		case segAccountName:
			b.WriteString(v.AccountName)
		case segOriginalName:
			b.WriteString(v.OriginalName)
		case segIndex:
			b.WriteString(strconv.Itoa(v.Index))
		case segExt:
			b.WriteString(v.Ext)
		}
	}
	return b.String()
}

// Candidate produces the nth collision candidate for the given values,
// deterministically: n=0 is the plain render; when the template contains
// {index} the counter is advanced by n, otherwise a numeric suffix is
// inserted before the extension.
func (t *Template) Candidate(v Values, n int) string {
	if n <= 0 {
		return t.Render(v)
	}
	if t.hasIndex {
		v.Index += n
		return t.Render(v)
	}

	name := t.Render(v)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s_%d%s", base, n, ext)
}

// SplitName splits an attachment filename into the {original_name} and {ext}
// placeholder values.
func SplitName(filename string) (stem, ext string) {
	ext = strings.ToLower(filepath.Ext(filename))
	stem = strings.TrimSuffix(filename, filepath.Ext(filename))
	return stem, ext
}
