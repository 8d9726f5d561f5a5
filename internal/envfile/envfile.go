// Package envfile edits line-oriented KEY=VALUE files without disturbing
// comments, blank lines, ordering, export prefixes or quoting.
package envfile

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
)

var assignment = regexp.MustCompile(`^(\s*(?:export\s+)?)([A-Za-z_][A-Za-z0-9_.\-]*)(\s*=\s*)(.*)$`)

// line is one physical line. For assignments the text is split into
// prefix (indent, export, key, '='), value (as written, quotes included)
// and suffix (trailing whitespace and inline comment).
type line struct {
	raw    string
	key    string
	prefix string
	value  string
	suffix string
	quote  byte
	cr     bool
}

// Document is a parsed KEY=VALUE file.
type Document struct {
	lines           []line
	trailingNewline bool
}

// Parse splits data into lines and recognises assignments. It never fails:
// lines that are not assignments are kept verbatim.
func Parse(data []byte) *Document {
	doc := &Document{}
	if len(data) == 0 {
		return doc
	}

	text := string(data)
	doc.trailingNewline = strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")

	for _, raw := range strings.Split(text, "\n") {
		doc.lines = append(doc.lines, parseLine(raw))
	}
	return doc
}

func parseLine(raw string) line {
	l := line{raw: raw}
	body := raw
	if strings.HasSuffix(body, "\r") {
		l.cr = true
		body = strings.TrimSuffix(body, "\r")
	}

	m := assignment.FindStringSubmatch(body)
	if m == nil {
		return l
	}

	l.key = m[2]
	l.prefix = m[1] + m[2] + m[3]
	l.value, l.suffix, l.quote = splitValue(m[4])
	return l
}

// splitValue separates a raw value from its trailing comment.
func splitValue(rest string) (value, suffix string, quote byte) {
	if rest == "" {
		return "", "", 0
	}

	if q := rest[0]; q == '"' || q == '\'' {
		for i := 1; i < len(rest); i++ {
			if q == '"' && rest[i] == '\\' {
				i++
				continue
			}
			if rest[i] == q {
				return rest[:i+1], rest[i+1:], q
			}
		}
		// Unterminated quote: treat the whole remainder as the value.
		return rest, "", q
	}

	end := len(rest)
	for i := 1; i < len(rest); i++ {
		if rest[i] == '#' && (rest[i-1] == ' ' || rest[i-1] == '\t') {
			end = i - 1
			break
		}
	}
	value = strings.TrimRight(rest[:end], " \t")
	return value, rest[len(value):], 0
}

// Keys returns assignment keys in file order, including duplicates.
func (d *Document) Keys() []string {
	var keys []string
	for _, l := range d.lines {
		if l.key != "" {
			keys = append(keys, l.key)
		}
	}
	return keys
}

// Get returns the decoded value of the last assignment to key, as a shell
// sourcing the file would see it.
func (d *Document) Get(key string) (string, bool) {
	for i := len(d.lines) - 1; i >= 0; i-- {
		l := d.lines[i]
		if l.key != key {
			continue
		}
		parsed, err := godotenv.Unmarshal(l.key + "=" + l.value)
		if err != nil {
			return l.value, true
		}
		return parsed[key], true
	}
	return "", false
}

// Set replaces the value of every assignment to key and returns the number of
// lines matched. Quoting style is kept; unquoted values that need quoting are
// double-quoted. A zero return means the document is unchanged.
func (d *Document) Set(key, value string) int {
	matched := 0
	for i := range d.lines {
		l := &d.lines[i]
		if l.key != key {
			continue
		}
		matched++
		l.value = encodeValue(value, l.quote)
		if l.value != "" {
			l.quote = l.value[0]
			if l.quote != '"' && l.quote != '\'' {
				l.quote = 0
			}
		}
		l.raw = l.prefix + l.value + l.suffix
		if l.cr {
			l.raw += "\r"
		}
	}
	return matched
}

func encodeValue(value string, quote byte) string {
	switch quote {
	case '\'':
		if !strings.ContainsRune(value, '\'') {
			return "'" + value + "'"
		}
	case '"':
		return `"` + escapeDouble(value) + `"`
	}

	if value == "" || !strings.ContainsAny(value, " \t#'\"\\$`") {
		return value
	}
	return `"` + escapeDouble(value) + `"`
}

func escapeDouble(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "$", `\$`)
	return r.Replace(value)
}

// Bytes serialises the document. Parse(data).Bytes() reproduces data exactly.
func (d *Document) Bytes() []byte {
	var buf bytes.Buffer
	for i, l := range d.lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(l.raw)
	}
	if d.trailingNewline {
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
