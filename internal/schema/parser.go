package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The declaration format is Atlas-style HCL: named blocks with string
// labels, string/number/bool/list attributes and heredoc payloads for the
// embedded seed SQL.

type block struct {
	kind   string
	label  string
	attrs  map[string]string
	blocks []*block
}

var (
	heredocOpenRegex = regexp.MustCompile(`<<-?([A-Za-z_][A-Za-z0-9_]*)\r?\n`)
	identRegex       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*`)
)

// extractHeredocs replaces every heredoc body with a placeholder token so
// that the block scanner never sees braces or quotes inside embedded SQL.
func extractHeredocs(src string) (string, map[string]string, error) {
	heredocs := make(map[string]string)
	var out strings.Builder
	n := 0

	for {
		loc := heredocOpenRegex.FindStringSubmatchIndex(src)
		if loc == nil {
			out.WriteString(src)
			break
		}
		tag := src[loc[2]:loc[3]]
		out.WriteString(src[:loc[0]])

		rest := src[loc[1]:]
		body, remainder, ok := cutHeredocBody(rest, tag)
		if !ok {
			return "", nil, fmt.Errorf("unterminated heredoc <<%s", tag)
		}

		key := fmt.Sprintf("@@heredoc:%d@@", n)
		n++
		heredocs[key] = dedent(body)
		out.WriteString(key + "\n")
		src = remainder
	}

	return out.String(), heredocs, nil
}

func cutHeredocBody(src, tag string) (body, remainder string, ok bool) {
	lines := strings.Split(src, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == tag {
			return strings.Join(lines[:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return "", "", false
}

// dedent strips the common leading whitespace the <<- form allows.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent == -1 || n < indent {
			indent = n
		}
	}
	if indent <= 0 {
		return s
	}
	for i, line := range lines {
		if len(line) >= indent {
			lines[i] = line[indent:]
		}
	}
	return strings.Join(lines, "\n")
}

// stripComments removes # and // line comments outside of quoted strings.
func stripComments(src string) string {
	var out strings.Builder
	out.Grow(len(src))
	inString := false

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == '"' {
			inString = !inString
		}
		if !inString {
			if c == '#' || (c == '/' && i+1 < len(src) && src[i+1] == '/') {
				for i < len(src) && src[i] != '\n' {
					i++
				}
				if i < len(src) {
					out.WriteByte('\n')
				}
				continue
			}
		}
		out.WriteByte(c)
	}
	return out.String()
}

// parseBlocks parses the top level of a declaration file into blocks.
func parseBlocks(src string) ([]*block, error) {
	attrs, blocks, err := parseBody(src)
	if err != nil {
		return nil, err
	}
	for k := range attrs {
		return nil, fmt.Errorf("unexpected top-level attribute %q", k)
	}
	return blocks, nil
}

// parseBody parses a block body: a sequence of `ident = value` attributes
// and `ident ["label"] { ... }` nested blocks.
func parseBody(src string) (map[string]string, []*block, error) {
	attrs := make(map[string]string)
	var blocks []*block

	pos := 0
	for {
		pos = skipSpace(src, pos)
		if pos >= len(src) {
			return attrs, blocks, nil
		}

		ident := identRegex.FindString(src[pos:])
		if ident == "" {
			return nil, nil, fmt.Errorf("expected identifier near %q", snippet(src, pos))
		}
		pos += len(ident)
		pos = skipSpace(src, pos)

		// Optional string label before a block body.
		label := ""
		if pos < len(src) && src[pos] == '"' {
			end := strings.IndexByte(src[pos+1:], '"')
			if end < 0 {
				return nil, nil, fmt.Errorf("unterminated label after %q", ident)
			}
			label = src[pos+1 : pos+1+end]
			pos += end + 2
			pos = skipSpace(src, pos)
		}

		switch {
		case pos < len(src) && src[pos] == '=':
			if label != "" {
				return nil, nil, fmt.Errorf("unexpected label %q before attribute %q", label, ident)
			}
			value, next, err := scanValue(src, pos+1)
			if err != nil {
				return nil, nil, fmt.Errorf("attribute %q: %w", ident, err)
			}
			if _, dup := attrs[ident]; dup {
				return nil, nil, fmt.Errorf("duplicate attribute %q", ident)
			}
			attrs[ident] = value
			pos = next

		case pos < len(src) && src[pos] == '{':
			bodyEnd, err := matchBrace(src, pos)
			if err != nil {
				return nil, nil, fmt.Errorf("block %q: %w", ident, err)
			}
			childAttrs, childBlocks, err := parseBody(src[pos+1 : bodyEnd])
			if err != nil {
				return nil, nil, fmt.Errorf("block %q: %w", ident, err)
			}
			blocks = append(blocks, &block{
				kind:   ident,
				label:  label,
				attrs:  childAttrs,
				blocks: childBlocks,
			})
			pos = bodyEnd + 1

		default:
			return nil, nil, fmt.Errorf("expected '=' or '{' after %q near %q", ident, snippet(src, pos))
		}
	}
}

// scanValue reads exactly one attribute value: a quoted string, a bracketed
// list, or a bare token (number, bool, heredoc placeholder). Reading one
// token at a time keeps single-line blocks like
// `column "id" { type = "uuid" null = false }` parseable.
func scanValue(src string, pos int) (string, int, error) {
	pos = skipInlineSpace(src, pos)
	if pos >= len(src) || src[pos] == '\n' || src[pos] == '\r' {
		return "", pos, fmt.Errorf("missing value")
	}

	switch src[pos] {
	case '"':
		for i := pos + 1; i < len(src); i++ {
			switch src[i] {
			case '"':
				return src[pos : i+1], i + 1, nil
			case '\n':
				return "", i, fmt.Errorf("unterminated string")
			}
		}
		return "", len(src), fmt.Errorf("unterminated string")

	case '[':
		depth := 0
		inString := false
		for i := pos; i < len(src); i++ {
			switch src[i] {
			case '"':
				inString = !inString
			case '[':
				if !inString {
					depth++
				}
			case ']':
				if !inString {
					depth--
					if depth == 0 {
						return src[pos : i+1], i + 1, nil
					}
				}
			}
		}
		return "", len(src), fmt.Errorf("unbalanced brackets")

	default:
		end := pos
		for end < len(src) && src[end] != ' ' && src[end] != '\t' && src[end] != '\n' && src[end] != '\r' && src[end] != '}' {
			end++
		}
		return src[pos:end], end, nil
	}
}

// matchBrace returns the index of the brace closing the one at open.
func matchBrace(src string, open int) (int, error) {
	depth := 0
	inString := false
	for i := open; i < len(src); i++ {
		switch src[i] {
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return i, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("unbalanced braces")
}

func skipSpace(src string, pos int) int {
	for pos < len(src) && (src[pos] == ' ' || src[pos] == '\t' || src[pos] == '\n' || src[pos] == '\r') {
		pos++
	}
	return pos
}

func skipInlineSpace(src string, pos int) int {
	for pos < len(src) && (src[pos] == ' ' || src[pos] == '\t') {
		pos++
	}
	return pos
}

func snippet(src string, pos int) string {
	end := pos + 20
	if end > len(src) {
		end = len(src)
	}
	return strings.TrimSpace(src[pos:end])
}

// --- attribute accessors ---

func (b *block) child(kind string) *block {
	for _, c := range b.blocks {
		if c.kind == kind {
			return c
		}
	}
	return nil
}

func (b *block) children(kind string) []*block {
	var out []*block
	for _, c := range b.blocks {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

func (b *block) str(name string) (string, bool) {
	raw, ok := b.attrs[name]
	if !ok {
		return "", false
	}
	if strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) && len(raw) >= 2 {
		return raw[1 : len(raw)-1], true
	}
	return raw, true
}

func (b *block) boolAttr(name string, fallback bool) (bool, error) {
	raw, ok := b.attrs[name]
	if !ok {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("attribute %q: expected bool, got %q", name, raw)
	}
	return v, nil
}

func (b *block) intAttr(name string) (int, bool, error) {
	raw, ok := b.attrs[name]
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("attribute %q: expected integer, got %q", name, raw)
	}
	return v, true, nil
}

var listItemRegex = regexp.MustCompile(`"([^"]*)"`)

func (b *block) stringList(name string) ([]string, bool, error) {
	raw, ok := b.attrs[name]
	if !ok {
		return nil, false, nil
	}
	if !strings.HasPrefix(raw, "[") || !strings.HasSuffix(raw, "]") {
		return nil, true, fmt.Errorf("attribute %q: expected list, got %q", name, raw)
	}
	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	if inner == "" {
		return []string{}, true, nil
	}
	matches := listItemRegex.FindAllStringSubmatch(inner, -1)
	if matches == nil {
		return nil, true, fmt.Errorf("attribute %q: expected quoted list items in %q", name, raw)
	}
	items := make([]string, 0, len(matches))
	for _, m := range matches {
		items = append(items, m[1])
	}
	return items, true, nil
}
