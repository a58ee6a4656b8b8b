package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// Seed files embed their rows as a raw multi-row INSERT statement. The
// loader decodes that text into a structured (columns, rows) pair so the
// executor can inspect individual values; the raw text is never executed
// when decoding succeeds.

var insertRegex = regexp.MustCompile(`(?is)^\s*INSERT\s+INTO\s+"?([A-Za-z_][A-Za-z0-9_]*)"?\s*\(([^)]*)\)\s*VALUES\s*(.*?);?\s*$`)

// insertData is the decoded form of one embedded INSERT statement.
type insertData struct {
	Table   string
	Columns []string
	Rows    [][]Value
}

// parseInsert decodes a single multi-row INSERT ... VALUES statement.
func parseInsert(sql string) (*insertData, error) {
	m := insertRegex.FindStringSubmatch(sql)
	if m == nil {
		return nil, fmt.Errorf("statement is not a parseable INSERT ... VALUES form")
	}

	data := &insertData{Table: m[1]}
	for _, col := range strings.Split(m[2], ",") {
		col = strings.TrimSpace(strings.Trim(strings.TrimSpace(col), `"`))
		if col == "" {
			return nil, fmt.Errorf("empty column name in INSERT column list")
		}
		data.Columns = append(data.Columns, col)
	}

	tuples, err := splitTuples(m[3])
	if err != nil {
		return nil, err
	}
	if len(tuples) == 0 {
		return nil, fmt.Errorf("INSERT statement carries no row tuples")
	}

	for i, tuple := range tuples {
		row, err := parseTuple(tuple)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if len(row) != len(data.Columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i+1, len(row), len(data.Columns))
		}
		data.Rows = append(data.Rows, row)
	}

	return data, nil
}

// splitTuples splits the VALUES tail into its top-level parenthesised
// tuples, respecting nesting and single-quoted strings.
func splitTuples(values string) ([]string, error) {
	var tuples []string
	depth := 0
	inString := false
	start := -1

	for i := 0; i < len(values); i++ {
		c := values[i]
		if inString {
			if c == '\'' {
				// '' escapes a quote inside the string
				if i+1 < len(values) && values[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			if depth == 0 {
				start = i
			}
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced parentheses in VALUES list")
			}
			if depth == 0 {
				tuples = append(tuples, values[start+1:i])
				start = -1
			}
		}
	}
	if inString {
		return nil, fmt.Errorf("unterminated string literal in VALUES list")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced parentheses in VALUES list")
	}
	return tuples, nil
}

// parseTuple splits one tuple body into scalars at top-level commas.
func parseTuple(tuple string) ([]Value, error) {
	var row []Value
	depth := 0
	inString := false
	start := 0

	flush := func(end int) error {
		v, err := parseScalar(tuple[start:end])
		if err != nil {
			return err
		}
		row = append(row, v)
		return nil
	}

	for i := 0; i < len(tuple); i++ {
		c := tuple[i]
		if inString {
			if c == '\'' {
				if i+1 < len(tuple) && tuple[i+1] == '\'' {
					i++
					continue
				}
				inString = false
			}
			continue
		}
		switch c {
		case '\'':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				if err := flush(i); err != nil {
					return nil, err
				}
				start = i + 1
			}
		}
	}
	if err := flush(len(tuple)); err != nil {
		return nil, err
	}
	return row, nil
}

var numberRegex = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// parseScalar decodes one SQL literal. Anything that is not a string,
// number, bool or NULL is preserved as a verbatim expression (NOW(),
// CURRENT_DATE and friends).
func parseScalar(raw string) (Value, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Value{}, fmt.Errorf("empty value")
	}

	upper := strings.ToUpper(s)
	switch {
	case upper == "NULL":
		return Value{Kind: ValueNull}, nil
	case upper == "TRUE":
		return Value{Kind: ValueBool, Bool: true}, nil
	case upper == "FALSE":
		return Value{Kind: ValueBool, Bool: false}, nil
	case strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2:
		body := s[1 : len(s)-1]
		return Value{Kind: ValueString, Text: strings.ReplaceAll(body, "''", "'")}, nil
	case numberRegex.MatchString(s):
		return Value{Kind: ValueNumber, Text: s}, nil
	default:
		return Value{Kind: ValueExpr, Text: s}, nil
	}
}

// splitStatements splits raw SQL text into statements at semicolons outside
// of single-quoted strings, dropping line comments.
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	inString := false

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if !inString && c == '-' && i+1 < len(sql) && sql[i+1] == '-' {
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			current.WriteByte('\n')
			continue
		}
		if c == '\'' {
			inString = !inString
		}
		if c == ';' && !inString {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
			continue
		}
		current.WriteByte(c)
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
