package repair

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/local/facturador/internal/arith"
)

// Stage is one text transformation of the repair pipeline.
type Stage struct {
	Name  string
	Apply func(string) string
}

// Pipeline lists the stages in the order they run, least destructive first.
var Pipeline = []Stage{
	{Name: "strip_control", Apply: StripControl},
	{Name: "extract_fenced", Apply: ExtractFenced},
	{Name: "trailing_commas", Apply: RemoveTrailingCommas},
	{Name: "arithmetic", Apply: RepairArithmetic},
}

// StripControl drops every non-printable rune except newline, carriage
// return and tab.
func StripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' || unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
}

var fenced = regexp.MustCompile("(?s)```(?:[jJ][sS][oO][nN])?[ \t]*\r?\n?(.*?)```")

// ExtractFenced returns the body of the first fenced code block. Without a
// fence it falls back to the span between the first '{' and the last '}'
// (or '[' and ']' when the text is an array), and finally to the whole text.
func ExtractFenced(s string) string {
	if m := fenced.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	open, closer := "{", "}"
	if strings.HasPrefix(strings.TrimSpace(s), "[") {
		open, closer = "[", "]"
	}
	start := strings.Index(s, open)
	end := strings.LastIndex(s, closer)
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return strings.TrimSpace(s)
}

// RemoveTrailingCommas deletes commas that directly precede a closing brace
// or bracket. String literals are left alone.
func RemoveTrailingCommas(s string) string {
	return rewriteOutsideStrings(s, func(rest string) (string, int) {
		if rest[0] == ',' && closesNext(rest[1:]) {
			return "", 1
		}
		return "", 0
	})
}

// rewriteOutsideStrings copies s, offering visit every position that lies
// outside a string literal. When visit reports n > 0 the next n bytes are
// replaced by out.
func rewriteOutsideStrings(s string, visit func(rest string) (out string, n int)) string {
	var b strings.Builder
	b.Grow(len(s))
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if out, n := visit(s[i:]); n > 0 {
			b.WriteString(out)
			i += n - 1
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// closesNext reports whether the first non-space byte of s is '}' or ']'.
func closesNext(s string) bool {
	t := strings.TrimLeft(s, " \t\r\n")
	return t != "" && (t[0] == '}' || t[0] == ']')
}

var (
	// object value, optionally quoted, made only of expression characters and
	// followed by a delimiter. Matched at a ':' outside any string.
	arithValue = regexp.MustCompile(`^(:[ \t]*)("?)([0-9(+\-][0-9 \t.+\-*/()]*[0-9)])("?)([ \t]*[,}\]\r\n])`)
	// an operator joining two numeric groups.
	joinedGroups = regexp.MustCompile(`[0-9)][ \t]*[+\-*/][ \t]*[+\-]?[0-9(.]`)
)

// RepairArithmetic replaces object values such as 100.00 + 21.00 with their
// computed value. Identifier shaped values (CUIT numbers, dates) are quoted
// instead of evaluated. Text inside string literals other than a whole value
// is never touched.
func RepairArithmetic(s string) string {
	return rewriteOutsideStrings(s, func(rest string) (string, int) {
		if rest[0] != ':' {
			return "", 0
		}
		m := arithValue.FindStringSubmatch(rest)
		if m == nil {
			return "", 0
		}
		if out, ok := repairValue(m[1], m[2], m[3], m[4], m[5]); ok {
			return out, len(m[0])
		}
		return "", 0
	})
}

func repairValue(prefix, open, expr, closeQ, tail string) (string, bool) {
	if open != closeQ {
		return "", false
	}
	bare := strings.TrimSpace(expr)
	if arith.IsIdentifier(bare) {
		return prefix + strconv.Quote(bare) + tail, true
	}
	if !joinedGroups.MatchString(bare) {
		return "", false
	}
	if v, ok := arith.Evaluate(bare); ok {
		return prefix + strconv.FormatFloat(v, 'f', -1, 64) + tail, true
	}
	if open == "" {
		return prefix + strconv.Quote(bare) + tail, true
	}
	return "", false
}
