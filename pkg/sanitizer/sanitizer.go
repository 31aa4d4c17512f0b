package sanitizer

import (
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	linePipeline = Pipeline{stripControl(false), TrimAndNormalize}
	textPipeline = Pipeline{normalizeNewlines, stripControl(true), trimLines, collapseBlankLines, strings.TrimSpace}
)

// TrimAndNormalize trims s and collapses every whitespace run to a single space.
func TrimAndNormalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	var result strings.Builder
	var lastWasSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				result.WriteRune(' ')
				lastWasSpace = true
			}
			continue
		}
		result.WriteRune(r)
		lastWasSpace = false
	}
	return result.String()
}

// Line cleans single-line input such as names and reasons.
func Line(s string) string {
	return linePipeline.Apply(s)
}

// Text cleans multi-line notes. Line breaks survive; at most one blank line is kept in a row.
func Text(s string) string {
	return textPipeline.Apply(s)
}

// Identifier trims an id and drops anything that is not printable.
func Identifier(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return r
		}
		return -1
	}, s))
}

func stripControl(keepNewlines bool) Strategy {
	return func(s string) string {
		return strings.Map(func(r rune) rune {
			switch {
			case r == '\n' && keepNewlines:
				return r
			case r == '\t' || r == '\n':
				return ' '
			case unicode.IsControl(r) || r == unicode.ReplacementChar:
				return -1
			}
			return r
		}, s)
	}
}

func normalizeNewlines(s string) string {
	return strings.NewReplacer("\r\n", "\n", "\r", "\n").Replace(s)
}

func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = TrimAndNormalize(line)
	}
	return strings.Join(lines, "\n")
}

func collapseBlankLines(s string) string {
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return s
}
