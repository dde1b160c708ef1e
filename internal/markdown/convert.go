// Package markdown collapses Markdown-authored content into the single-line
// plain form stored for accepted question text, preserving LaTeX math.
package markdown

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	blockFormulaRe  = regexp.MustCompile(`(?s)\$\$([^$]+)\$\$`)
	inlineFormulaRe = regexp.MustCompile(`\$([^$]+)\$`)
	codeBlockRe     = regexp.MustCompile("(?s)```[^\n]*\n(.+?)```")
	inlineCodeRe    = regexp.MustCompile("`([^`]+)`")
	imageRe         = regexp.MustCompile(`!\[([^\]]*)\]\([^)]+\)`)
	linkRe          = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	boldRe          = regexp.MustCompile(`\*\*(.+?)\*\*|__(.+?)__`)
	italicRe        = regexp.MustCompile(`\*(.+?)\*|_(.+?)_`)
	strikethroughRe = regexp.MustCompile(`~~(.+?)~~`)
	headingRe       = regexp.MustCompile(`^#{1,6}\s+`)
	blockquoteRe    = regexp.MustCompile(`^>\s+`)
	listMarkerRe    = regexp.MustCompile(`^[*\-+]\s+|^\d+\.\s+`)
	horizontalRe    = regexp.MustCompile(`^[*\-_]{3,}$`)
	multiSpaceRe    = regexp.MustCompile(` +`)
)

// ToPlainInline converts Markdown text to a single line of plain text.
// Inline ($...$) and block ($$...$$) formulas pass through untouched;
// everything else loses its formatting but keeps its content.
func ToPlainInline(text string) string {
	if text == "" {
		return ""
	}

	text, formulas := protectFormulas(text)
	text = stripFormatting(text)
	text = collapseWhitespace(text)
	text = restoreFormulas(text, formulas)

	return strings.TrimSpace(text)
}

// Placeholders are delimited with NUL bytes so no formatting pattern can
// touch them before the formulas are restored.
func protectFormulas(text string) (string, []string) {
	var formulas []string
	protect := func(match string) string {
		formulas = append(formulas, match)
		return fmt.Sprintf("\x00%d\x00", len(formulas)-1)
	}
	text = blockFormulaRe.ReplaceAllStringFunc(text, protect)
	text = inlineFormulaRe.ReplaceAllStringFunc(text, protect)
	return text, formulas
}

func stripFormatting(text string) string {
	text = codeBlockRe.ReplaceAllString(text, "$1")
	text = inlineCodeRe.ReplaceAllString(text, "$1")
	text = imageRe.ReplaceAllString(text, "$1")
	text = linkRe.ReplaceAllString(text, "$1")
	text = boldRe.ReplaceAllString(text, "$1$2")
	text = italicRe.ReplaceAllString(text, "$1$2")
	text = strikethroughRe.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = headingRe.ReplaceAllString(line, "")
		line = blockquoteRe.ReplaceAllString(line, "")
		line = listMarkerRe.ReplaceAllString(line, "")
		if horizontalRe.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func collapseWhitespace(text string) string {
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return multiSpaceRe.ReplaceAllString(text, " ")
}

func restoreFormulas(text string, formulas []string) string {
	for i, formula := range formulas {
		text = strings.Replace(text, fmt.Sprintf("\x00%d\x00", i), formula, 1)
	}
	return text
}
