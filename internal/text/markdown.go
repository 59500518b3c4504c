// Package text prepares input for speech synthesis: extracting
// speakable prose from markdown and splitting long input into
// segments that fit the per-request character limit.
package text

import (
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// Extractor turns markdown into plain prose suitable for reading
// aloud. Formatting is dropped, link and image targets are replaced
// by their visible text, and code blocks are skipped unless included
// explicitly.
type Extractor struct {
	includeCode bool
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithCode includes code block contents in the extracted prose.
func WithCode(include bool) ExtractorOption {
	return func(e *Extractor) { e.includeCode = include }
}

// NewExtractor returns an extractor with default settings.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// PlainText extracts speakable text from markdown.
func (e *Extractor) PlainText(markdown string) string {
	md := goldmark.New()
	reader := gmtext.NewReader([]byte(markdown))
	doc := md.Parser().Parse(reader)

	var buf strings.Builder
	e.walk(doc, reader.Source(), &buf)

	return strings.TrimSpace(whitespaceRun.ReplaceAllString(buf.String(), " "))
}

// walk recursively renders the AST as prose. Block boundaries become
// sentence breaks so downstream segmentation has something to cut at.
func (e *Extractor) walk(node ast.Node, source []byte, buf *strings.Builder) {
	switch n := node.(type) {
	case *ast.Text:
		buf.Write(n.Segment.Value(source))
		if n.SoftLineBreak() || n.HardLineBreak() {
			buf.WriteByte(' ')
		}
		return

	case *ast.String:
		buf.Write(n.Value)
		return

	case *ast.CodeSpan:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return

	case *ast.CodeBlock:
		e.writeCodeLines(n, source, buf)
		return

	case *ast.FencedCodeBlock:
		e.writeCodeLines(n, source, buf)
		return

	case *ast.HTMLBlock, *ast.RawHTML:
		return

	case *ast.Heading:
		e.walkChildren(n, source, buf)
		buf.WriteString(". ")
		return

	case *ast.Paragraph:
		e.walkChildren(n, source, buf)
		e.endSentence(buf)
		return

	case *ast.ListItem:
		e.walkChildren(n, source, buf)
		e.endSentence(buf)
		return

	case *ast.Link, *ast.Emphasis, *ast.Blockquote:
		e.walkChildren(node, source, buf)
		return

	case *ast.AutoLink:
		buf.Write(n.Label(source))
		return

	case *ast.Image:
		first := true
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			if t, ok := c.(*ast.Text); ok {
				if !first {
					buf.WriteByte(' ')
				}
				buf.Write(t.Segment.Value(source))
				first = false
			}
		}
		return

	case *ast.ThematicBreak:
		e.endSentence(buf)
		return
	}

	e.walkChildren(node, source, buf)
}

func (e *Extractor) walkChildren(node ast.Node, source []byte, buf *strings.Builder) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		e.walk(c, source, buf)
	}
}

// endSentence closes the current block with terminal punctuation so
// two blocks never merge into one spoken run-on.
func (e *Extractor) endSentence(buf *strings.Builder) {
	s := strings.TrimRight(buf.String(), " \t\n")
	if s == "" {
		return
	}
	switch s[len(s)-1] {
	case '.', '!', '?', ':', ';':
		buf.WriteByte(' ')
	default:
		buf.WriteString(". ")
	}
}

func (e *Extractor) writeCodeLines(node interface {
	Lines() *gmtext.Segments
}, source []byte, buf *strings.Builder) {
	if !e.includeCode {
		return
	}
	lines := node.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if line := strings.TrimSpace(string(seg.Value(source))); line != "" {
			parts = append(parts, line)
		}
	}
	if len(parts) > 0 {
		buf.WriteString(strings.Join(parts, " "))
		buf.WriteString(". ")
	}
}
