package importer

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// extractMarkdown reduces a Markdown document to plain text: emphasis,
// link syntax and heading markers are dropped and blocks are separated by a
// blank line. Raw HTML is discarded.
func extractMarkdown(data []byte) (string, error) {
	src, err := decodeText(data)
	if err != nil {
		return "", err
	}
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var (
		blocks []string
		cur    strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			blocks = append(blocks, s)
		}
		cur.Reset()
	}

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n := n.(type) {
		case *ast.Paragraph, *ast.TextBlock, *ast.Heading:
			flush()
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				flush()
				lines := n.Lines()
				for i := range lines.Len() {
					seg := lines.At(i)
					cur.Write(seg.Value(source))
				}
				flush()
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			if entering {
				cur.Write(n.Label(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.String:
			if entering {
				cur.Write(n.Value)
			}
		case *ast.Text:
			if entering {
				cur.Write(n.Segment.Value(source))
				if n.SoftLineBreak() || n.HardLineBreak() {
					cur.WriteByte('\n')
				}
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}
	flush()
	return strings.Join(blocks, "\n\n"), nil
}
