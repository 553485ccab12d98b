// Package markdown renders question and answer bodies to sanitized HTML.
//
// Markdown is parsed with GitHub-flavoured extensions and hard line breaks.
// Fenced code is highlighted with CSS classes, using the fence language when
// it is known and content detection otherwise. The result is sanitized
// before it is returned.
package markdown

import (
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

// StyleName is the chroma style used for the stylesheet.
const StyleName = "github"

const extensions = blackfriday.CommonExtensions | blackfriday.HardLineBreak

var (
	formatter = chromahtml.New(chromahtml.WithClasses(true))
	policy    = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("class").
		Matching(regexp.MustCompile(`^[a-zA-Z0-9 _-]+$`)).
		OnElements("pre", "code", "span")
	return p
}

// Render converts markdown to sanitized HTML.
func Render(md string) string {
	return string(RenderBytes([]byte(md)))
}

// RenderBytes converts markdown to sanitized HTML.
func RenderBytes(md []byte) []byte {
	if len(bytes.TrimSpace(md)) == 0 {
		return nil
	}

	renderer := &highlightRenderer{
		HTMLRenderer: blackfriday.NewHTMLRenderer(blackfriday.HTMLRendererParameters{
			Flags: blackfriday.CommonHTMLFlags,
		}),
		style: style(),
	}

	dirty := blackfriday.Run(md,
		blackfriday.WithExtensions(extensions),
		blackfriday.WithRenderer(renderer),
	)
	return policy.SanitizeBytes(dirty)
}

// WriteStyleSheet writes the CSS for highlighted code blocks.
func WriteStyleSheet(w io.Writer) error {
	return formatter.WriteCSS(w, style())
}

func style() *chroma.Style {
	if s := styles.Get(StyleName); s != nil {
		return s
	}
	return styles.Fallback
}

// highlightRenderer renders fenced code with chroma and everything else with
// the stock HTML renderer.
type highlightRenderer struct {
	*blackfriday.HTMLRenderer
	style *chroma.Style
}

func (r *highlightRenderer) RenderNode(w io.Writer, node *blackfriday.Node, entering bool) blackfriday.WalkStatus {
	if node.Type == blackfriday.CodeBlock {
		var buf bytes.Buffer
		if err := highlight(&buf, string(node.Literal), language(node.Info), r.style); err == nil {
			_, _ = w.Write(buf.Bytes())
			return blackfriday.GoToNext
		}
	}
	return r.HTMLRenderer.RenderNode(w, node, entering)
}

// language returns the first word of a fence info string.
func language(info []byte) string {
	if fields := strings.Fields(string(info)); len(fields) > 0 {
		return fields[0]
	}
	return ""
}

func lexerFor(code, lang string) chroma.Lexer {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	}
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

func highlight(w io.Writer, code, lang string, style *chroma.Style) error {
	iterator, err := lexerFor(code, lang).Tokenise(nil, code)
	if err != nil {
		return err
	}
	return formatter.Format(w, style, iterator)
}
