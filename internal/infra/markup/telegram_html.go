// Package markup converts model Markdown into the HTML subset Telegram accepts
// (b, i, s, code, pre, a, blockquote).
package markup

import (
	"bytes"
	"strconv"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var (
	parserOnce sync.Once
	md         goldmark.Markdown

	textEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")
)

func parser() goldmark.Markdown {
	parserOnce.Do(func() {
		md = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify))
	})
	return md
}

// ToTelegramHTML renders src as Telegram HTML. Unfinished constructs, such as
// an unclosed ** while a reply is still streaming, come out as literal text.
func ToTelegramHTML(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	source := []byte(src)
	doc := parser().Parser().Parse(text.NewReader(source))
	w := &htmlWriter{source: source}
	_ = ast.Walk(doc, w.walk)
	return strings.TrimSpace(w.out.String())
}

type listState struct {
	ordered bool
	next    int
}

type htmlWriter struct {
	source []byte
	out    bytes.Buffer
	lists  []listState
}

func (w *htmlWriter) write(s string) { w.out.WriteString(s) }

func (w *htmlWriter) escaped(b []byte) { w.out.WriteString(textEscaper.Replace(string(b))) }

// trimNewlines drops trailing newlines so closing tags hug their content.
func (w *htmlWriter) trimNewlines() {
	b := w.out.Bytes()
	n := len(b)
	for n > 0 && b[n-1] == '\n' {
		n--
	}
	w.out.Truncate(n)
}

func (w *htmlWriter) blockEnd() {
	if len(w.lists) > 0 {
		w.trimNewlines()
		w.write("\n")
		return
	}
	w.trimNewlines()
	w.write("\n\n")
}

func (w *htmlWriter) lines(n ast.Node) []byte {
	var buf bytes.Buffer
	ls := n.Lines()
	for i := 0; i < ls.Len(); i++ {
		seg := ls.At(i)
		buf.Write(seg.Value(w.source))
	}
	return bytes.TrimRight(buf.Bytes(), "\n")
}

func (w *htmlWriter) walk(n ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node := n.(type) {
	case *ast.Document:

	case *ast.Paragraph, *ast.TextBlock:
		if !entering {
			w.blockEnd()
		}

	case *ast.Heading:
		if entering {
			w.write("<b>")
		} else {
			w.write("</b>")
			w.blockEnd()
		}

	case *ast.Blockquote:
		if entering {
			w.write("<blockquote>")
		} else {
			w.trimNewlines()
			w.write("</blockquote>")
			w.blockEnd()
		}

	case *ast.FencedCodeBlock:
		if entering {
			lang := string(node.Language(w.source))
			if lang != "" {
				w.write(`<pre><code class="language-` + attrEscaper.Replace(lang) + `">`)
				w.escaped(w.lines(node))
				w.write("</code></pre>")
			} else {
				w.write("<pre>")
				w.escaped(w.lines(node))
				w.write("</pre>")
			}
			w.blockEnd()
		}
		return ast.WalkSkipChildren, nil

	case *ast.CodeBlock:
		if entering {
			w.write("<pre>")
			w.escaped(w.lines(node))
			w.write("</pre>")
			w.blockEnd()
		}
		return ast.WalkSkipChildren, nil

	case *ast.HTMLBlock:
		if entering {
			w.escaped(w.lines(node))
			if node.HasClosure() {
				w.escaped(node.ClosureLine.Value(w.source))
			}
			w.blockEnd()
		}
		return ast.WalkSkipChildren, nil

	case *ast.ThematicBreak:
		if entering {
			w.write("――――――――")
			w.blockEnd()
		}

	case *ast.List:
		if entering {
			start := 1
			if node.IsOrdered() && node.Start > 0 {
				start = node.Start
			}
			w.lists = append(w.lists, listState{ordered: node.IsOrdered(), next: start})
		} else {
			w.lists = w.lists[:len(w.lists)-1]
			if len(w.lists) == 0 {
				w.trimNewlines()
				w.write("\n\n")
			}
		}

	case *ast.ListItem:
		if entering {
			depth := len(w.lists) - 1
			if depth > 0 {
				w.trimNewlines()
				w.write("\n")
			}
			w.write(strings.Repeat("  ", depth))
			top := &w.lists[depth]
			if top.ordered {
				w.write(strconv.Itoa(top.next) + ". ")
				top.next++
			} else {
				w.write("• ")
			}
		}

	case *ast.Text:
		if entering {
			w.escaped(node.Segment.Value(w.source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				w.write("\n")
			}
		}

	case *ast.String:
		if entering {
			w.escaped(node.Value)
		}

	case *ast.Emphasis:
		tag := "i"
		if node.Level >= 2 {
			tag = "b"
		}
		if entering {
			w.write("<" + tag + ">")
		} else {
			w.write("</" + tag + ">")
		}

	case *extast.Strikethrough:
		if entering {
			w.write("<s>")
		} else {
			w.write("</s>")
		}

	case *ast.CodeSpan:
		if entering {
			w.write("<code>")
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				switch t := c.(type) {
				case *ast.Text:
					w.escaped(t.Segment.Value(w.source))
				case *ast.String:
					w.escaped(t.Value)
				}
			}
			w.write("</code>")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Link:
		if entering {
			w.write(`<a href="` + attrEscaper.Replace(string(node.Destination)) + `">`)
		} else {
			w.write("</a>")
		}

	case *ast.AutoLink:
		if entering {
			url := node.URL(w.source)
			label := node.Label(w.source)
			if node.AutoLinkType == ast.AutoLinkURL && !bytes.Contains(url, []byte("://")) {
				url = append([]byte("http://"), url...)
			}
			w.write(`<a href="` + attrEscaper.Replace(string(url)) + `">`)
			w.escaped(label)
			w.write("</a>")
		}
		return ast.WalkSkipChildren, nil

	case *ast.Image:
		if entering {
			w.write(`<a href="` + attrEscaper.Replace(string(node.Destination)) + `">`)
		} else {
			w.write("</a>")
		}

	case *ast.RawHTML:
		if entering {
			segs := node.Segments
			for i := 0; i < segs.Len(); i++ {
				seg := segs.At(i)
				w.escaped(seg.Value(w.source))
			}
		}
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}
