package jira

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Atlassian Document Format, the rich text format of Jira Cloud v3 bodies.

type adfDoc struct {
	Type    string    `json:"type"`
	Version int       `json:"version"`
	Content []adfNode `json:"content"`
}

type adfNode struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []adfNode      `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []adfMark      `json:"marks,omitempty"`
}

type adfMark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.Linkify, extension.Strikethrough))

// markdownToADF converts markdown (LLM output and link notes) into an ADF
// document. Line breaks inside a paragraph are kept as hard breaks so
// multi-line comments render the way they were written.
func markdownToADF(md string) *adfDoc {
	if strings.TrimSpace(md) == "" {
		return nil
	}
	src := []byte(md)
	root := markdown.Parser().Parse(text.NewReader(src))

	doc := &adfDoc{Type: "doc", Version: 1}
	doc.Content = blockChildren(root, src)
	if len(doc.Content) == 0 {
		doc.Content = []adfNode{{Type: "paragraph", Content: []adfNode{{Type: "text", Text: md}}}}
	}
	return doc
}

// plainTextToADF keeps text exactly as typed: one paragraph, newlines as
// hard breaks, no markup.
func plainTextToADF(s string) *adfDoc {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var content []adfNode
	for i, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		if i > 0 {
			content = append(content, adfNode{Type: "hardBreak"})
		}
		content = append(content, textNodes(line, nil)...)
	}
	return &adfDoc{Type: "doc", Version: 1, Content: []adfNode{{Type: "paragraph", Content: content}}}
}

func blockChildren(parent ast.Node, src []byte) []adfNode {
	var nodes []adfNode
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		if n, ok := blockNode(c, src); ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func blockNode(n ast.Node, src []byte) (adfNode, bool) {
	switch n := n.(type) {
	case *ast.Heading:
		content := inlineChildren(n, src, nil)
		if len(content) == 0 {
			return adfNode{}, false
		}
		return adfNode{Type: "heading", Attrs: map[string]any{"level": n.Level}, Content: content}, true

	case *ast.Paragraph, *ast.TextBlock:
		content := inlineChildren(n, src, nil)
		if len(content) == 0 {
			return adfNode{}, false
		}
		return adfNode{Type: "paragraph", Content: content}, true

	case *ast.List:
		node := adfNode{Type: "bulletList"}
		if n.IsOrdered() {
			node.Type = "orderedList"
			node.Attrs = map[string]any{"order": max(n.Start, 1)}
		}
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			content := blockChildren(item, src)
			if len(content) == 0 {
				continue
			}
			node.Content = append(node.Content, adfNode{Type: "listItem", Content: content})
		}
		return node, len(node.Content) > 0

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		code := strings.TrimRight(linesText(n, src), "\n")
		if code == "" {
			return adfNode{}, false
		}
		node := adfNode{Type: "codeBlock", Content: []adfNode{{Type: "text", Text: code}}}
		if f, ok := n.(*ast.FencedCodeBlock); ok {
			if lang := string(f.Language(src)); lang != "" {
				node.Attrs = map[string]any{"language": lang}
			}
		}
		return node, true

	case *ast.Blockquote:
		content := blockChildren(n, src)
		return adfNode{Type: "blockquote", Content: content}, len(content) > 0

	case *ast.ThematicBreak:
		return adfNode{Type: "rule"}, true

	case *ast.HTMLBlock:
		raw := strings.TrimSpace(linesText(n, src))
		if raw == "" {
			return adfNode{}, false
		}
		return adfNode{Type: "paragraph", Content: []adfNode{{Type: "text", Text: raw}}}, true
	}
	return adfNode{}, false
}

func linesText(n ast.Node, src []byte) string {
	var sb strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		sb.Write(seg.Value(src))
	}
	return sb.String()
}

func inlineChildren(parent ast.Node, src []byte, marks []adfMark) []adfNode {
	var out []adfNode
	for c := parent.FirstChild(); c != nil; c = c.NextSibling() {
		for _, n := range inlineNode(c, src, marks) {
			out = appendInline(out, n)
		}
	}
	return out
}

// appendInline folds n into the previous node when both are text with the
// same marks. The parser splits plain runs at every linkify candidate.
func appendInline(out []adfNode, n adfNode) []adfNode {
	if last := len(out) - 1; last >= 0 && n.Type == "text" && out[last].Type == "text" &&
		reflect.DeepEqual(out[last].Marks, n.Marks) {
		out[last].Text += n.Text
		return out
	}
	return append(out, n)
}

func inlineNode(n ast.Node, src []byte, marks []adfMark) []adfNode {
	switch n := n.(type) {
	case *ast.Text:
		out := textNodes(string(n.Segment.Value(src)), marks)
		if n.HardLineBreak() || n.SoftLineBreak() {
			out = append(out, adfNode{Type: "hardBreak"})
		}
		return out

	case *ast.String:
		return textNodes(string(n.Value), marks)

	case *ast.CodeSpan:
		var sb strings.Builder
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				sb.Write(t.Segment.Value(src))
			case *ast.String:
				sb.Write(t.Value)
			}
		}
		// Jira only allows link alongside the code mark.
		return textNodes(sb.String(), []adfMark{{Type: "code"}})

	case *ast.Emphasis:
		mark := "em"
		if n.Level >= 2 {
			mark = "strong"
		}
		return inlineChildren(n, src, withMark(marks, adfMark{Type: mark}))

	case *east.Strikethrough:
		return inlineChildren(n, src, withMark(marks, adfMark{Type: "strike"}))

	case *ast.Link:
		link := adfMark{Type: "link", Attrs: map[string]any{"href": string(n.Destination)}}
		return inlineChildren(n, src, withMark(marks, link))

	case *ast.Image:
		link := adfMark{Type: "link", Attrs: map[string]any{"href": string(n.Destination)}}
		return inlineChildren(n, src, withMark(marks, link))

	case *ast.AutoLink:
		href := string(n.URL(src))
		if n.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(href, "mailto:") {
			href = "mailto:" + href
		}
		link := adfMark{Type: "link", Attrs: map[string]any{"href": href}}
		return textNodes(string(n.Label(src)), withMark(marks, link))

	case *ast.RawHTML:
		var sb strings.Builder
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			sb.Write(seg.Value(src))
		}
		return textNodes(sb.String(), marks)
	}
	return inlineChildren(n, src, marks)
}

// textNodes drops empty text, which Jira rejects with HTTP 400 INVALID_INPUT.
func textNodes(s string, marks []adfMark) []adfNode {
	if s == "" {
		return nil
	}
	return []adfNode{{Type: "text", Text: s, Marks: marks}}
}

func withMark(marks []adfMark, m adfMark) []adfMark {
	out := make([]adfMark, 0, len(marks)+1)
	out = append(out, marks...)
	return append(out, m)
}

// adfToPlainText extracts plain text from an ADF document.
func adfToPlainText(data json.RawMessage) string {
	if len(data) == 0 || string(data) == "null" {
		return ""
	}
	// Bodies from older API versions arrive as plain strings.
	var s string
	if json.Unmarshal(data, &s) == nil {
		return strings.TrimSpace(s)
	}
	var doc struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, node := range doc.Content {
		extractText(node, &sb)
	}
	return strings.TrimSpace(sb.String())
}

func extractText(data json.RawMessage, sb *strings.Builder) {
	var node struct {
		Type    string            `json:"type"`
		Text    string            `json:"text"`
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(data, &node); err != nil {
		return
	}
	if node.Type == "hardBreak" {
		sb.WriteString("\n")
		return
	}
	sb.WriteString(node.Text)
	for _, child := range node.Content {
		extractText(child, sb)
	}
	switch node.Type {
	case "paragraph", "heading", "codeBlock", "listItem", "blockquote":
		sb.WriteString("\n")
	}
}
