package jira

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownToADFKeepsLineBreaks(t *testing.T) {
	doc := markdownToADF("Ticket closed with reason:\nDuplicate of OPS-1")
	require.NotNil(t, doc)

	want := []adfNode{{
		Type: "paragraph",
		Content: []adfNode{
			{Type: "text", Text: "Ticket closed with reason:"},
			{Type: "hardBreak"},
			{Type: "text", Text: "Duplicate of OPS-1"},
		},
	}}
	if diff := cmp.Diff(want, doc.Content); diff != "" {
		t.Errorf("unexpected ADF (-want +got):\n%s", diff)
	}
}

func TestMarkdownToADFStructure(t *testing.T) {
	md := "## Plan\n\n- **first** step\n- `second`\n\n1. one\n2. two\n\n```go\nfmt.Println()\n```\n\nSee [docs](https://example.com/docs)."
	doc := markdownToADF(md)
	require.NotNil(t, doc)
	require.Len(t, doc.Content, 5)

	assert.Equal(t, "heading", doc.Content[0].Type)
	assert.Equal(t, 2, doc.Content[0].Attrs["level"])

	bullets := doc.Content[1]
	assert.Equal(t, "bulletList", bullets.Type)
	require.Len(t, bullets.Content, 2)
	first := bullets.Content[0].Content[0].Content[0]
	assert.Equal(t, "first", first.Text)
	assert.Equal(t, []adfMark{{Type: "strong"}}, first.Marks)
	code := bullets.Content[1].Content[0].Content[0]
	assert.Equal(t, []adfMark{{Type: "code"}}, code.Marks)

	assert.Equal(t, "orderedList", doc.Content[2].Type)
	assert.Equal(t, 1, doc.Content[2].Attrs["order"])

	assert.Equal(t, "codeBlock", doc.Content[3].Type)
	assert.Equal(t, "go", doc.Content[3].Attrs["language"])
	assert.Equal(t, "fmt.Println()", doc.Content[3].Content[0].Text)

	para := doc.Content[4]
	var link adfNode
	for _, n := range para.Content {
		if n.Text == "docs" {
			link = n
		}
	}
	require.Len(t, link.Marks, 1)
	assert.Equal(t, "https://example.com/docs", link.Marks[0].Attrs["href"])
}

func TestMarkdownToADFLinkifiesURLs(t *testing.T) {
	doc := markdownToADF("Link: https://github.com/acme/api/pull/7")
	require.NotNil(t, doc)
	nodes := doc.Content[0].Content
	last := nodes[len(nodes)-1]
	assert.Equal(t, "https://github.com/acme/api/pull/7", last.Text)
	require.Len(t, last.Marks, 1)
	assert.Equal(t, "link", last.Marks[0].Type)
}

func TestMarkdownToADFEmpty(t *testing.T) {
	assert.Nil(t, markdownToADF(""))
	assert.Nil(t, markdownToADF(" \n "))
}

func TestADFRoundTripToPlainText(t *testing.T) {
	text := "🔍 New Pull Request opened at 2024-03-05 14:07:09\nLink: https://github.com/acme/api/pull/7\nStatus: In Review"
	raw, err := json.Marshal(markdownToADF(text))
	require.NoError(t, err)
	assert.Equal(t, text, adfToPlainText(raw))
}

func TestADFToPlainTextInputs(t *testing.T) {
	assert.Empty(t, adfToPlainText(nil))
	assert.Empty(t, adfToPlainText(json.RawMessage("null")))
	assert.Equal(t, "legacy body", adfToPlainText(json.RawMessage(`"legacy body"`)))
}

func TestPlainTextToADFKeepsMarkupCharacters(t *testing.T) {
	doc := plainTextToADF("Ticket closed with reason:\nDuplicate of *OPS-2* and _OPS-3_\n")
	require.NotNil(t, doc)

	want := []adfNode{{
		Type: "paragraph",
		Content: []adfNode{
			{Type: "text", Text: "Ticket closed with reason:"},
			{Type: "hardBreak"},
			{Type: "text", Text: "Duplicate of *OPS-2* and _OPS-3_"},
		},
	}}
	if diff := cmp.Diff(want, doc.Content); diff != "" {
		t.Errorf("unexpected ADF (-want +got):\n%s", diff)
	}
	assert.Nil(t, plainTextToADF("  \n"))
}

func TestMarkdownToADFMergesTextRuns(t *testing.T) {
	doc := markdownToADF("one two three **four five** six")
	require.NotNil(t, doc)

	want := []adfNode{{
		Type: "paragraph",
		Content: []adfNode{
			{Type: "text", Text: "one two three "},
			{Type: "text", Text: "four five", Marks: []adfMark{{Type: "strong"}}},
			{Type: "text", Text: " six"},
		},
	}}
	if diff := cmp.Diff(want, doc.Content); diff != "" {
		t.Errorf("unexpected ADF (-want +got):\n%s", diff)
	}
}
