package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Issue represents a created Jira issue.
type Issue struct {
	Key    string `json:"key"`
	ID     string `json:"id"`
	Self   string `json:"self"`
	Browse string `json:"-"`
}

// CreateIssueInput holds parameters for creating a Jira issue.
type CreateIssueInput struct {
	Project     string // project key, e.g. "ENG"
	Summary     string
	Description string // markdown
	IssueType   string // e.g. "Task", "Bug", "Story"
	Labels      []string
}

type createIssuePayload struct {
	Fields createIssueFields `json:"fields"`
}

type createIssueFields struct {
	Project     projectRef `json:"project"`
	Summary     string     `json:"summary"`
	IssueType   issueType  `json:"issuetype"`
	Description *adfDoc    `json:"description,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
}

type projectRef struct {
	Key string `json:"key"`
}

type issueType struct {
	Name string `json:"name"`
}

// IssueSummary represents a Jira issue with the fields this service reads.
type IssueSummary struct {
	Key         string `json:"key"`
	Summary     string `json:"summary"`
	Status      string `json:"status"`
	IssueType   string `json:"issue_type"`
	Assignee    string `json:"assignee,omitempty"`
	Description string `json:"description,omitempty"`
	Browse      string `json:"browse"`
}

// Comment is one issue comment with its body flattened to plain text.
type Comment struct {
	ID      string
	Author  string
	Body    string
	Created string
}

// Transition is a workflow move available from the issue's current status.
type Transition struct {
	ID   string
	Name string
	To   string
}

// CreateIssue creates a new issue in Jira and returns its details.
func (c *Client) CreateIssue(ctx context.Context, input CreateIssueInput) (*Issue, error) {
	if input.Project == "" {
		return nil, fmt.Errorf("project key is required")
	}
	if input.IssueType == "" {
		input.IssueType = "Task"
	}

	payload := createIssuePayload{
		Fields: createIssueFields{
			Project:     projectRef{Key: input.Project},
			Summary:     input.Summary,
			IssueType:   issueType{Name: input.IssueType},
			Description: markdownToADF(input.Description),
			Labels:      input.Labels,
		},
	}

	var issue Issue
	if err := c.do(ctx, http.MethodPost, "/rest/api/3/issue", payload, &issue); err != nil {
		return nil, err
	}
	issue.Browse = c.BrowseURL(issue.Key)
	return &issue, nil
}

// GetIssue fetches a single Jira issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*IssueSummary, error) {
	path := fmt.Sprintf("/rest/api/3/issue/%s?fields=%s",
		url.PathEscape(key), url.QueryEscape("summary,status,issuetype,assignee,description"))

	var raw struct {
		Key    string `json:"key"`
		Fields struct {
			Summary     string                        `json:"summary"`
			Status      struct{ Name string }         `json:"status"`
			IssueType   struct{ Name string }         `json:"issuetype"`
			Assignee    *struct{ DisplayName string } `json:"assignee"`
			Description json.RawMessage               `json:"description"`
		} `json:"fields"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}

	assignee := ""
	if raw.Fields.Assignee != nil {
		assignee = raw.Fields.Assignee.DisplayName
	}
	return &IssueSummary{
		Key:         raw.Key,
		Summary:     raw.Fields.Summary,
		Status:      raw.Fields.Status.Name,
		IssueType:   raw.Fields.IssueType.Name,
		Assignee:    assignee,
		Description: adfToPlainText(raw.Fields.Description),
		Browse:      c.BrowseURL(raw.Key),
	}, nil
}

// Format says how a comment body becomes ADF.
type Format int

const (
	// FormatPlain keeps the body verbatim. Used for text people typed.
	FormatPlain Format = iota
	FormatMarkdown
)

func (f Format) document(body string) *adfDoc {
	if f == FormatMarkdown {
		return markdownToADF(body)
	}
	return plainTextToADF(body)
}

// AddComment appends a comment to an issue.
func (c *Client) AddComment(ctx context.Context, key, body string, format Format) error {
	doc := format.document(body)
	if doc == nil {
		return fmt.Errorf("comment body is empty")
	}
	path := fmt.Sprintf("/rest/api/3/issue/%s/comment", url.PathEscape(key))
	return c.do(ctx, http.MethodPost, path, map[string]any{"body": doc}, nil)
}

// ListComments returns every comment on an issue, oldest first.
func (c *Client) ListComments(ctx context.Context, key string) ([]Comment, error) {
	var comments []Comment
	startAt := 0
	for {
		path := fmt.Sprintf("/rest/api/3/issue/%s/comment?startAt=%d&maxResults=100", url.PathEscape(key), startAt)
		var page struct {
			StartAt  int `json:"startAt"`
			Total    int `json:"total"`
			Comments []struct {
				ID      string                        `json:"id"`
				Author  *struct{ DisplayName string } `json:"author"`
				Body    json.RawMessage               `json:"body"`
				Created string                        `json:"created"`
			} `json:"comments"`
		}
		if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
			return nil, err
		}
		for _, cm := range page.Comments {
			author := ""
			if cm.Author != nil {
				author = cm.Author.DisplayName
			}
			comments = append(comments, Comment{
				ID:      cm.ID,
				Author:  author,
				Body:    adfToPlainText(cm.Body),
				Created: cm.Created,
			})
		}
		startAt += len(page.Comments)
		if len(page.Comments) == 0 || startAt >= page.Total {
			return comments, nil
		}
	}
}

// ListTransitions returns the workflow transitions available for an issue.
func (c *Client) ListTransitions(ctx context.Context, key string) ([]Transition, error) {
	path := fmt.Sprintf("/rest/api/3/issue/%s/transitions", url.PathEscape(key))
	var resp struct {
		Transitions []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
			To   struct {
				Name string `json:"name"`
			} `json:"to"`
		} `json:"transitions"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	out := make([]Transition, 0, len(resp.Transitions))
	for _, t := range resp.Transitions {
		out = append(out, Transition{ID: t.ID, Name: t.Name, To: t.To.Name})
	}
	return out, nil
}

// DoTransition applies a workflow transition by id.
func (c *Client) DoTransition(ctx context.Context, key, transitionID string) error {
	path := fmt.Sprintf("/rest/api/3/issue/%s/transitions", url.PathEscape(key))
	payload := map[string]any{"transition": map[string]string{"id": transitionID}}
	return c.do(ctx, http.MethodPost, path, payload, nil)
}
