package github

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v60/github"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/rs/zerolog/log"
)

// maxContentChanges bounds which files get their full contents attached.
const maxContentChanges = 1000

// PullRequestFile describes one changed file. Contents is only present when
// the file still exists and changed fewer than maxContentChanges lines.
type PullRequestFile struct {
	Filename  string
	Status    string
	Additions int
	Deletions int
	Changes   int
	Patch     fn.Option[string]
	Contents  fn.Option[string]
}

// Repo names a repository as installation + owner/name.
type Repo struct {
	Installation int64
	Owner        string
	Name         string
}

func (r Repo) FullName() string {
	return r.Owner + "/" + r.Name
}

// ParseFullName splits "owner/name".
func ParseFullName(installation int64, fullName string) (Repo, error) {
	owner, name, ok := strings.Cut(fullName, "/")
	if !ok || owner == "" || name == "" {
		return Repo{}, fmt.Errorf("invalid repository name %q", fullName)
	}
	return Repo{Installation: installation, Owner: owner, Name: name}, nil
}

// ListChangedFiles returns every file of the pull request. Contents are
// fetched at the head revision on a best-effort basis.
func (a *App) ListChangedFiles(ctx context.Context, repo Repo, number int) ([]PullRequestFile, error) {
	api, err := a.Client(ctx, repo.Installation)
	if err != nil {
		return nil, err
	}

	pr, _, err := api.PullRequests.Get(ctx, repo.Owner, repo.Name, number)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("failed to get PR #%d in %s", number, repo.FullName()))
	}
	headSHA := pr.GetHead().GetSHA()

	var files []PullRequestFile
	opts := &gh.ListOptions{PerPage: 100}
	for {
		page, resp, err := api.PullRequests.ListFiles(ctx, repo.Owner, repo.Name, number, opts)
		if err != nil {
			return nil, classify(err, fmt.Sprintf("failed to list files of PR #%d in %s", number, repo.FullName()))
		}
		for _, f := range page {
			files = append(files, a.describeFile(ctx, api, repo, headSHA, f))
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

func (a *App) describeFile(ctx context.Context, api *gh.Client, repo Repo, ref string, f *gh.CommitFile) PullRequestFile {
	file := PullRequestFile{
		Filename:  f.GetFilename(),
		Status:    f.GetStatus(),
		Additions: f.GetAdditions(),
		Deletions: f.GetDeletions(),
		Changes:   f.GetChanges(),
		Patch:     fn.None[string](),
		Contents:  fn.None[string](),
	}
	if patch := f.GetPatch(); patch != "" {
		file.Patch = fn.Some(patch)
	}
	if file.Status == "removed" || file.Changes >= maxContentChanges {
		return file
	}

	content, err := fileContent(ctx, api, repo, file.Filename, ref)
	if err != nil {
		log.Warn().Err(err).Str("component", "github").Str("repo", repo.FullName()).
			Str("file", file.Filename).Msg("could not get file contents")
		return file
	}
	file.Contents = fn.Some(content)
	return file
}

func fileContent(ctx context.Context, api *gh.Client, repo Repo, path, ref string) (string, error) {
	opts := &gh.RepositoryContentGetOptions{Ref: ref}
	file, _, _, err := api.Repositories.GetContents(ctx, repo.Owner, repo.Name, path, opts)
	if err != nil {
		return "", classify(err, fmt.Sprintf("failed to get file %s", path))
	}
	if file == nil {
		return "", fmt.Errorf("path %s is a directory", path)
	}
	content, err := file.GetContent()
	if err != nil {
		return "", fmt.Errorf("failed to decode file content: %w", err)
	}
	return content, nil
}

// RepositoryContext describes the repository for a reviewer: name,
// description, README and any docs/ pages whose names mention a path segment
// of a changed file. README and docs are best effort.
func (a *App) RepositoryContext(ctx context.Context, repo Repo, files []PullRequestFile) (string, error) {
	api, err := a.Client(ctx, repo.Installation)
	if err != nil {
		return "", err
	}

	r, _, err := api.Repositories.Get(ctx, repo.Owner, repo.Name)
	if err != nil {
		return "", classify(err, fmt.Sprintf("failed to get repository %s", repo.FullName()))
	}

	parts := []string{"Repository: " + r.GetName()}
	if desc := r.GetDescription(); desc != "" {
		parts = append(parts, "Description: "+desc)
	}

	if readme, err := readme(ctx, api, repo); err != nil {
		log.Warn().Err(err).Str("component", "github").Str("repo", repo.FullName()).Msg("could not get README")
	} else {
		parts = append(parts, "README:\n"+readme)
	}

	docs, err := relevantDocs(ctx, api, repo, files)
	if err != nil {
		log.Warn().Err(err).Str("component", "github").Str("repo", repo.FullName()).Msg("could not get documentation")
	}
	if len(docs) > 0 {
		parts = append(parts, "\nRelevant Documentation:\n"+strings.Join(docs, "\n"))
	}

	return strings.Join(parts, "\n\n"), nil
}

func readme(ctx context.Context, api *gh.Client, repo Repo) (string, error) {
	rc, _, err := api.Repositories.GetReadme(ctx, repo.Owner, repo.Name, nil)
	if err != nil {
		return "", err
	}
	return rc.GetContent()
}

func relevantDocs(ctx context.Context, api *gh.Client, repo Repo, files []PullRequestFile) ([]string, error) {
	_, entries, _, err := api.Repositories.GetContents(ctx, repo.Owner, repo.Name, "docs", nil)
	if err != nil {
		return nil, err
	}

	var docs []string
	for _, entry := range entries {
		name := entry.GetName()
		if entry.GetType() != "file" || !(strings.HasSuffix(name, ".md") || strings.HasSuffix(name, ".rst")) {
			continue
		}
		if !mentionsChangedPath(name, files) {
			continue
		}
		content, err := fileContent(ctx, api, repo, entry.GetPath(), "")
		if err != nil {
			log.Warn().Err(err).Str("component", "github").Str("doc", entry.GetPath()).Msg("could not get documentation file")
			continue
		}
		docs = append(docs, fmt.Sprintf("Documentation (%s):\n%s", name, content))
	}
	return docs, nil
}

// mentionsChangedPath reports whether docName contains, ignoring case, any
// path segment of any changed file.
func mentionsChangedPath(docName string, files []PullRequestFile) bool {
	lower := strings.ToLower(docName)
	for _, f := range files {
		for _, part := range strings.Split(f.Filename, "/") {
			if part != "" && strings.Contains(lower, strings.ToLower(part)) {
				return true
			}
		}
	}
	return false
}

// PostComment adds a comment to the pull request conversation.
func (a *App) PostComment(ctx context.Context, repo Repo, number int, body string) error {
	api, err := a.Client(ctx, repo.Installation)
	if err != nil {
		return err
	}
	_, _, err = api.Issues.CreateComment(ctx, repo.Owner, repo.Name, number, &gh.IssueComment{Body: gh.String(body)})
	if err != nil {
		return classify(err, fmt.Sprintf("failed to comment on PR #%d in %s", number, repo.FullName()))
	}
	return nil
}

// DiffBundle renders changed files as review input.
func DiffBundle(files []PullRequestFile) string {
	var lines []string
	for _, f := range files {
		lines = append(lines,
			"File: "+f.Filename,
			"Status: "+f.Status,
			fmt.Sprintf("Changes: +%d/-%d", f.Additions, f.Deletions),
		)
		f.Patch.WhenSome(func(p string) {
			lines = append(lines, "Diff:\n"+p)
		})
		f.Contents.WhenSome(func(c string) {
			lines = append(lines, "Full contents:\n"+c)
		})
		lines = append(lines, strings.Repeat("-", 40))
	}
	return strings.Join(lines, "\n")
}
