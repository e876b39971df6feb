// Package refs finds ticket keys and pull request links in free text.
package refs

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/justmike1/devx/apperr"
)

var (
	ticketPattern   = regexp.MustCompile(`(?:^|\s|#)([A-Z]+-\d+)`)
	ticketIDPattern = regexp.MustCompile(`^[A-Z]+-\d+$`)

	// prURLPattern matches review links such as https://github.com/owner/repo/pull/123
	// on any host, so enterprise installations are covered too.
	prURLPattern     = regexp.MustCompile(`https?://[^/\s]+/[^/\s]+/[^/\s]+/pull/\d+`)
	prURLPartPattern = regexp.MustCompile(`^(https?)://([^/\s]+)/([^/\s]+)/([^/\s]+)/pull/(\d+)`)
)

// ExtractTicketIDs returns each distinct ticket key in text, in the order
// first seen. Keys must be upper case.
func ExtractTicketIDs(text string) []string {
	var ids []string
	seen := make(map[string]struct{})
	for _, m := range ticketPattern.FindAllStringSubmatch(text, -1) {
		id := m[1]
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func ValidTicketID(id string) bool {
	return ticketIDPattern.MatchString(id)
}

// PRLink identifies one pull request.
type PRLink struct {
	Scheme string
	Host   string
	Owner  string
	Repo   string
	Number int
}

func (l PRLink) FullName() string {
	return l.Owner + "/" + l.Repo
}

func (l PRLink) String() string {
	scheme := l.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s/pull/%d", scheme, l.Host, l.Owner, l.Repo, l.Number)
}

// ParsePRURL parses a single pull request link. Anything after the number
// (e.g. /files) is ignored.
func ParsePRURL(rawURL string) (PRLink, error) {
	m := prURLPartPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return PRLink{}, apperr.Validation("Invalid PR URL format. Expected: https://github.com/owner/repo/pull/number")
	}
	n, err := strconv.Atoi(m[5])
	if err != nil {
		return PRLink{}, apperr.Validation("invalid PR number in URL: %s", m[5])
	}
	return PRLink{Scheme: m[1], Host: m[2], Owner: m[3], Repo: m[4], Number: n}, nil
}

// ExtractPRURLs returns each distinct pull request link in text, in the order
// first seen.
func ExtractPRURLs(text string) []string {
	var urls []string
	seen := make(map[string]struct{})
	for _, u := range prURLPattern.FindAllString(text, -1) {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}
