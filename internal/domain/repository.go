package domain

import "strings"

// Repository describes a repository as reported by the remote listing API.
type Repository struct {
	ID            string
	Name          string
	DefaultBranch string
	WebURL        string
}

// RepositoryRef identifies one downloadable snapshot.
type RepositoryRef struct {
	Name   string
	Branch string
}

// String renders the ref as name@branch, or just the name when no branch is set.
func (r RepositoryRef) String() string {
	if r.Branch == "" {
		return r.Name
	}
	return r.Name + "@" + r.Branch
}

// ParseRepositoryRef parses "name" or "name@branch".
func ParseRepositoryRef(s string) RepositoryRef {
	s = strings.TrimSpace(s)
	name, branch, _ := strings.Cut(s, "@")
	return RepositoryRef{Name: strings.TrimSpace(name), Branch: strings.TrimSpace(branch)}
}

// BranchName strips the refs/heads/ prefix the remote API uses for branch refs.
func BranchName(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
