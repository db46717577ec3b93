package devops

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/sha1n/devops-rag/internal/transport"
)

// DefaultBaseURL is the Azure DevOps Services endpoint.
const DefaultBaseURL = "https://dev.azure.com"

// ErrInvalidConnection indicates an incomplete connection context.
var ErrInvalidConnection = errors.New("invalid connection")

// Connection is the organization/project/credential triple used to address and
// authenticate every remote call. Token is a secret: String and LogValue mask it.
type Connection struct {
	Organization string
	Project      string
	Token        string
	BaseURL      string
}

// Validate checks that all required fields are present.
func (c Connection) Validate() error {
	switch {
	case strings.TrimSpace(c.Organization) == "":
		return fmt.Errorf("%w: organization is required", ErrInvalidConnection)
	case strings.TrimSpace(c.Project) == "":
		return fmt.Errorf("%w: project is required", ErrInvalidConnection)
	case c.Token == "":
		return fmt.Errorf("%w: token is required", ErrInvalidConnection)
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: base URL %q is not absolute", ErrInvalidConnection, c.BaseURL)
		}
	}
	return nil
}

// GitAPIURL returns <base>/<organization>/<project>/_apis/git.
func (c Connection) GitAPIURL() string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return fmt.Sprintf("%s/%s/%s/_apis/git",
		strings.TrimSuffix(base, "/"),
		url.PathEscape(c.Organization),
		url.PathEscape(c.Project),
	)
}

// ArchiveURL returns the items endpoint that serves the full tree of repo at branch as a zip.
func (c Connection) ArchiveURL(repo, branch string) string {
	return fmt.Sprintf("%s/repositories/%s/items/items?path=/"+
		"&versionDescriptor[versionOptions]=0"+
		"&versionDescriptor[versionType]=0"+
		"&versionDescriptor[version]=%s"+
		"&resolveLfs=true&$format=zip&api-version=5.0&download=true",
		c.GitAPIURL(), url.PathEscape(repo), url.QueryEscape(branch))
}

// RepositoriesURL returns the repositories collection endpoint.
func (c Connection) RepositoriesURL() string {
	return c.GitAPIURL() + "/repositories?api-version=6.0"
}

// TransportConfig returns cfg with the connection's Basic credentials applied
// (empty username, token as password).
func (c Connection) TransportConfig(cfg transport.Config) transport.Config {
	cfg.Username = ""
	cfg.Password = c.Token
	return cfg
}

// String renders the connection without the token.
func (c Connection) String() string {
	return fmt.Sprintf("%s/%s (token ****)", c.Organization, c.Project)
}

// LogValue implements slog.LogValuer with the token masked.
func (c Connection) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("organization", c.Organization),
		slog.String("project", c.Project),
		slog.String("base_url", c.BaseURL),
		slog.String("token", "****"),
	)
}
