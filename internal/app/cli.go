package app

import (
	"time"

	"github.com/spf13/pflag"
)

// RegisterFlags registers the flags shared by every command on the given FlagSet
func RegisterFlags(flags *pflag.FlagSet) {
	flags.StringP("organization", "o", "", "Azure DevOps organization")
	flags.StringP("project", "p", "", "Azure DevOps project")
	flags.StringP("token", "t", "", "Personal access token")
	flags.String("base-url", "", "Azure DevOps base URL (default https://dev.azure.com)")
	flags.StringP("download-dir", "d", "", "Directory repositories are extracted into")
	flags.StringP("log-level", "l", "", "Log level: debug, info, warn or error")

	flags.Duration("http-timeout", 0, "Timeout of a single HTTP attempt")
	flags.Float64("http-rate-limit", 0, "Requests per second (0 disables limiting)")
	flags.Int("http-rate-burst", 0, "Burst size of the rate limiter")

	flags.Int("retry-max", 0, "Retries after the first attempt on transient server errors")
	flags.Duration("retry-backoff-factor", 0, "Base of the exponential backoff")
	flags.Duration("retry-max-backoff", 0, "Upper bound of a single backoff")
	flags.IntSlice("retry-statuses", nil, "HTTP statuses that are retried (comma-separated)")
}

// RegisterBranchFlag registers the branch override
func RegisterBranchFlag(flags *pflag.FlagSet) {
	flags.StringP("branch", "b", "", "Branch to download (default: the repository default branch)")
}

// RegisterCrawlFlags registers the flags that control which files become records
func RegisterCrawlFlags(flags *pflag.FlagSet) {
	flags.StringSliceP("extensions", "e", nil, "File extensions to crawl (comma-separated)")
}

// RegisterIndexFlags registers the index location and limits
func RegisterIndexFlags(flags *pflag.FlagSet) {
	flags.Bool("index-enabled", true, "Index crawled records")
	flags.String("index-dir", "", "Directory holding the search indexes")
	flags.Int("index-max-results", 0, "Maximum search results returned")
	flags.Int64("index-max-file-size", 0, "Records larger than this many bytes are not indexed")
}

// RegisterIngestFlags registers the ingest command flags
func RegisterIngestFlags(flags *pflag.FlagSet) {
	RegisterBranchFlag(flags)
	RegisterCrawlFlags(flags)
	RegisterIndexFlags(flags)
	flags.Bool("clean", false, "Remove the previous extraction before downloading")
	flags.Duration("wait", time.Duration(0), "Wait this long for a concurrent ingest to finish (0 fails immediately)")
}
