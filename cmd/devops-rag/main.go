package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sha1n/devops-rag/internal/app"
	"github.com/spf13/cobra"
)

var (
	// Version is injected at build time
	Version = "dev"
	// Build is injected at build time
	Build = "unknown"
	// ProgramName is injected at build time
	ProgramName = "devops-rag"
)

func main() {
	runMain(os.Args, os.Exit)
}

func runMain(args []string, exit func(int)) {
	if err := Execute(Version, Build, ProgramName, args[1:]); err != nil {
		exit(1)
	}
}

// Execute is the entry point for the CLI, extracted for testing
func Execute(version, build, programName string, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand(version, programName, app.DefaultRunParams())
	rootCmd.SetArgs(args)

	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, programName string, params app.RunParams) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Azure DevOps repository ingestion",
		Long:         "Downloads Azure DevOps repositories and wikis, crawls them into records and serves the indexed records over MCP",
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.SetVersionTemplate(`{{.Version}}
`)

	app.RegisterFlags(rootCmd.PersistentFlags())

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Print the repository names of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunList(cmd.Context(), params, cmd.Flags())
		},
	}

	downloadCmd := &cobra.Command{
		Use:   "download <repository>",
		Short: "Download and extract a repository into the download directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunDownload(cmd.Context(), params, cmd.Flags(), args[0])
		},
	}
	app.RegisterBranchFlag(downloadCmd.Flags())

	wikiCmd := &cobra.Command{
		Use:   "wiki <name>",
		Short: "Download and extract a project wiki into the download directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunWiki(cmd.Context(), params, cmd.Flags(), args[0])
		},
	}

	crawlCmd := &cobra.Command{
		Use:   "crawl <repository>",
		Short: "Print the records of an extracted repository as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunCrawl(cmd.Context(), params, cmd.Flags(), args[0])
		},
	}
	app.RegisterCrawlFlags(crawlCmd.Flags())

	ingestCmd := &cobra.Command{
		Use:   "ingest [repository[@branch]...]",
		Short: "Download, crawl and index repositories (all of them when none are named)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunIngest(cmd.Context(), params, cmd.Flags(), args)
		},
	}
	app.RegisterIngestFlags(ingestCmd.Flags())

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the indexed records over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.RunServe(cmd.Context(), params, cmd.Flags(), version)
		},
	}
	app.RegisterIndexFlags(serveCmd.Flags())

	rootCmd.AddCommand(listCmd, downloadCmd, wikiCmd, crawlCmd, ingestCmd, serveCmd)
	return rootCmd
}
