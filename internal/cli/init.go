package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
)

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
}

var initRunner = runInit

const defaultInitPath = "restbuilder.yaml"

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample restbuilder configuration file",
		Long: "Scaffold a commented restbuilder configuration file that documents available options. " +
			"A path ending in .toml gets the TOML variant.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", defaultInitPath, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultInitPath
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	content := sampleConfigYAML
	if strings.EqualFold(filepath.Ext(absPath), ".toml") {
		content = sampleConfigTOML
	}

	// Atomic write via temp + rename
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	fmt.Fprintf(os.Stdout, "Wrote sample config to %s\n", absPath)
	return nil
}

// sampleConfigYAML is a commented example config documenting available options.
var sampleConfigYAML = heredoc.Doc(`
	# restbuilder configuration (YAML)
	# All fields are optional. Command-line flags override config values.

	# Path or URL to the XML API schema (http/https or local file).
	# input: ./blog.xml

	# Output directory of the Go package. Defaults to the package name.
	# out: ./blog

	# Go package name. Defaults to the lower-cased Api name.
	# package: blog

	# Import path of the reply-wrapper runtime used by generated code.
	# runtimeImport: github.com/mark3labs/restreply

	# Also write an OpenAPI 3 document into this directory.
	# openapi: ./docs

	# OpenAPI document format (yaml|json).
	# openapiFormat: yaml

	# Write the document as Swagger 2.0 instead of OpenAPI 3.
	# openapiV2: false

	# Fail when the files on disk differ from freshly generated output.
	# check: false

	# Preview planned outputs without writing files.
	# dryRun: false

	# Overwrite non-empty output directory.
	# force: false

	# Enable verbose logging.
	# verbose: false
`)

var sampleConfigTOML = heredoc.Doc(`
	# restbuilder configuration (TOML)
	# All fields are optional. Command-line flags override config values.

	# input = "./blog.xml"
	# out = "./blog"
	# package = "blog"
	# runtimeImport = "github.com/mark3labs/restreply"
	# openapi = "./docs"
	# openapiFormat = "yaml"
	# openapiV2 = false
	# check = false
	# dryRun = false
	# force = false
	# verbose = false
`)
