package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/mark3labs/restbuilder/internal/emitter/goemitter"
	"github.com/mark3labs/restbuilder/internal/emitter/openapiemitter"
	"github.com/mark3labs/restbuilder/internal/emitter/output"
	"github.com/mark3labs/restbuilder/internal/logx"
	genspec "github.com/mark3labs/restbuilder/internal/spec"
)

// GenerateConfig captures all inputs that influence the generate command after
// merging defaults, config file values, and CLI overrides.
type GenerateConfig struct {
	Input         string
	Out           string
	Package       string
	RuntimeImport string
	OpenAPI       string
	OpenAPIFormat string
	OpenAPIV2     bool
	ConfigPath    string
	Check         bool
	DryRun        bool
	Force         bool
	Verbose       bool
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{OpenAPIFormat: string(openapiemitter.FormatYAML)}
}

var generateRunner = runGenerate

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Compile a REST API schema into a typed Go client",
		Long: "Compile a declarative REST API schema (XML) into a typed Go client package " +
			"and, optionally, an OpenAPI 3 document. Options can be provided via flags, config files, or defaults.",
		Example: strings.TrimSpace(`  restbuilder generate --input blog.xml --out ./blog
  restbuilder generate --input blog.xml --openapi ./docs --openapi-format json
  restbuilder --config restbuilder.yaml generate --check`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveGenerateConfig(cmd)
			if err != nil {
				return err
			}
			return generateRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("input", "", "Path or URL to the API schema document")
	flags.String("out", "", "Output directory for the Go package (derived from the Api name when omitted)")
	flags.String("package", "", "Go package name of the generated code")
	flags.String("runtime-import", "", "Import path of the reply-wrapper runtime")
	flags.String("openapi", "", "Also write an OpenAPI 3 document into this directory")
	flags.String("openapi-format", "", "OpenAPI document format (yaml|json); defaults to yaml")
	flags.Bool("openapi-v2", false, "Write the document as Swagger 2.0 instead of OpenAPI 3")
	flags.Bool("check", false, "Compare generated output with the files on disk and fail when stale")
	flags.Bool("dry-run", false, "Preview planned outputs without writing files")
	flags.Bool("force", false, "Overwrite existing output when set")

	return cmd
}

func resolveGenerateConfig(cmd *cobra.Command) (*GenerateConfig, error) {
	cfg := defaultGenerateConfig()

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	configPath = strings.TrimSpace(configPath)
	if configPath != "" {
		cfg.ConfigPath = configPath
		if err := applyGenerateConfigFromFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if err := applyGenerateFlagOverrides(cmd.Flags(), &cfg); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyGenerateFlagOverrides(flags *pflag.FlagSet, cfg *GenerateConfig) error {
	strs := []struct {
		name string
		dst  *string
	}{
		{"input", &cfg.Input},
		{"out", &cfg.Out},
		{"package", &cfg.Package},
		{"runtime-import", &cfg.RuntimeImport},
		{"openapi", &cfg.OpenAPI},
		{"openapi-format", &cfg.OpenAPIFormat},
	}
	for _, s := range strs {
		if !flags.Changed(s.name) {
			continue
		}
		value, err := flags.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(value)
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"openapi-v2", &cfg.OpenAPIV2},
		{"check", &cfg.Check},
		{"dry-run", &cfg.DryRun},
		{"force", &cfg.Force},
		{"verbose", &cfg.Verbose},
	}
	for _, b := range bools {
		if !flags.Changed(b.name) {
			continue
		}
		value, err := flags.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = value
	}

	return nil
}

func (c *GenerateConfig) normalize() {
	c.Input = strings.TrimSpace(c.Input)
	c.Out = strings.TrimSpace(c.Out)
	c.Package = strings.TrimSpace(c.Package)
	c.RuntimeImport = strings.TrimSpace(c.RuntimeImport)
	c.OpenAPI = strings.TrimSpace(c.OpenAPI)
	c.OpenAPIFormat = strings.ToLower(strings.TrimSpace(c.OpenAPIFormat))
}

func (c *GenerateConfig) validate() error {
	if c.Input == "" {
		return newUsageError("generate: --input is required (set via flag or config file)")
	}
	format, err := openapiemitter.ParseFormat(c.OpenAPIFormat)
	if err != nil {
		return newUsageError(fmt.Sprintf("generate: unsupported --openapi-format %q (allowed: yaml, json)", c.OpenAPIFormat))
	}
	c.OpenAPIFormat = string(format)
	if c.Check && c.DryRun {
		return newUsageError("generate: --check and --dry-run cannot be combined")
	}
	return nil
}

func runGenerate(ctx context.Context, cfg *GenerateConfig) error {
	logger := logx.NewText(os.Stderr, cfg.Verbose)

	// 1) Load and build the API tree (file or http/https URL)
	api, err := genspec.Load(ctx, cfg.Input, genspec.WithLoaderLogger(logger))
	if err != nil {
		var le *genspec.LoadError
		if errors.As(err, &le) {
			msg := le.Message
			if le.Location != "" {
				msg = fmt.Sprintf("%s\nLocation: %s", msg, le.Location)
			}
			return newUsageError(msg)
		}
		return err
	}

	// 2) Derive the output directory when omitted
	outDir := cfg.Out
	if outDir == "" {
		pkg := cfg.Package
		if pkg == "" {
			pkg = goemitter.PackageName(api.Name)
		}
		outDir = pkg
	}

	// 3) Render every artifact before touching the file system, so a failing
	// emitter leaves no partial output behind
	art, err := goemitter.Generate(api, goemitter.GenerateOptions{
		Package:       cfg.Package,
		RuntimeImport: cfg.RuntimeImport,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	sets := []output.Set{{Dir: outDir, Files: goemitter.Files(api.Name, art)}}
	if cfg.OpenAPI != "" {
		doc, err := openapiemitter.Render(ctx, api, openapiemitter.Options{
			Format:   openapiemitter.Format(cfg.OpenAPIFormat),
			Swagger2: cfg.OpenAPIV2,
		})
		if err != nil {
			return err
		}
		sets = append(sets, output.Set{Dir: cfg.OpenAPI, Files: doc})
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// --out and --openapi may name the same directory
	sets, err = output.Group(sets)
	if err != nil {
		return wrapOutputError(err)
	}

	// 4) Preview, compare or write
	switch {
	case cfg.DryRun:
		for _, set := range sets {
			printPlan(os.Stdout, set.Dir, output.Plan(set.Files))
		}
		return nil
	case cfg.Check:
		var stale []output.Diff
		for _, set := range sets {
			diffs, err := output.Check(set.Dir, set.Files)
			if err != nil && !errors.Is(err, output.ErrStale) {
				return wrapOutputError(err)
			}
			stale = append(stale, diffs...)
		}
		if len(stale) == 0 {
			fmt.Fprintln(os.Stdout, "Generated files are up to date.")
			return nil
		}
		for _, d := range stale {
			fmt.Fprint(os.Stdout, d.Unified)
		}
		return fmt.Errorf("generate: %d generated file(s) out of date: %w", len(stale), output.ErrStale)
	default:
		if err := output.WriteAll(sets, cfg.Force); err != nil {
			return wrapOutputError(err)
		}
		for _, set := range sets {
			logger.Info("generated files", "api", api.Name, "dir", set.Dir, "files", len(set.Files))
		}
		return nil
	}
}

func printPlan(w io.Writer, outDir string, planned []output.PlannedFile) {
	fmt.Fprintf(w, "Planned writes to %s (%d files):\n", outDir, len(planned))
	for _, p := range planned {
		fmt.Fprintf(w, "- %s\n", p.RelPath)
	}
}

func wrapOutputError(err error) error {
	// Provide clearer guidance for common FS failures.
	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "permission") || strings.Contains(lower, "read-only") || strings.Contains(lower, "mkdir") || strings.Contains(lower, "rename") || strings.Contains(lower, "output directory") {
		return newUsageError(fmt.Sprintf("output error: %s\nHint: choose a different --out or use --force when appropriate.", msg))
	}
	return err
}

// applyGenerateConfigFromFile reads a YAML (or JSON) config, or TOML when the
// file ends in .toml.
func applyGenerateConfigFromFile(cfg *GenerateConfig, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}

	var raw map[string]any
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		err = toml.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}

	for key, value := range raw {
		var (
			str  *string
			flag *bool
		)
		switch normalizeKey(key) {
		case "input":
			str = &cfg.Input
		case "out":
			str = &cfg.Out
		case "package":
			str = &cfg.Package
		case "runtimeimport":
			str = &cfg.RuntimeImport
		case "openapi":
			str = &cfg.OpenAPI
		case "openapiformat":
			str = &cfg.OpenAPIFormat
		case "openapiv2":
			flag = &cfg.OpenAPIV2
		case "check":
			flag = &cfg.Check
		case "dryrun":
			flag = &cfg.DryRun
		case "force":
			flag = &cfg.Force
		case "verbose":
			flag = &cfg.Verbose
		default:
			return newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
		}
		if str != nil {
			s, err := valueAsString(value)
			if err != nil {
				return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
			}
			*str = s
			continue
		}
		b, err := valueAsBool(value)
		if err != nil {
			return newUsageError(fmt.Sprintf("config field %q: %v", key, err))
		}
		*flag = b
	}

	return nil
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		trimmed := strings.ToLower(strings.TrimSpace(val))
		switch trimmed {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n":
			return false, nil
		case "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}
