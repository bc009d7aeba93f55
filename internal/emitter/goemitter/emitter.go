package goemitter

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/restbuilder/internal/emitter/output"
	"github.com/mark3labs/restbuilder/internal/logx"
	"github.com/mark3labs/restbuilder/internal/spec"
)

// Options controls how the Go emitter packages generated code.
type Options struct {
	OutDir        string // required; target directory for the generated package
	Package       string // Go package name; derived from the Api name when empty
	RuntimeImport string // import path of the reply-wrapper runtime
	Force         bool   // allow writing into a non-empty directory
	DryRun        bool   // don't write, only plan
	Check         bool   // compare with the files on disk, never write
	Logger        logx.Logger
}

// Result returns the planned files and the resolved package name. In check
// mode Diffs lists the stale files.
type Result struct {
	Package string
	Planned []output.PlannedFile
	Diffs   []output.Diff
}

// Emit generates the Go client for api and writes it to opts.OutDir.
func Emit(ctx context.Context, api *spec.Api, opts Options) (*Result, error) {
	if api == nil {
		return nil, fmt.Errorf("goemitter: nil Api")
	}
	if strings.TrimSpace(opts.OutDir) == "" {
		return nil, fmt.Errorf("goemitter: OutDir is required")
	}
	logger := logx.OrNop(opts.Logger)
	pkg := strings.TrimSpace(opts.Package)
	if pkg == "" {
		pkg = PackageName(api.Name)
	}

	art, err := Generate(api, GenerateOptions{Package: pkg, RuntimeImport: opts.RuntimeImport, Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := Files(api.Name, art)
	res := &Result{Package: pkg, Planned: output.Plan(files)}
	switch {
	case opts.Check:
		diffs, err := output.Check(opts.OutDir, files)
		res.Diffs = diffs
		if err != nil {
			return res, fmt.Errorf("goemitter: %w", err)
		}
	case opts.DryRun:
		logger.Debug("dry run, nothing written", "files", len(res.Planned))
	default:
		if err := output.Write(opts.OutDir, files, opts.Force); err != nil {
			return nil, fmt.Errorf("goemitter: %w", err)
		}
		logger.Info("generated go client", "api", api.Name, "dir", opts.OutDir, "files", len(res.Planned))
	}
	return res, nil
}

// Files names the artifacts of an Api: <stem>_declarations.go,
// <stem>_definitions.go, <stem>_factory.go and, when present,
// <stem>_bindings.go.
func Files(apiName string, art *Artifacts) output.Files {
	stem := FileStem(apiName)
	files := output.Files{
		stem + "_declarations.go": art.Declarations,
		stem + "_definitions.go":  art.Definitions,
		stem + "_factory.go":      art.Factory,
	}
	if art.Bindings != nil {
		files[stem+"_bindings.go"] = art.Bindings
	}
	return files
}
