package pacman

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tys-asm/asmctl/internal/helpers"
)

// Package is one installed package (name + version)
type Package struct {
	Name    string
	Version string
}

// PackageInfo is the parsed output of pacman -Qi / -Si
type PackageInfo struct {
	Name        string
	Version     string
	Description string
	Repository  string
	URL         string
	Size        string
	InstallDate string
	Depends     []string
	Installed   bool
}

// SearchResult is one hit from pacman -Ss
type SearchResult struct {
	Repository  string
	Name        string
	Version     string
	Description string
	Installed   bool
}

var searchHeaderRe = regexp.MustCompile(`^(\S+)/(\S+)\s+(\S+)(?:\s+(.*))?$`)

// Query wraps pacman's read-only query commands. Nothing here mutates
// package state, so callers may run queries with unbounded concurrency.
type Query struct {
	runner helpers.CommandRunner
}

// NewQuery creates a Query
func NewQuery(runner helpers.CommandRunner) *Query {
	return &Query{runner: runner}
}

// ListInstalled returns all installed packages (pacman -Q)
func (q *Query) ListInstalled(ctx context.Context) ([]Package, error) {
	output, err := q.runner.RunCommand(ctx, "pacman", "-Q")
	if err != nil {
		return nil, fmt.Errorf("list installed packages: %w", err)
	}

	var pkgs []Package
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		parts := strings.Fields(line)
		if len(parts) >= 2 {
			pkgs = append(pkgs, Package{Name: parts[0], Version: parts[1]})
		}
	}
	return pkgs, nil
}

// IsInstalled checks whether a package is installed (pacman -Q name)
func (q *Query) IsInstalled(ctx context.Context, name string) bool {
	_, err := q.runner.RunCommand(ctx, "pacman", "-Q", name)
	return err == nil
}

// Info retrieves package details; installed selects -Qi over -Si
func (q *Query) Info(ctx context.Context, name string, installed bool) (*PackageInfo, error) {
	flag := "-Si"
	if installed {
		flag = "-Qi"
	}
	output, err := q.runner.RunCommand(ctx, "pacman", flag, name)
	if err != nil {
		return nil, fmt.Errorf("package info for %q: %w", name, err)
	}
	if strings.TrimSpace(output) == "" {
		return nil, fmt.Errorf("no package info for %q", name)
	}
	return parseInfoBlock(output, installed), nil
}

// Search queries the official repositories (pacman -Ss)
func (q *Query) Search(ctx context.Context, query string) ([]SearchResult, error) {
	output, err := q.runner.RunCommand(ctx, "pacman", "-Ss", query)
	if err != nil {
		// pacman -Ss exits 1 on zero matches
		if q.runner.GetExitCode(err) == 1 {
			return nil, nil
		}
		return nil, fmt.Errorf("repo search: %w", err)
	}
	return parseSearchOutput(output), nil
}

// parseInfoBlock parses one pacman -Qi/-Si block. Continuation lines
// (leading whitespace) belong to the previous field.
func parseInfoBlock(output string, installed bool) *PackageInfo {
	info := &PackageInfo{Installed: installed}
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, " ") || !strings.Contains(line, ":") {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "Name":
			info.Name = value
		case "Version":
			info.Version = value
		case "Description":
			info.Description = value
		case "Repository":
			info.Repository = value
		case "URL":
			info.URL = value
		case "Installed Size", "Download Size":
			if info.Size == "" {
				info.Size = value
			}
		case "Install Date":
			info.InstallDate = value
		case "Depends On":
			if value != "None" {
				info.Depends = strings.Fields(value)
			}
		}
	}
	return info
}

// parseSearchOutput parses pacman -Ss output: a repo/name version
// header line followed by an indented description line.
func parseSearchOutput(output string) []SearchResult {
	lines := strings.Split(strings.TrimSpace(output), "\n")

	var results []SearchResult
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if line == "" || strings.HasPrefix(line, " ") {
			continue
		}
		m := searchHeaderRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		res := SearchResult{
			Repository: m[1],
			Name:       m[2],
			Version:    m[3],
			Installed:  strings.Contains(m[4], "[installed"),
		}
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "    ") {
			res.Description = strings.TrimSpace(lines[i+1])
			i++
		}
		results = append(results, res)
	}
	return results
}
