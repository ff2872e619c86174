// Package modules resolves, loads, parses, and caches module files. File
// access goes through an injected Reader so the core stays independent of
// the filesystem.
package modules

import (
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/glimmerweave/gw/internal/ast"
	"github.com/glimmerweave/gw/internal/config"
	"github.com/glimmerweave/gw/internal/lexer"
	"github.com/glimmerweave/gw/internal/parser"
)

// Reader provides module source by path.
type Reader interface {
	ReadSource(path string) (string, error)
}

// OSReader reads modules from the local filesystem.
type OSReader struct{}

func (OSReader) ReadSource(p string) (string, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// MapReader serves modules from memory; used by tests.
type MapReader map[string]string

func (m MapReader) ReadSource(p string) (string, error) {
	if src, ok := m[p]; ok {
		return src, nil
	}
	return "", fmt.Errorf("module not found: %s", p)
}

// ModuleInfo is one loaded module.
type ModuleInfo struct {
	Path         string
	Name         string
	Ast          *ast.Program
	Dependencies []string // resolved paths of imported modules
	Exports      []string
}

// Error kinds surfaced by the resolver.
const (
	ErrModuleNotFound     = "ModuleNotFound"
	ErrParseFailed        = "ParseFailed"
	ErrCircularDependency = "CircularDependency"
)

// ResolverError is a module-resolution failure. Cycle is populated for
// CircularDependency: the stack from the first occurrence to the repeat.
type ResolverError struct {
	Kind    string
	Message string
	Cycle   []string
}

func (e *ResolverError) Error() string { return e.Kind + ": " + e.Message }

// Resolver loads modules against a project root and a stdlib root, caching
// by canonical path. A loading stack catches import cycles as they form;
// CheckCircularDependencies re-verifies the cached graph post hoc.
type Resolver struct {
	projectRoot string
	stdlibRoot  string
	reader      Reader

	cache        map[string]*ModuleInfo
	loadingStack []string
}

func NewResolver(projectRoot, stdlibRoot string, reader Reader) *Resolver {
	return &Resolver{
		projectRoot: projectRoot,
		stdlibRoot:  stdlibRoot,
		reader:      reader,
		cache:       make(map[string]*ModuleInfo),
	}
}

// candidates returns the paths to try for an import, in resolution order:
// relative imports resolve against the importer, std/ paths try the stdlib
// root first, everything else tries the project root then the stdlib.
func (r *Resolver) candidates(importPath, importerPath string) []string {
	if strings.HasPrefix(importPath, "./") || strings.HasPrefix(importPath, "../") {
		base := "."
		if importerPath != "" {
			base = path.Dir(importerPath)
		}
		return []string{path.Clean(path.Join(base, importPath))}
	}
	if strings.HasPrefix(importPath, config.StdlibPrefix) {
		return []string{
			path.Clean(path.Join(r.stdlibRoot, importPath)),
			path.Clean(path.Join(r.projectRoot, importPath)),
		}
	}
	return []string{
		path.Clean(path.Join(r.projectRoot, importPath)),
		path.Clean(path.Join(r.stdlibRoot, importPath)),
	}
}

// Load resolves importPath relative to importerPath and loads the module
// and, recursively, its dependencies.
func (r *Resolver) Load(importPath, importerPath string) (*ModuleInfo, *ResolverError) {
	var firstErr error
	for _, candidate := range r.candidates(importPath, importerPath) {
		if info, ok := r.cache[candidate]; ok {
			return info, nil
		}
		source, err := r.reader.ReadSource(candidate)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		return r.loadSource(candidate, source)
	}
	return nil, &ResolverError{
		Kind:    ErrModuleNotFound,
		Message: fmt.Sprintf("Cannot resolve module %q: %v", importPath, firstErr),
	}
}

func (r *Resolver) loadSource(canonical, source string) (*ModuleInfo, *ResolverError) {
	for i, loading := range r.loadingStack {
		if loading == canonical {
			cycle := append(append([]string{}, r.loadingStack[i:]...), canonical)
			return nil, &ResolverError{
				Kind:    ErrCircularDependency,
				Message: "Import cycle: " + strings.Join(cycle, " -> "),
				Cycle:   cycle,
			}
		}
	}
	r.loadingStack = append(r.loadingStack, canonical)
	defer func() { r.loadingStack = r.loadingStack[:len(r.loadingStack)-1] }()

	prog, parseErr := parser.Parse(lexer.Tokenize(source))
	if parseErr != nil {
		return nil, &ResolverError{
			Kind:    ErrParseFailed,
			Message: fmt.Sprintf("Cannot parse module %s: %v", canonical, parseErr),
		}
	}
	prog.File = canonical

	info := &ModuleInfo{
		Path: canonical,
		Name: ModuleNameFromPath(canonical),
		Ast:  prog,
	}
	for _, stmt := range prog.Statements {
		switch s := stmt.(type) {
		case *ast.ModuleDecl:
			info.Name = s.Name
			info.Exports = append(info.Exports, s.Exports...)
		case *ast.ImportStmt:
			if s.Path == "" {
				continue // gather from an already-summoned module
			}
			dep, err := r.Load(s.Path, canonical)
			if err != nil {
				return nil, err
			}
			info.Dependencies = append(info.Dependencies, dep.Path)
		case *ast.ExportStmt:
			info.Exports = append(info.Exports, s.Items...)
		}
	}

	r.cache[canonical] = info
	return info, nil
}

// Get returns a cached module.
func (r *Resolver) Get(path string) (*ModuleInfo, bool) {
	info, ok := r.cache[path]
	return info, ok
}

// CheckCircularDependencies runs an independent DFS over the cached
// dependency graph.
func (r *Resolver) CheckCircularDependencies() *ResolverError {
	for path := range r.cache {
		if err := r.checkCycleFrom(path, nil); err != nil {
			return err
		}
	}
	return nil
}

func (r *Resolver) checkCycleFrom(current string, visited []string) *ResolverError {
	for i, seen := range visited {
		if seen == current {
			cycle := append(append([]string{}, visited[i:]...), current)
			return &ResolverError{
				Kind:    ErrCircularDependency,
				Message: "Import cycle: " + strings.Join(cycle, " -> "),
				Cycle:   cycle,
			}
		}
	}
	visited = append(visited, current)
	if info, ok := r.cache[current]; ok {
		for _, dep := range info.Dependencies {
			if err := r.checkCycleFrom(dep, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

// ModuleNameFromPath derives the default module name from the file name:
// "std/math.gw" -> "math". A grove declaration inside the file overrides it.
func ModuleNameFromPath(p string) string {
	return config.TrimSourceExt(path.Base(p))
}
