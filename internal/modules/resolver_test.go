package modules_test

import (
	"testing"

	"github.com/glimmerweave/gw/internal/modules"
)

func TestResolutionOrder(t *testing.T) {
	reader := modules.MapReader{
		"/proj/util.gw":     "offer a\nbind a to 1",
		"/std/util.gw":      "offer a\nbind a to 2",
		"/std/std/math.gw":  "offer sqrt2\nbind sqrt2 to 1.41",
		"/proj/lib/rel.gw":  "offer r\nbind r to 3",
		"/proj/lib/main.gw": "summon rel from \"./rel.gw\"",
	}
	r := modules.NewResolver("/proj", "/std", reader)

	// Plain paths prefer the project root.
	info, err := r.Load("util.gw", "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if info.Path != "/proj/util.gw" {
		t.Fatalf("project root should win: %s", info.Path)
	}

	// std/ paths try the stdlib root first.
	info, err = r.Load("std/math.gw", "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if info.Path != "/std/std/math.gw" {
		t.Fatalf("stdlib root should win for std/: %s", info.Path)
	}

	// Relative paths resolve against the importer.
	info, err = r.Load("./rel.gw", "/proj/lib/main.gw")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if info.Path != "/proj/lib/rel.gw" {
		t.Fatalf("relative resolution wrong: %s", info.Path)
	}
}

func TestStdlibFallback(t *testing.T) {
	reader := modules.MapReader{
		"/std/only.gw": "offer b\nbind b to 2",
	}
	r := modules.NewResolver("/proj", "/std", reader)
	info, err := r.Load("only.gw", "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if info.Path != "/std/only.gw" {
		t.Fatalf("stdlib fallback wrong: %s", info.Path)
	}
}

func TestModuleNotFound(t *testing.T) {
	r := modules.NewResolver("/proj", "/std", modules.MapReader{})
	_, err := r.Load("missing.gw", "")
	if err == nil || err.Kind != modules.ErrModuleNotFound {
		t.Fatalf("expected ModuleNotFound, got %v", err)
	}
}

func TestModuleInfoExtraction(t *testing.T) {
	reader := modules.MapReader{
		"/proj/dep.gw":  "offer helper\nchant helper() then\nyield 1\nend",
		"/proj/main.gw": "grove Main with\noffer go\nchant go() then\nyield 2\nend\nend\nsummon dep from \"dep.gw\"",
	}
	r := modules.NewResolver("/proj", "/std", reader)
	info, err := r.Load("main.gw", "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if info.Name != "Main" {
		t.Fatalf("grove name should override filename: %s", info.Name)
	}
	if len(info.Dependencies) != 1 || info.Dependencies[0] != "/proj/dep.gw" {
		t.Fatalf("dependencies wrong: %v", info.Dependencies)
	}
	if len(info.Exports) != 1 || info.Exports[0] != "go" {
		t.Fatalf("exports wrong: %v", info.Exports)
	}
}

func TestCircularDependency(t *testing.T) {
	reader := modules.MapReader{
		"/proj/a.gw": "summon b from \"b.gw\"",
		"/proj/b.gw": "summon a from \"a.gw\"",
	}
	r := modules.NewResolver("/proj", "/std", reader)
	_, err := r.Load("a.gw", "")
	if err == nil || err.Kind != modules.ErrCircularDependency {
		t.Fatalf("expected CircularDependency, got %v", err)
	}
	if len(err.Cycle) < 2 {
		t.Fatalf("cycle path too short: %v", err.Cycle)
	}
}

func TestPostHocCycleCheckPasses(t *testing.T) {
	reader := modules.MapReader{
		"/proj/a.gw": "summon b from \"b.gw\"",
		"/proj/b.gw": "offer x\nbind x to 1",
	}
	r := modules.NewResolver("/proj", "/std", reader)
	if _, err := r.Load("a.gw", ""); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := r.CheckCircularDependencies(); err != nil {
		t.Fatalf("acyclic graph flagged: %v", err)
	}
}

func TestCacheReturnsSameModule(t *testing.T) {
	reader := modules.MapReader{
		"/proj/m.gw": "offer x\nbind x to 1",
	}
	r := modules.NewResolver("/proj", "/std", reader)
	first, err := r.Load("m.gw", "")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	second, err := r.Load("m.gw", "")
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if first != second {
		t.Fatal("cache miss on second load")
	}
}
