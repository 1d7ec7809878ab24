package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/rulesync/internal/apperr"
)

const testMarker = ".rulesync-cli-test/rules"

type cliEnv struct {
	shared string
	root   string
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	return &cliEnv{
		shared: filepath.Join(t.TempDir(), "shared"),
		root:   t.TempDir(),
		stdout: &bytes.Buffer{},
		stderr: &bytes.Buffer{},
	}
}

func (e *cliEnv) run(t *testing.T, args ...string) error {
	t.Helper()
	e.stdout.Reset()
	e.stderr.Reset()
	full := append([]string{
		"rulesync",
		"--config", filepath.Join(e.root, "missing.yaml"),
		"--shared-dir", e.shared,
		"--marker", testMarker,
	}, args...)
	return newApp(e.stdout, e.stderr).Run(context.Background(), full)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestSaveListShowDelete(t *testing.T) {
	e := newCLIEnv(t)
	src := filepath.Join(e.root, "go.mdc")
	writeFile(t, src, "Always run gofmt.")

	if err := e.run(t, "save", "--from", src, "--description", "Go formatting", "--tag", "go", "--tag", "style", "go.mdc"); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta, err := os.ReadFile(filepath.Join(e.shared, "go.mdc.meta"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(meta), `"description": "Go formatting"`) {
		t.Errorf("sidecar = %s", meta)
	}

	if err := e.run(t, "list", "--tag", "style"); err != nil {
		t.Fatal(err)
	}
	if out := e.stdout.String(); !strings.Contains(out, "go.mdc") || !strings.Contains(out, "go,style") {
		t.Errorf("list output = %q", out)
	}

	if err := e.run(t, "show", "go.mdc"); err != nil {
		t.Fatal(err)
	}
	if e.stdout.String() != "Always run gofmt." {
		t.Errorf("show output = %q", e.stdout.String())
	}

	if err := e.run(t, "delete", "go.mdc"); err != nil {
		t.Fatal(err)
	}
	err = e.run(t, "show", "go.mdc")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("show after delete: %v", err)
	}
}

func TestSyncCommand(t *testing.T) {
	e := newCLIEnv(t)
	a := filepath.Join(e.root, "a.mdc")
	b := filepath.Join(e.root, "b.mdc")
	writeFile(t, a, "alpha")
	writeFile(t, b, "beta")

	if err := e.run(t, "sync", a, b); err != nil {
		t.Fatal(err)
	}
	for name, want := range map[string]string{"a.mdc": "alpha", "b.mdc": "beta"} {
		got, err := os.ReadFile(filepath.Join(e.shared, name))
		if err != nil || string(got) != want {
			t.Errorf("%s = %q, %v", name, got, err)
		}
	}

	err := e.run(t, "sync", filepath.Join(e.root, "missing.mdc"))
	if !errors.Is(err, apperr.ErrCopyFailed) {
		t.Errorf("sync missing file: %v", err)
	}

	if err := e.run(t, "sync"); err == nil {
		t.Error("sync without files should fail")
	}
}

func TestImportCommand(t *testing.T) {
	e := newCLIEnv(t)
	proj := filepath.Join(e.root, "app")
	marker := filepath.Join(proj, filepath.FromSlash(testMarker))
	if err := os.MkdirAll(marker, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := e.run(t, "import", "--context", proj, "--rule", "a.mdc"); err != nil {
		t.Fatalf("empty store: %v", err)
	}
	if !strings.Contains(e.stdout.String(), "No rules found") {
		t.Errorf("stdout = %q", e.stdout.String())
	}

	src := filepath.Join(e.root, "a.mdc")
	writeFile(t, src, "alpha")
	if err := e.run(t, "sync", src); err != nil {
		t.Fatal(err)
	}

	if err := e.run(t, "import", "--context", proj, "--rule", "a.mdc"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(marker, "a.mdc"))
	if err != nil || string(got) != "alpha" {
		t.Errorf("imported = %q, %v", got, err)
	}
	if !strings.Contains(e.stdout.String(), "Imported a.mdc") {
		t.Errorf("stdout = %q", e.stdout.String())
	}

	err = e.run(t, "import", "--context", e.root, "--rule", "a.mdc")
	if !errors.Is(err, apperr.ErrDestinationMissing) {
		t.Errorf("no destination: %v", err)
	}
	if !strings.Contains(e.stderr.String(), "No rules directory found") {
		t.Errorf("stderr = %q", e.stderr.String())
	}

	err = e.run(t, "import", "--context", proj, "--rule", "zzz.mdc")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown rule: %v", err)
	}
}

func TestSearchCommand(t *testing.T) {
	e := newCLIEnv(t)
	src := filepath.Join(e.root, "golang.mdc")
	writeFile(t, src, "x")
	if err := e.run(t, "sync", src); err != nil {
		t.Fatal(err)
	}
	if err := e.run(t, "search", "gol"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(e.stdout.String(), "golang.mdc") {
		t.Errorf("search output = %q", e.stdout.String())
	}
}

func TestInvalidMarkerRejected(t *testing.T) {
	e := newCLIEnv(t)
	err := newApp(e.stdout, e.stderr).Run(context.Background(), []string{
		"rulesync", "--config", filepath.Join(e.root, "missing.yaml"), "--marker", "/abs", "list",
	})
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("err = %v", err)
	}
}
