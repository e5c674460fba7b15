package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("package q\n\n"+body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLintAcceptsMarkedQueries(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "ok.go", "const QOne = `--sql 11111111-2222-4333-8444-555555555555\nSELECT 1`\n"+
		"const Label = \"not a query\"\n")

	vs, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("unexpected violations: %+v", vs)
	}
}

func TestLintReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "a.go", "const QA = `--sql 11111111-2222-4333-8444-555555555555\nSELECT 1`\n"+
		"const QMissing = `UPDATE wallets SET coins = 0`\n")
	writeGo(t, dir, "b.go", "const QB = `--sql 11111111-2222-4333-8444-555555555555\nDELETE FROM wallets`\n")

	vs, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 2 {
		t.Fatalf("violations = %+v, want 2", vs)
	}
	var out bytes.Buffer
	if !report(&out, vs) {
		t.Fatal("report returned false")
	}
	text := out.String()
	if !strings.Contains(text, "QMissing") || !strings.Contains(text, "already used by QA") {
		t.Fatalf("unexpected report:\n%s", text)
	}
}

func TestLintSkipsTestFiles(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "x_test.go", "const QT = `SELECT 1`\n")
	vs, err := lint([]string{dir})
	if err != nil {
		t.Fatalf("lint: %v", err)
	}
	if len(vs) != 0 {
		t.Fatalf("test file linted: %+v", vs)
	}
}
