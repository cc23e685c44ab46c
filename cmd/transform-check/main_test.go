package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "log.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestCLIValidLog(t *testing.T) {
	path := writeLog(t, `[
		{"type":"sort_column","column_id":"x","ascending":true},
		{"type":"select_columns","column_ids":["x"]}
	]`)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-file", path}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "step 0: sort_column") || !strings.Contains(out, "2 steps ok") {
		t.Fatalf("stdout = %q", out)
	}
}

func TestCLIInvalidStep(t *testing.T) {
	path := writeLog(t, `[{"type":"select_columns","column_ids":[]}]`)
	var stdout, stderr bytes.Buffer
	code := cli([]string{"-file", path}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(stderr.String(), "step 0 (select_columns)") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestCLIUnknownKind(t *testing.T) {
	path := writeLog(t, `[{"type":"melt"}]`)
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-file", path}, &stdout, &stderr); code != 1 {
		t.Fatalf("exit = %d, want decode failure", code)
	}
	if !strings.Contains(stderr.String(), "decode") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestCLIMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-file", filepath.Join(t.TempDir(), "absent.json")}, &stdout, &stderr); code != 1 {
		t.Fatal("missing file should fail")
	}
}

func TestCLIBadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-nope"}, &stdout, &stderr); code != 2 {
		t.Fatal("unknown flag should exit 2")
	}
}
