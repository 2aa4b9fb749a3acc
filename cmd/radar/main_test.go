package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestCommandTree(t *testing.T) {
	root := rootCmd()
	want := []string{"collect", "process", "reprocess", "detect", "anomalies", "generate",
		"digest", "quarterly", "alerts", "serve", "schedule", "once", "version"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Fatalf("command %s missing: %v", name, err)
		}
	}
	for _, flag := range []string{"config", "log-level"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Fatalf("global flag --%s missing", flag)
		}
	}
}

func TestVersion(t *testing.T) {
	root := rootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "radar version dev") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestDigestRejectsUnknownPeriod(t *testing.T) {
	root := rootCmd()
	root.SetArgs([]string{"digest", "--period", "daily"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "want weekly or monthly") {
		t.Fatalf("err = %v", err)
	}
}
