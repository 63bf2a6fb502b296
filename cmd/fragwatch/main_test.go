package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestCLI_PlayersAndProgram(t *testing.T) {
	// WHAT: Commands share the database named by FRAGWATCH_DATABASE.
	// WHY: One-shot commands and serve must see the same players and schedules.
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FRAGWATCH_DATABASE", filepath.Join(dir, "db", "fw.db"))

	if err := runCLI(t, "players", "add", "g1", "neo", "--platform", "xbox"); err != nil {
		t.Fatal(err)
	}
	if err := runCLI(t, "players", "add", "g1", "neo"); err == nil {
		t.Error("duplicate add succeeded")
	}
	if err := runCLI(t, "players", "ls", "g1"); err != nil {
		t.Fatal(err)
	}
	if err := runCLI(t, "program", "g1", "chan", "7pm"); err == nil || !strings.Contains(err.Error(), "time_of_day") {
		t.Errorf("bad time: %v", err)
	}
	if err := runCLI(t, "program", "g1", "chan", "19:00"); err != nil {
		t.Fatal(err)
	}
	if err := runCLI(t, "cancel", "g1"); err != nil {
		t.Fatal(err)
	}
	if err := runCLI(t, "players", "rm", "g1", "neo"); err != nil {
		t.Fatal(err)
	}
}

func TestCLI_ArgumentErrors(t *testing.T) {
	t.Chdir(t.TempDir())
	if err := runCLI(t, "collect"); err == nil {
		t.Error("collect without group or player succeeded")
	}
	if err := runCLI(t, "collect", "g1", "--window", "fortnight"); err == nil {
		t.Error("unknown window accepted")
	}
	if err := runCLI(t, "run", "g1", "--trigger", "hourly"); err == nil {
		t.Error("unknown trigger accepted")
	}
}
