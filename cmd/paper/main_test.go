package main

import (
	"strings"
	"testing"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	if !names["serve"] {
		t.Fatalf("expected subcommand %q to be registered", "serve")
	}
	if cmd.Version == "" {
		t.Fatal("expected a version string on the root command")
	}
	if !strings.Contains(cmd.Version, "commit:") {
		t.Fatalf("version string missing build metadata: %q", cmd.Version)
	}
}

func TestServeCmdFlags(t *testing.T) {
	cmd := buildServeCmd()

	flag := cmd.Flags().Lookup("config")
	if flag == nil {
		t.Fatal("expected a --config flag on serve")
	}
	if flag.DefValue != "paper.yaml" {
		t.Fatalf("unexpected default config path: %q", flag.DefValue)
	}
	if flag.Shorthand != "c" {
		t.Fatalf("unexpected shorthand for --config: %q", flag.Shorthand)
	}
	if cmd.Flags().Lookup("debug") == nil {
		t.Fatal("expected a --debug flag on serve")
	}
}
