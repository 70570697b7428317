package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/vaultpair/vaultpair/internal/logsafe"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" -o vaultpair ./cmd/vaultpair
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// The redaction wrapper is a backstop; nothing below is allowed to
	// log credential material in the first place.
	slog.SetDefault(slog.New(logsafe.NewHandler(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}),
	)))

	if len(os.Args) < 2 {
		printUsage()
		osExit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "pair":
		runPair(os.Args[2:])
	case "request":
		runRequest(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "revoke":
		runRevoke(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		osExit(1)
	}
}

func printVersion() {
	fmt.Printf("vaultpair %s (%s) built %s\n", version, commit, buildDate)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: vaultpair <command> [options]")
	fmt.Println()
	fmt.Println("Approval service (run on the machine holding the vault):")
	fmt.Println("  serve [--config path] [--listen addr]    Start the approval service and terminal approver")
	fmt.Println()
	fmt.Println("Agent commands:")
	fmt.Println("  pair    [--server url] [--agent-id id] [--agent-name name]")
	fmt.Println("          Pair with the approval service; prints the pairing code and session id")
	fmt.Println("  request --domain <domain> [--reason \"...\"] [--server url]")
	fmt.Println("          Pair, then request a credential (blocks on human approval)")
	fmt.Println("  status  --session-id <id> [--server url]  Show a session's status")
	fmt.Println("  revoke  --session-id <id> [--server url]  Revoke a session (locks the vault)")
	fmt.Println()
	fmt.Println("  version                                  Show version information")
	fmt.Println()
	fmt.Println("The service binds loopback only. Pair from the same machine, or tunnel")
	fmt.Println("the port over SSH for a trusted remote host.")
}
