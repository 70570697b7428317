package main

import (
	"os"
	"testing"
)

// captureExit runs f with osExit replaced by a panicking stub and returns
// the exit code, or -1 when f returned without exiting.
func captureExit(t *testing.T, f func()) (code int) {
	t.Helper()
	orig := osExit
	osExit = func(c int) { panic(exitSentinel(c)) }
	defer func() {
		osExit = orig
		if r := recover(); r != nil {
			s, ok := r.(exitSentinel)
			if !ok {
				panic(r)
			}
			code = int(s)
		}
	}()
	code = -1
	f()
	return code
}

func TestFatalExitsWithOne(t *testing.T) {
	if code := captureExit(t, func() { fatal("boom: %d", 42) }); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestMainUnknownCommand(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"vaultpair", "bogus"}

	if code := captureExit(t, main); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestMainNoCommand(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"vaultpair"}

	if code := captureExit(t, main); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestVersionCommand(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"vaultpair", "version"}

	if code := captureExit(t, main); code != -1 {
		t.Fatalf("version exited with %d", code)
	}
}

func TestRequestRequiresDomainAndReason(t *testing.T) {
	if code := captureExit(t, func() { runRequest([]string{"--domain", "united.com"}) }); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestStatusRequiresSessionID(t *testing.T) {
	if code := captureExit(t, func() { runStatus(nil) }); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestRevokeRequiresSessionID(t *testing.T) {
	if code := captureExit(t, func() { runRevoke(nil) }); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}
