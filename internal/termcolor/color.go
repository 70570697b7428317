// Package termcolor provides minimal ANSI terminal color output for the
// approver prompts. Color is disabled when stdout is not a terminal or
// NO_COLOR is set.
package termcolor

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	faint  = "\033[2m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

var (
	ttyOnce   sync.Once
	ttyResult bool
)

func isColorEnabled() bool {
	ttyOnce.Do(func() {
		if os.Getenv("NO_COLOR") != "" {
			return
		}
		fi, err := os.Stdout.Stat()
		if err != nil {
			return
		}
		ttyResult = fi.Mode()&os.ModeCharDevice != 0
	})
	return ttyResult
}

func printColored(code, format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if isColorEnabled() {
		fmt.Printf("%s%s%s\n", code, msg, reset)
	} else {
		fmt.Println(msg)
	}
}

// Green prints a green line to stdout.
func Green(format string, a ...any) { printColored(green, format, a...) }

// Red prints a red line to stdout.
func Red(format string, a ...any) { printColored(red, format, a...) }

// Yellow prints a yellow line to stdout.
func Yellow(format string, a ...any) { printColored(yellow, format, a...) }

// Cyan prints a cyan line to stdout.
func Cyan(format string, a ...any) { printColored(cyan, format, a...) }

// Bold prints a bold line to stdout.
func Bold(format string, a ...any) { printColored(bold, format, a...) }

// Faint prints dim text to stdout without a trailing newline.
func Faint(format string, a ...any) {
	msg := fmt.Sprintf(format, a...)
	if isColorEnabled() {
		fmt.Print(faint + msg + reset)
	} else {
		fmt.Print(msg)
	}
}

// Banner prints a bold separator line with a centered title.
func Banner(title string) {
	line := strings.Repeat("=", 60)
	Bold("%s", line)
	Bold("    %s", title)
	Bold("%s", line)
}
