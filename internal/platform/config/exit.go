package config

import (
	"fmt"
	"os"
)

// ExitCodeMisconfigured is the process exit code for configuration errors
// (missing DATABASE_URL, invalid numeric env, and similar).
const ExitCodeMisconfigured = 2

// ExitMisconfigured writes a formatted error message to stderr and exits with
// the misconfiguration code so supervisors can tell bad config from crashes.
func ExitMisconfigured(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(ExitCodeMisconfigured)
}
