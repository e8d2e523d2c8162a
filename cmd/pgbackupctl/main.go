// Command pgbackupctl is the one-shot front end for the PostgreSQL
// archive manager: it parses already-typed flags/arguments into
// internal/dispatch.Requests, runs them against the catalog, and exits
// with the code apperrors assigns to the resulting error kind.
package main

import (
	"os"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(apperrors.KindOf(err).ExitCode())
	}
}
