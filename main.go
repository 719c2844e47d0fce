package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/eternadata/ftables-go/internal/auth"
)

// Exit codes.
const (
	exitFailure     = 1
	exitAuth        = 2
	exitMismatch    = 3
	exitInterrupted = 130
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errColumnsMissing):
		return exitMismatch
	case errors.Is(err, auth.ErrCredentialUnavailable), errors.Is(err, auth.ErrConsentFailed),
		errors.Is(err, auth.ErrSecretInvalid):
		return exitAuth
	default:
		return exitFailure
	}
}
