// Obtains the credential used by the live E2E suite and stores it under
// .testdata/ together with the client secret.
//
// Usage: go run ./cmd/integration-bootstrap --secret ~/Downloads/client_secret.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/eternadata/ftables-go/internal/auth"
	"github.com/eternadata/ftables-go/testutil"
)

func main() {
	secret := flag.String("secret", "", "client secret document to copy into .testdata/")
	flag.Parse()

	dir := filepath.Join(testutil.FindModuleRoot("."), ".testdata")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "creating %s: %v\n", dir, err)
		os.Exit(1)
	}

	secretPath := filepath.Join(dir, "client_secrets.json")
	if *secret != "" {
		testutil.CopyFile(*secret, secretPath, 0o600)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	mgr := auth.NewManager(auth.Config{
		CredentialPath:   filepath.Join(dir, "ftables.creds"),
		ClientSecretPath: secretPath,
		Logger:           logger,
	})

	if _, err := mgr.EnsureCredential(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Credential saved to %s\n", mgr.CredentialPath())
}
