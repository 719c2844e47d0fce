package main

import (
	"github.com/spf13/cobra"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Obtain and store a credential for the table service",
		Long: `Obtain and store a credential for the table service.

A stored credential that is still usable is reused. Otherwise the client
secret is located (or asked for) and the consent flow selected by
[auth] consent is run.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored credential",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := newCLIContext(cmd)
	ctx, cancel := interruptContext(cmd.Context(), cc.logger)
	defer cancel()

	mgr := cc.newAuthManager()

	cred, err := mgr.EnsureCredential(ctx)
	if err != nil {
		return err
	}

	cc.logger.Info("login successful", "credential_path", mgr.CredentialPath())
	cc.Statusf("Credential stored in %s (access token valid until %s).\n",
		mgr.CredentialPath(), formatTime(cred.Expiry()))

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := newCLIContext(cmd)
	mgr := cc.newAuthManager()

	if err := mgr.Logout(); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}
