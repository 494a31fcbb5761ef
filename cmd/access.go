// File: cmd/access.go
package cmd

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/a0x-labs/agentdeck/api/schemas"
	"github.com/a0x-labs/agentdeck/internal/access"
	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/observability"
)

type accessOptions struct {
	mode      string
	wallet    string
	twitter   string
	fid       int64
	token     string
	signedOut bool
}

func newAccessCmd(provider upstreamProvider) *cobra.Command {
	var opts accessOptions

	cmd := &cobra.Command{
		Use:   "access <handle>",
		Short: "Evaluate the dashboard access gate for an identity",
		Long: `Fetches the agent and evaluates who may open its dashboard. The identity comes
from a signed session token (--token) or from the explicit identity flags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runAccess(ctx, cmd.OutOrStdout(), observability.GetLogger(), cfg, args[0], opts, provider)
		},
	}

	cmd.Flags().StringVar(&opts.mode, "auth", "wallet", "Ownership proof: wallet, twitter or farcaster.")
	cmd.Flags().StringVar(&opts.wallet, "wallet", "", "Connected wallet address.")
	cmd.Flags().StringVar(&opts.twitter, "twitter", "", "Signed-in Twitter username.")
	cmd.Flags().Int64Var(&opts.fid, "fid", 0, "Signed-in Farcaster FID.")
	cmd.Flags().StringVar(&opts.token, "token", "", "Session token to verify instead of the identity flags.")
	cmd.Flags().BoolVar(&opts.signedOut, "signed-out", false, "Treat the caller as not signed in to a social provider.")
	return cmd
}

// runAccess settles a gate for handle and prints the outcome.
func runAccess(ctx context.Context, out io.Writer, logger *zap.Logger, cfg config.Interface, handle string, opts accessOptions, provider upstreamProvider) error {
	up, err := provider(cfg, logger)
	if err != nil {
		return err
	}

	claim, err := claimFromOptions(cfg, opts)
	if err != nil {
		return err
	}

	mode := schemas.ParseAuthMode(opts.mode)
	gate := access.NewGate(handle, mode, up, access.StaticClaim(claim), nil, cfg.Access(), logger)
	snap := gate.Settle(ctx)

	view := struct {
		Handle  string         `json:"handle"`
		Outcome access.Outcome `json:"outcome"`
		Agent   string         `json:"agent,omitempty"`
	}{Handle: handle, Outcome: snap.Outcome}
	if snap.Agent != nil {
		view.Agent = snap.Agent.Name
	}
	return writeJSON(out, view)
}

func claimFromOptions(cfg config.Interface, opts accessOptions) (schemas.IdentityClaim, error) {
	if opts.token != "" {
		verifier, err := access.NewSessionVerifier(cfg.Session())
		if err != nil {
			return schemas.IdentityClaim{}, err
		}
		claims, err := verifier.Verify(opts.token)
		if err != nil {
			return schemas.IdentityClaim{}, err
		}
		return claims.Identity(), nil
	}

	claim := schemas.IdentityClaim{
		SignedIn:      !opts.signedOut,
		WalletAddress: opts.wallet,
	}
	if opts.twitter != "" {
		claim.Twitter = &schemas.TwitterIdentity{Username: opts.twitter}
	}
	if opts.fid != 0 {
		claim.Farcaster = &schemas.FarcasterIdentity{FID: opts.fid}
	}
	return claim, nil
}
