// File: api/schemas/identity.go
package schemas

import "strings"

// AuthMode selects which identity proves ownership of an agent.
type AuthMode string

const (
	AuthWallet    AuthMode = "wallet"    // Connected wallet address vs. creator addresses. The default.
	AuthTwitter   AuthMode = "twitter"   // Signed-in Twitter username vs. the agent's Twitter client.
	AuthFarcaster AuthMode = "farcaster" // Signed-in Farcaster FID vs. the agent's creator FID.
)

// ParseAuthMode reads the `auth` query parameter. Anything other than the two
// social modes falls back to wallet mode.
func ParseAuthMode(raw string) AuthMode {
	switch AuthMode(strings.ToLower(strings.TrimSpace(raw))) {
	case AuthTwitter:
		return AuthTwitter
	case AuthFarcaster:
		return AuthFarcaster
	default:
		return AuthWallet
	}
}

// IsSocial reports whether the mode is backed by a social sign-in session.
func (m AuthMode) IsSocial() bool {
	return m == AuthTwitter || m == AuthFarcaster
}

// TwitterIdentity is the Twitter account attached to a session.
type TwitterIdentity struct {
	Username string `json:"username"`
}

// FarcasterIdentity is the Farcaster account attached to a session.
type FarcasterIdentity struct {
	FID int64 `json:"fid"`
}

// IdentityClaim is what the session provider asserts about the current user.
// A zero claim means nobody is signed in and no wallet is connected.
type IdentityClaim struct {
	SignedIn      bool               `json:"signedIn"`
	WalletAddress string             `json:"walletAddress,omitempty"`
	Twitter       *TwitterIdentity   `json:"twitter,omitempty"`
	Farcaster     *FarcasterIdentity `json:"farcaster,omitempty"`
}

// WalletConnected reports whether a wallet address is present.
func (c IdentityClaim) WalletConnected() bool {
	return c.WalletAddress != ""
}
