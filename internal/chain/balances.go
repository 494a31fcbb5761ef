// File: internal/chain/balances.go
package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/a0x-labs/agentdeck/internal/config"
	"github.com/a0x-labs/agentdeck/internal/network"
)

// balanceOfSelector is the first four bytes of keccak256("balanceOf(address)").
const balanceOfSelector = "70a08231"

var ErrInvalidAddress = errors.New("invalid address")

// Balance is one token balance, raw and formatted for display.
type Balance struct {
	Symbol    string   `json:"symbol"`
	Raw       *big.Int `json:"raw"`
	Formatted string   `json:"formatted"`
}

// Balances is what the grants panel shows for the agent wallet.
type Balances struct {
	Wallet string  `json:"wallet"`
	USDC   Balance `json:"usdc"`
	A0X    Balance `json:"a0x"`
}

// Reader reads ERC-20 balances over JSON-RPC.
type Reader struct {
	rpc    *rpcClient
	usdc   config.TokenConfig
	a0x    config.TokenConfig
	logger *zap.Logger
}

// NewReader builds a Reader on the shared network transport.
func NewReader(cfg config.ChainConfig, logger *zap.Logger) *Reader {
	cc := network.NewDefaultClientConfig()
	if cfg.Timeout > 0 {
		cc.RequestTimeout = cfg.Timeout
		cc.ResponseHeaderTimeout = cfg.Timeout
	}
	if logger != nil {
		cc.Logger = logger.Named("httpclient")
	}
	return NewReaderWithHTTPClient(cfg, network.NewClient(cc), logger)
}

// NewReaderWithHTTPClient builds a Reader around an existing http.Client.
func NewReaderWithHTTPClient(cfg config.ChainConfig, hc *http.Client, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	logger = logger.Named("chain")
	return &Reader{
		rpc:    &rpcClient{url: cfg.RPCURL, http: hc, logger: logger},
		usdc:   cfg.USDC,
		a0x:    cfg.A0X,
		logger: logger,
	}
}

// BalanceOf calls balanceOf(holder) on token at the latest block.
func (r *Reader) BalanceOf(ctx context.Context, token, holder string) (*big.Int, error) {
	tokenAddr, err := normalizeAddress(token)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}
	holderAddr, err := normalizeAddress(holder)
	if err != nil {
		return nil, fmt.Errorf("holder: %w", err)
	}

	call := map[string]string{
		"to":   "0x" + tokenAddr,
		"data": "0x" + balanceOfSelector + strings.Repeat("0", 24) + holderAddr,
	}
	var result string
	if err := r.rpc.call(ctx, "eth_call", &result, call, "latest"); err != nil {
		return nil, err
	}
	return decodeQuantity(result)
}

// Balances reads both configured tokens for wallet concurrently. An empty
// wallet, or a token without an address, reads as zero without a call.
func (r *Reader) Balances(ctx context.Context, wallet string) (Balances, error) {
	out := Balances{
		Wallet: wallet,
		USDC:   zeroBalance(r.usdc),
		A0X:    zeroBalance(r.a0x),
	}
	if wallet == "" {
		return out, nil
	}

	g, gCtx := errgroup.WithContext(ctx)
	read := func(tok config.TokenConfig, dst *Balance) {
		if tok.Address == "" {
			return
		}
		g.Go(func() error {
			raw, err := r.BalanceOf(gCtx, tok.Address, wallet)
			if err != nil {
				return fmt.Errorf("%s balance: %w", tok.Symbol, err)
			}
			*dst = Balance{Symbol: tok.Symbol, Raw: raw, Formatted: FormatUnits(raw, tok.Decimals)}
			return nil
		})
	}
	read(r.usdc, &out.USDC)
	read(r.a0x, &out.A0X)

	if err := g.Wait(); err != nil {
		r.logger.Warn("Failed to read wallet balances.", zap.String("wallet", wallet), zap.Error(err))
		return out, err
	}
	return out, nil
}

func zeroBalance(tok config.TokenConfig) Balance {
	return Balance{Symbol: tok.Symbol, Raw: new(big.Int), Formatted: "0"}
}

// FormatUnits renders value scaled down by 10^decimals, trimming trailing
// zeros from the fraction. A nil value formats as "0".
func FormatUnits(value *big.Int, decimals int) string {
	if value == nil {
		return "0"
	}
	neg := value.Sign() < 0
	digits := new(big.Int).Abs(value).String()
	if decimals > 0 {
		if len(digits) <= decimals {
			digits = strings.Repeat("0", decimals-len(digits)+1) + digits
		}
		whole, frac := digits[:len(digits)-decimals], strings.TrimRight(digits[len(digits)-decimals:], "0")
		digits = whole
		if frac != "" {
			digits += "." + frac
		}
	}
	if neg {
		return "-" + digits
	}
	return digits
}

func normalizeAddress(addr string) (string, error) {
	a := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(addr), "0x"), "0X")
	if len(a) != 40 {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	if _, err := hex.DecodeString(a); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	return strings.ToLower(a), nil
}

// decodeQuantity parses a 0x-prefixed hex word. "0x" alone is zero.
func decodeQuantity(s string) (*big.Int, error) {
	h := strings.TrimPrefix(s, "0x")
	if h == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(h, 16)
	if !ok {
		return nil, fmt.Errorf("malformed quantity %q", s)
	}
	return v, nil
}
