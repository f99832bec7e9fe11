package pinstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// PathRoot is the first component of every record path.
	PathRoot = "nft"
	// LocalService is the path component used when no remote pinning service is named.
	LocalService = "local"

	pathSeparator = "."
	pathParts     = 6
)

// Coin types understood by the pinning pipeline (SLIP-44).
const (
	CoinTypeETH = 60
)

// ErrInvalidPath is returned when a path cannot be encoded or decoded.
var ErrInvalidPath = errors.New("invalid token path")

// TokenKey identifies a pinnable asset.
type TokenKey struct {
	CoinType int    `json:"coin"`
	ChainID  string `json:"chain_id"`
	Contract string `json:"contract"`
	TokenID  string `json:"token_id"`

	// IsNFT marks ERC-721 style assets. It is not part of the path.
	IsNFT bool `json:"is_nft"`
}

// String renders the token for log lines.
func (t TokenKey) String() string {
	return fmt.Sprintf("%d/%s/%s#%s", t.CoinType, t.ChainID, t.Contract, t.TokenID)
}

// ServiceName maps the optional remote service to its path component.
func ServiceName(service string) string {
	if service == "" {
		return LocalService
	}
	return service
}

// ServicePrefix returns the path prefix shared by every record of service.
func ServicePrefix(service string) string {
	return PathRoot + pathSeparator + ServiceName(service) + pathSeparator
}

// EncodePath serializes (service, token) into its dotted path. An empty service
// selects the local namespace.
func EncodePath(service string, token TokenKey) (string, error) {
	if service == LocalService {
		return "", fmt.Errorf("%w: service name %q is reserved", ErrInvalidPath, LocalService)
	}
	components := []struct {
		name  string
		value string
	}{
		{"service", ServiceName(service)},
		{"chain id", token.ChainID},
		{"contract", token.Contract},
		{"token id", token.TokenID},
	}
	for _, c := range components {
		if err := checkComponent(c.name, c.value); err != nil {
			return "", err
		}
	}
	if token.CoinType < 0 {
		return "", fmt.Errorf("%w: negative coin type %d", ErrInvalidPath, token.CoinType)
	}
	return strings.Join([]string{
		PathRoot,
		ServiceName(service),
		strconv.Itoa(token.CoinType),
		token.ChainID,
		token.Contract,
		token.TokenID,
	}, pathSeparator), nil
}

// DecodePath parses a path produced by EncodePath. The returned service is
// empty for the local namespace. IsNFT is always true on decoded tokens since
// only non-fungible tokens are ever recorded.
func DecodePath(path string) (string, TokenKey, error) {
	parts := strings.Split(path, pathSeparator)
	if len(parts) != pathParts {
		return "", TokenKey{}, fmt.Errorf("%w: %q has %d components, want %d", ErrInvalidPath, path, len(parts), pathParts)
	}
	if parts[0] != PathRoot {
		return "", TokenKey{}, fmt.Errorf("%w: %q does not start with %q", ErrInvalidPath, path, PathRoot)
	}
	for i, part := range parts[1:] {
		if part == "" {
			return "", TokenKey{}, fmt.Errorf("%w: %q has empty component %d", ErrInvalidPath, path, i+1)
		}
	}
	coin, err := strconv.Atoi(parts[2])
	if err != nil || coin < 0 {
		return "", TokenKey{}, fmt.Errorf("%w: %q has invalid coin type %q", ErrInvalidPath, path, parts[2])
	}
	service := parts[1]
	if service == LocalService {
		service = ""
	}
	return service, TokenKey{
		CoinType: coin,
		ChainID:  parts[3],
		Contract: parts[4],
		TokenID:  parts[5],
		IsNFT:    true,
	}, nil
}

func checkComponent(name, value string) error {
	if value == "" {
		return fmt.Errorf("%w: empty %s", ErrInvalidPath, name)
	}
	if strings.Contains(value, pathSeparator) {
		return fmt.Errorf("%w: %s %q contains %q", ErrInvalidPath, name, value, pathSeparator)
	}
	return nil
}
