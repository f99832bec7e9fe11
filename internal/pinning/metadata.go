package pinning

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/tidwall/gjson"

	"nftpin/internal/pinstore"
)

const ipfsScheme = "ipfs://"

var (
	errNotIPFS        = errors.New("not an ipfs uri")
	errMalformedJSON  = errors.New("metadata is not a json object")
	errMissingContent = errors.New("ipfs uri carries no content identifier")
)

// IsTokenSupported reports whether token can be pinned. Only ERC-721 style
// tokens on Ethereum-compatible chains with an encodable path qualify.
func IsTokenSupported(token pinstore.TokenKey) bool {
	if !token.IsNFT || token.CoinType != pinstore.CoinTypeETH {
		return false
	}
	if strings.TrimSpace(token.Contract) == "" || strings.TrimSpace(token.TokenID) == "" {
		return false
	}
	_, err := pinstore.EncodePath("", token)
	return err == nil
}

// IsIPFSURI reports whether uri uses the ipfs:// scheme.
func IsIPFSURI(uri string) bool {
	return len(uri) > len(ipfsScheme) && strings.EqualFold(uri[:len(ipfsScheme)], ipfsScheme)
}

// ExtractCID returns the canonical root CID of an ipfs:// URI such as
// "ipfs://bafy.../metadata.json" or "ipfs://ipfs/Qm...".
func ExtractCID(uri string) (string, error) {
	if !IsIPFSURI(uri) {
		return "", fmt.Errorf("%w: %q", errNotIPFS, uri)
	}
	rest := uri[len(ipfsScheme):]
	rest = strings.TrimPrefix(rest, "ipfs/")
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		rest = rest[:idx]
	}
	if rest == "" {
		return "", errMissingContent
	}
	parsed, err := cid.Decode(rest)
	if err != nil {
		return "", fmt.Errorf("decode cid %q: %w", rest, err)
	}
	return parsed.String(), nil
}

// collectCIDs returns the ordered CID list for a token: the metadata document
// first, then its image when that is also on IPFS.
func collectCIDs(uri string, body []byte) ([]string, *pinstore.PinError) {
	if !IsIPFSURI(uri) {
		return nil, pinstore.NewPinError(pinstore.ErrCodeNonIPFSTokenURL, fmt.Sprintf("token uri %q is not on ipfs", uri))
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, pinstore.NewPinError(pinstore.ErrCodeWrongMetadataFormat, errMalformedJSON.Error())
	}
	primary, err := ExtractCID(uri)
	if err != nil {
		return nil, pinstore.NewPinError(pinstore.ErrCodeNonIPFSTokenURL, err.Error())
	}
	cids := []string{primary}

	image := gjson.GetBytes(body, "image")
	if image.Type == gjson.String && IsIPFSURI(image.String()) {
		if secondary, err := ExtractCID(image.String()); err == nil && secondary != primary {
			cids = append(cids, secondary)
		}
	}
	return cids, nil
}
