package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"nftpin/internal/config"
	"nftpin/internal/inventory"
	"nftpin/internal/logging"
	"nftpin/internal/services/ipfs"
	"nftpin/internal/services/nftmeta"
)

const checkTimeout = 5 * time.Second

// CheckIPFS verifies that the Kubo RPC API answers.
func CheckIPFS(ctx context.Context, apiURL string) Result {
	const name = "IPFS node"

	if strings.TrimSpace(apiURL) == "" {
		return Result{Name: name, Detail: "missing api_url"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	version, err := ipfs.Version(checkCtx, apiURL, checkTimeout)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", apiURL, summarizeError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (kubo %s)", apiURL, version)}
}

// CheckRPC verifies each configured chain endpoint serves the chain it is
// configured for.
func CheckRPC(ctx context.Context, cfg *config.Config) []Result {
	fetcher := nftmeta.New(cfg, logging.NewNop())
	chains := fetcher.Chains()
	if len(chains) == 0 {
		return []Result{{Name: "Chain RPC", Detail: "no rpc_urls configured"}}
	}

	results := make([]Result, 0, len(chains))
	for _, chain := range chains {
		name := "Chain RPC " + chain
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		served, err := fetcher.ChainID(checkCtx, chain)
		cancel()
		switch {
		case err != nil:
			results = append(results, Result{Name: name, Detail: summarizeError(err)})
		case served != chain:
			results = append(results, Result{Name: name, Detail: fmt.Sprintf("endpoint serves chain %s", served)})
		default:
			results = append(results, Result{Name: name, Passed: true, Detail: "Reachable"})
		}
	}
	return results
}

// CheckInventoryFile verifies the inventory file parses.
func CheckInventoryFile(path string) Result {
	const name = "Token inventory"

	tokens, err := inventory.NewFileInventory(path).GetAllUserTokens(context.Background())
	if err != nil {
		if errors.Is(err, inventory.ErrNoInventory) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d tokens)", path, len(tokens))}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// summarizeError shortens connection failures for status output.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "unreachable"
	}
	var apiErr *ipfs.APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("http %d", apiErr.StatusCode)
	}
	return err.Error()
}
