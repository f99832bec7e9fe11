package nftmeta

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"

	"nftpin/internal/config"
	"nftpin/internal/logging"
	"nftpin/internal/services"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	maxDocumentSize    = 4 << 20
	userAgent          = "nftpin/0.1.0"
)

// Fetcher implements pinning.MetadataFetcher over EVM JSON-RPC.
type Fetcher struct {
	rpcURLs    map[string]string
	gateway    string
	httpClient *http.Client
	logger     *slog.Logger
	nextID     atomic.Int64
}

// Option customizes the fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client used for RPC and document requests.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// New builds a fetcher from the metadata and gateway settings in cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Fetcher {
	timeout := cfg.MetadataTimeout()
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	urls := make(map[string]string, len(cfg.Metadata.RPCURLs))
	for chain, endpoint := range cfg.Metadata.RPCURLs {
		urls[strings.ToLower(chain)] = endpoint
	}
	f := &Fetcher{
		rpcURLs:    urls,
		gateway:    strings.TrimRight(cfg.IPFS.GatewayURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logging.NewComponentLogger(logger, "nftmeta"),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetMetadata returns the token URI and the metadata document it points to.
func (f *Fetcher) GetMetadata(ctx context.Context, chainID, contract, tokenID string) (string, []byte, error) {
	uri, err := f.TokenURI(ctx, chainID, contract, tokenID)
	if err != nil {
		return "", nil, err
	}
	body, err := f.fetchDocument(ctx, uri)
	if err != nil {
		return uri, nil, err
	}
	logging.WithContext(ctx, f.logger).Debug("metadata resolved",
		logging.String("uri", uri),
		logging.Int("bytes", len(body)),
	)
	return uri, body, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type callParams struct {
	To   string `json:"to"`
	Data string `json:"data"`
}

// TokenURI calls tokenURI(tokenID) on contract.
func (f *Fetcher) TokenURI(ctx context.Context, chainID, contract, tokenID string) (string, error) {
	endpoint, ok := f.rpcURLs[strings.ToLower(chainID)]
	if !ok {
		return "", services.Wrap(services.ErrConfiguration, "nftmeta", "token uri", fmt.Sprintf("no rpc url for chain %s", chainID), nil)
	}
	data, err := encodeTokenURICall(tokenID)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "nftmeta", "token uri", "", err)
	}
	result, err := f.rpc(ctx, endpoint, "eth_call", []any{callParams{To: contract, Data: data}, "latest"})
	if err != nil {
		return "", err
	}
	uri, err := decodeABIString(result.String())
	if err != nil {
		return "", services.Wrap(services.ErrExternalService, "nftmeta", "eth_call", "decode token uri", err)
	}
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return "", services.Wrap(services.ErrNotFound, "nftmeta", "eth_call", "empty token uri", nil)
	}
	return uri, nil
}

// ChainID asks the endpoint configured for chainID which chain it serves.
func (f *Fetcher) ChainID(ctx context.Context, chainID string) (string, error) {
	endpoint, ok := f.rpcURLs[strings.ToLower(chainID)]
	if !ok {
		return "", services.Wrap(services.ErrConfiguration, "nftmeta", "chain id", fmt.Sprintf("no rpc url for chain %s", chainID), nil)
	}
	body, err := f.rpc(ctx, endpoint, "eth_chainId", []any{})
	if err != nil {
		return "", err
	}
	return strings.ToLower(body.String()), nil
}

// Chains lists the chain ids with a configured endpoint.
func (f *Fetcher) Chains() []string {
	chains := make([]string, 0, len(f.rpcURLs))
	for chain := range f.rpcURLs {
		chains = append(chains, chain)
	}
	sort.Strings(chains)
	return chains
}

func (f *Fetcher) fetchDocument(ctx context.Context, uri string) ([]byte, error) {
	lower := strings.ToLower(uri)
	switch {
	case strings.HasPrefix(lower, "data:"):
		return decodeDataURI(uri)
	case strings.HasPrefix(lower, "ipfs://"):
		if f.gateway == "" {
			return nil, services.Wrap(services.ErrConfiguration, "nftmeta", "fetch metadata", "no ipfs gateway configured", nil)
		}
		rest := strings.TrimPrefix(uri[len("ipfs://"):], "ipfs/")
		return f.get(ctx, f.gateway+"/ipfs/"+rest)
	case strings.HasPrefix(lower, "https://"), strings.HasPrefix(lower, "http://"):
		return f.get(ctx, uri)
	default:
		return nil, services.Wrap(services.ErrValidation, "nftmeta", "fetch metadata", fmt.Sprintf("unsupported uri scheme in %q", uri), nil)
	}
}

// rpc performs one JSON-RPC call and returns its result.
func (f *Fetcher) rpc(ctx context.Context, endpoint, method string, params []any) (gjson.Result, error) {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      f.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("encode rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return gjson.Result{}, services.Wrap(services.ErrConfiguration, "nftmeta", method, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	body, err := f.do(req)
	if err != nil {
		return gjson.Result{}, err
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, services.Wrap(services.ErrExternalService, "nftmeta", method, "rpc returned invalid json", nil)
	}
	if rpcErr := gjson.GetBytes(body, "error"); rpcErr.Exists() {
		message := rpcErr.Get("message").String()
		if message == "" {
			message = rpcErr.Raw
		}
		return gjson.Result{}, services.Wrap(services.ErrExternalService, "nftmeta", method, message, nil)
	}
	result := gjson.GetBytes(body, "result")
	if !result.Exists() {
		return gjson.Result{}, services.Wrap(services.ErrExternalService, "nftmeta", method, "missing result", nil)
	}
	return result, nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "nftmeta", "fetch metadata", "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return f.do(req)
}

func (f *Fetcher) do(req *http.Request) ([]byte, error) {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalService, "nftmeta", req.Method+" "+req.URL.Host, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "nftmeta", "read response", "", err)
	}
	if resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		marker := services.ErrExternalService
		if resp.StatusCode == http.StatusNotFound {
			marker = services.ErrNotFound
		}
		return nil, services.Wrap(marker, "nftmeta", req.URL.Host, fmt.Sprintf("http %d: %s", resp.StatusCode, snippet), nil)
	}
	if len(body) > maxDocumentSize {
		return nil, services.Wrap(services.ErrValidation, "nftmeta", req.URL.Host, "response exceeds size limit", nil)
	}
	return body, nil
}

// decodeDataURI handles data:[<mediatype>][;base64],<data>.
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(uri[len("data:"):], ",")
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "nftmeta", "data uri", "missing payload separator", nil)
	}
	if strings.HasSuffix(strings.ToLower(header), ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "nftmeta", "data uri", "invalid base64", err)
		}
		return decoded, nil
	}
	decoded, err := url.PathUnescape(payload)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "nftmeta", "data uri", "invalid escape", err)
	}
	return []byte(decoded), nil
}
