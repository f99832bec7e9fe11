package pinning

import "context"

// PinBackend performs the actual pin operations. key is the token's record
// path; implementations use it to track which CIDs belong to which token.
type PinBackend interface {
	AddPins(ctx context.Context, key string, cids []string) error
	RemovePins(ctx context.Context, key string) error
	// ValidatePins reports whether every CID is still pinned. A non-nil
	// error means the answer is unknown.
	ValidatePins(ctx context.Context, key string, cids []string) (bool, error)
}

// Restorer is implemented by backends that rebuild internal state on start.
type Restorer interface {
	Restore(ctx context.Context) error
}

// Resetter is implemented by backends that can drop every pin they own.
type Resetter interface {
	ResetAll(ctx context.Context) error
}

// MetadataFetcher resolves a token's metadata URI and document.
type MetadataFetcher interface {
	GetMetadata(ctx context.Context, chainID, contract, tokenID string) (uri string, body []byte, err error)
}
