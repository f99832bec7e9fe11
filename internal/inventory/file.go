package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"nftpin/internal/fileutil"
	"nftpin/internal/pinstore"
)

// ErrNoInventory is returned when the inventory file does not exist. A
// missing file is not treated as an empty wallet.
var ErrNoInventory = errors.New("inventory file not found")

// FileInventory reads tokens from a JSON file.
type FileInventory struct {
	path string
}

// NewFileInventory returns an inventory backed by path.
func NewFileInventory(path string) *FileInventory {
	return &FileInventory{path: path}
}

// Path returns the inventory file location.
func (f *FileInventory) Path() string {
	return f.path
}

// GetAllUserTokens returns every token in the file. Chain ids and contract
// addresses are lowercased so checksummed and plain addresses share a path.
func (f *FileInventory) GetAllUserTokens(ctx context.Context) ([]pinstore.TokenKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoInventory, f.path)
		}
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}
	var tokens []pinstore.TokenKey
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", f.path, err)
	}
	for i := range tokens {
		tokens[i] = Normalize(tokens[i])
	}
	return tokens, nil
}

// Write replaces the inventory file atomically.
func (f *FileInventory) Write(tokens []pinstore.TokenKey) error {
	if tokens == nil {
		tokens = []pinstore.TokenKey{}
	}
	data, err := json.MarshalIndent(tokens, "", "  ")
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	if err := fileutil.WriteAtomic(f.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write inventory: %w", err)
	}
	return nil
}

// Normalize trims and lowercases the identifying fields of token.
func Normalize(token pinstore.TokenKey) pinstore.TokenKey {
	token.ChainID = strings.ToLower(strings.TrimSpace(token.ChainID))
	token.Contract = strings.ToLower(strings.TrimSpace(token.Contract))
	token.TokenID = strings.TrimSpace(token.TokenID)
	return token
}
