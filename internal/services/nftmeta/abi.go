package nftmeta

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// tokenURISelector is the first four bytes of keccak256("tokenURI(uint256)").
const tokenURISelector = "c87b56dd"

const wordSize = 32

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// encodeTokenURICall builds the calldata for tokenURI(tokenID). tokenID may
// be decimal or 0x-prefixed hex.
func encodeTokenURICall(tokenID string) (string, error) {
	id, ok := new(big.Int).SetString(strings.TrimSpace(tokenID), 0)
	if !ok || id.Sign() < 0 || id.Cmp(maxUint256) > 0 {
		return "", fmt.Errorf("token id %q is not a uint256", tokenID)
	}
	word := make([]byte, wordSize)
	id.FillBytes(word)
	return "0x" + tokenURISelector + hex.EncodeToString(word), nil
}

// decodeABIString decodes a single dynamic string return value.
func decodeABIString(result string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(result), "0x"))
	if err != nil {
		return "", fmt.Errorf("decode hex result: %w", err)
	}
	if len(raw) < 2*wordSize {
		return "", errors.New("result too short for an abi string")
	}
	offset, err := readWord(raw, 0)
	if err != nil {
		return "", err
	}
	if offset+wordSize > uint64(len(raw)) {
		return "", fmt.Errorf("string offset %d out of range", offset)
	}
	length, err := readWord(raw, offset)
	if err != nil {
		return "", err
	}
	start := offset + wordSize
	if length > uint64(len(raw))-start {
		return "", fmt.Errorf("string length %d out of range", length)
	}
	return string(raw[start : start+length]), nil
}

func readWord(raw []byte, at uint64) (uint64, error) {
	if at+wordSize > uint64(len(raw)) {
		return 0, fmt.Errorf("word at %d out of range", at)
	}
	word := new(big.Int).SetBytes(raw[at : at+wordSize])
	if !word.IsUint64() {
		return 0, fmt.Errorf("word at %d overflows", at)
	}
	return word.Uint64(), nil
}
