package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"nftpin/internal/inventory"
	"nftpin/internal/ipc"
	"nftpin/internal/pinstore"
)

func newPinCommand(ctx *commandContext) *cobra.Command {
	var coin int
	pinCmd := &cobra.Command{
		Use:   "pin",
		Short: "Pin, unpin, or validate a single token now",
		Long: "Tokens are given either as a record path (nft.local.60.0x1.<contract>.<id>)\n" +
			"or as three arguments: <chain-id> <contract> <token-id>.",
	}
	pinCmd.PersistentFlags().IntVar(&coin, "coin", pinstore.CoinTypeETH, "SLIP-44 coin type for the three-argument form")

	type operation struct {
		use   string
		short string
		call  func(*ipc.Client, ipc.Token) (*ipc.OperationResponse, error)
	}
	ops := []operation{
		{"add", "Pin a token's metadata and media", (*ipc.Client).Pin},
		{"remove", "Unpin a token and forget its record", (*ipc.Client).Unpin},
		{"validate", "Check that a pinned token is still pinned", (*ipc.Client).Validate},
	}
	for _, op := range ops {
		pinCmd.AddCommand(&cobra.Command{
			Use:   op.use + " <path> | <chain-id> <contract> <token-id>",
			Short: op.short,
			Args:  cobra.RangeArgs(1, 3),
			RunE: func(cmd *cobra.Command, args []string) error {
				token, err := parseTokenArgs(args, coin)
				if err != nil {
					return err
				}
				return ctx.withClient(func(client *ipc.Client) error {
					resp, err := op.call(client, token)
					if err != nil {
						return err
					}
					return renderOperation(cmd.OutOrStdout(), op.use, resp)
				})
			},
		})
	}
	return pinCmd
}

// parseTokenArgs accepts a record path or a chain, contract, id triple.
func parseTokenArgs(args []string, coin int) (ipc.Token, error) {
	var token pinstore.TokenKey
	switch len(args) {
	case 1:
		service, decoded, err := pinstore.DecodePath(args[0])
		if err != nil {
			return ipc.Token{}, err
		}
		if service != "" {
			return ipc.Token{}, fmt.Errorf("only local pins can be managed, got service %q", service)
		}
		token = decoded
	case 3:
		token = pinstore.TokenKey{CoinType: coin, ChainID: args[0], Contract: args[1], TokenID: args[2], IsNFT: true}
	default:
		return ipc.Token{}, errors.New("expected a record path or <chain-id> <contract> <token-id>")
	}
	token = inventory.Normalize(token)
	if _, err := pinstore.EncodePath("", token); err != nil {
		return ipc.Token{}, err
	}
	return ipc.TokenFromKey(token), nil
}

func renderOperation(out io.Writer, op string, resp *ipc.OperationResponse) error {
	if !resp.Success {
		return fmt.Errorf("%s %s failed: %s: %s", op, resp.Record.Path, resp.ErrorCode, resp.ErrorMessage)
	}
	fmt.Fprintf(out, "%s: %s\n", resp.Record.Path, displayStatus(resp.Record.Status))
	if resp.Outcome != "" {
		fmt.Fprintf(out, "Validation: %s\n", resp.Outcome)
	}
	for _, cid := range resp.Record.CIDs {
		fmt.Fprintf(out, "  %s\n", cid)
	}
	return nil
}
