package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractCaller is the subset of the geth client needed to replay a transaction as a call.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// getErrorReasonFromTx replays a mined transaction as a call at the block it was included in
// and extracts the revert reason from the error returned by the node.
//
// Contract creations have no To address, so the replay runs the init code again.
func getErrorReasonFromTx(
	ctx context.Context,
	caller ContractCaller,
	from common.Address,
	tx *types.Transaction,
	receipt *types.Receipt,
) (string, error) {
	call := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Data:     tx.Data(),
		Value:    tx.Value(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
	}

	_, err := caller.CallContract(ctx, call, receipt.BlockNumber)
	if err == nil {
		return "", fmt.Errorf("tx %s reverted with no reason", tx.Hash().Hex())
	}

	reason, perr := getJSONErrorData(err)
	if perr == nil && reason != "" {
		return reason, nil
	}

	// Nodes without error data still tell us something in the message.
	return err.Error(), nil
}

// getJSONErrorData extracts the revert reason of a JSON-RPC error. Data carrying an
// Error(string) revert is decoded. Other data, such as a custom error, is returned next to the
// message of the node.
func getJSONErrorData(err error) (string, error) {
	if err == nil {
		return "", errors.New("cannot parse nil error")
	}

	// go-ethereum keeps its JSON error type private, so match on its method set.
	type jsonError interface {
		Error() string
		ErrorCode() int
		ErrorData() any
	}

	var jerr jsonError
	if !errors.As(err, &jerr) {
		return "", fmt.Errorf("error must be of type jsonError: %w", err)
	}

	if jerr.ErrorData() == nil {
		if strings.Contains(jerr.Error(), "missing trie node") {
			return "", errors.New("missing trie node, likely due to not using an archive node")
		}

		return "", nil
	}

	data, ok := jerr.ErrorData().(string)
	if !ok {
		return fmt.Sprintf("%s: %v", jerr.Error(), jerr.ErrorData()), nil
	}

	if raw, derr := hexutil.Decode(data); derr == nil {
		if reason, uerr := abi.UnpackRevert(raw); uerr == nil {
			return reason, nil
		}
	}

	return fmt.Sprintf("%s: %s", jerr.Error(), data), nil
}
