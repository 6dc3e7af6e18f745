package ethchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"hermes/pkg/errors"
)

// encodeCall builds ABI calldata for a method. Argument Solidity types
// are inferred from the Go values: address, uint256 and address[] cover
// every call the engine issues.
func encodeCall(method string, args []interface{}) ([]byte, error) {
	solTypes := make([]string, len(args))
	for i, a := range args {
		t, err := solType(a)
		if err != nil {
			return nil, errors.Wrapf(err, "%s argument %d", method, i)
		}
		solTypes[i] = t
	}

	sig := fmt.Sprintf("%s(%s)", method, strings.Join(solTypes, ","))
	selector := crypto.Keccak256([]byte(sig))[:4]

	// Static args occupy one head word each; dynamic args put an offset
	// in the head and their payload in the tail
	headSize := 32 * len(args)
	head := make([]byte, 0, headSize)
	var tail []byte

	for _, a := range args {
		switch v := a.(type) {
		case common.Address:
			head = append(head, common.LeftPadBytes(v.Bytes(), 32)...)
		case *big.Int:
			if v.Sign() < 0 || v.BitLen() > 256 {
				return nil, errors.Wrapf(errors.ErrInvalidInput, "%s: value out of uint256 range", method)
			}
			head = append(head, common.LeftPadBytes(v.Bytes(), 32)...)
		case []common.Address:
			offset := big.NewInt(int64(headSize + len(tail)))
			head = append(head, common.LeftPadBytes(offset.Bytes(), 32)...)
			tail = append(tail, common.LeftPadBytes(big.NewInt(int64(len(v))).Bytes(), 32)...)
			for _, addr := range v {
				tail = append(tail, common.LeftPadBytes(addr.Bytes(), 32)...)
			}
		default:
			return nil, errors.Wrapf(errors.ErrInvalidInput, "%s: unsupported argument type %T", method, a)
		}
	}

	data := make([]byte, 0, 4+len(head)+len(tail))
	data = append(data, selector...)
	data = append(data, head...)
	data = append(data, tail...)
	return data, nil
}

func solType(a interface{}) (string, error) {
	switch a.(type) {
	case common.Address:
		return "address", nil
	case *big.Int:
		return "uint256", nil
	case []common.Address:
		return "address[]", nil
	default:
		return "", errors.Wrapf(errors.ErrInvalidInput, "unsupported argument type %T", a)
	}
}
