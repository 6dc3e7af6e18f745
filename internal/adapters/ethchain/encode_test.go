package ethchain

import (
	"encoding/hex"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hermes/pkg/errors"
)

func TestEncodeCall(t *testing.T) {
	spender := common.HexToAddress("0x1111111111111111111111111111111111111111")

	t.Run("erc20 approve selector", func(t *testing.T) {
		data, err := encodeCall("approve", []interface{}{spender, big.NewInt(1000)})
		require.NoError(t, err)
		require.Len(t, data, 4+32+32)

		// keccak256("approve(address,uint256)")[:4]
		assert.Equal(t, "095ea7b3", hex.EncodeToString(data[:4]))
		assert.Equal(t, spender, common.BytesToAddress(data[4+12:4+32]))
		assert.Equal(t, int64(1000), new(big.Int).SetBytes(data[36:68]).Int64())
	})

	t.Run("dynamic address array layout", func(t *testing.T) {
		path := []common.Address{
			common.HexToAddress("0x2222222222222222222222222222222222222222"),
			common.HexToAddress("0x3333333333333333333333333333333333333333"),
		}
		data, err := encodeCall("route", []interface{}{big.NewInt(7), path})
		require.NoError(t, err)

		// head: uint256 word + offset word; tail: length word + 2 items
		require.Len(t, data, 4+2*32+3*32)

		assert.Equal(t, int64(7), new(big.Int).SetBytes(data[4:36]).Int64())
		// Offset counts from the start of the arguments, past the two head words
		assert.Equal(t, int64(64), new(big.Int).SetBytes(data[36:68]).Int64())
		assert.Equal(t, int64(2), new(big.Int).SetBytes(data[68:100]).Int64())
		assert.Equal(t, path[0], common.BytesToAddress(data[100+12:132]))
		assert.Equal(t, path[1], common.BytesToAddress(data[132+12:164]))
	})

	t.Run("no arguments", func(t *testing.T) {
		data, err := encodeCall("totalSupply", nil)
		require.NoError(t, err)
		require.Len(t, data, 4)
		assert.Equal(t, "18160ddd", hex.EncodeToString(data))
	})

	t.Run("out of range uint256", func(t *testing.T) {
		over := new(big.Int).Lsh(big.NewInt(1), 256)
		_, err := encodeCall("approve", []interface{}{spender, over})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)

		_, err = encodeCall("approve", []interface{}{spender, big.NewInt(-1)})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})

	t.Run("unsupported argument type", func(t *testing.T) {
		_, err := encodeCall("approve", []interface{}{"not-an-address"})
		assert.ErrorIs(t, err, errors.ErrInvalidInput)
	})
}
