package contracts

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseArgs converts command line values to the Go types abi packing
// expects. Arrays, slices and tuples are not supported.
func ParseArgs(inputs abi.Arguments, raw []string) ([]any, error) {
	if len(inputs) != len(raw) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(inputs), len(raw))
	}

	values := make([]any, len(raw))
	for i, input := range inputs {
		value, err := parseArg(input.Type, raw[i])
		if err != nil {
			name := input.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, fmt.Errorf("invalid argument %s (%s): %w", name, input.Type.String(), err)
		}
		values[i] = value
	}
	return values, nil
}

func parseArg(t abi.Type, raw string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("not a hex address: %q", raw)
		}
		return common.HexToAddress(raw), nil
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		value := reflect.New(t.GetType()).Elem()
		reflect.Copy(value, reflect.ValueOf(b))
		return value.Interface(), nil
	case abi.IntTy, abi.UintTy:
		n, ok := new(big.Int).SetString(raw, 0)
		if !ok {
			return nil, fmt.Errorf("not an integer: %q", raw)
		}
		if !fits(t, n) {
			return nil, fmt.Errorf("value out of range")
		}
		return sizedInt(t, n), nil
	default:
		return nil, fmt.Errorf("unsupported type")
	}
}

func fits(t abi.Type, n *big.Int) bool {
	if t.T == abi.UintTy {
		return n.Sign() >= 0 && n.BitLen() <= t.Size
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(t.Size-1))
	return n.Cmp(limit) < 0 && n.Cmp(new(big.Int).Neg(limit)) >= 0
}

// sizedInt returns n as the fixed size Go integer abi uses for sizes up to
// 64 bits, and as *big.Int above.
func sizedInt(t abi.Type, n *big.Int) any {
	goType := t.GetType()
	if goType == reflect.TypeOf(&big.Int{}) {
		return n
	}
	if t.T == abi.UintTy {
		return reflect.ValueOf(n.Uint64()).Convert(goType).Interface()
	}
	return reflect.ValueOf(n.Int64()).Convert(goType).Interface()
}
