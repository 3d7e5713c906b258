package planner

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultSwapRouter is SwapRouter02 on Ethereum mainnet.
var DefaultSwapRouter = common.HexToAddress("0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45")

// SwapRouter02 recipient and amount sentinels.
var (
	// addressThis keeps a segment's output in the router for the next segment.
	addressThis = common.HexToAddress("0x0000000000000000000000000000000000000002")
	// contractBalance spends the router's whole balance of the input token.
	contractBalance = new(big.Int)
)

const swapRouterABI = `[
{"type":"function","name":"exactInput","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"path","type":"bytes"},{"name":"recipient","type":"address"},{"name":"amountIn","type":"uint256"},{"name":"amountOutMinimum","type":"uint256"}]}],"outputs":[{"name":"amountOut","type":"uint256"}]},
{"type":"function","name":"exactOutput","stateMutability":"payable","inputs":[{"name":"params","type":"tuple","components":[{"name":"path","type":"bytes"},{"name":"recipient","type":"address"},{"name":"amountOut","type":"uint256"},{"name":"amountInMaximum","type":"uint256"}]}],"outputs":[{"name":"amountIn","type":"uint256"}]},
{"type":"function","name":"swapExactTokensForTokens","stateMutability":"payable","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"}],"outputs":[{"name":"amountOut","type":"uint256"}]},
{"type":"function","name":"swapTokensForExactTokens","stateMutability":"payable","inputs":[{"name":"amountOut","type":"uint256"},{"name":"amountInMax","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"}],"outputs":[{"name":"amountIn","type":"uint256"}]},
{"type":"function","name":"multicall","stateMutability":"payable","inputs":[{"name":"deadline","type":"uint256"},{"name":"data","type":"bytes[]"}],"outputs":[{"name":"results","type":"bytes[]"}]}
]`

const (
	MethodExactInput               = "exactInput"
	MethodExactOutput              = "exactOutput"
	MethodSwapExactTokensForTokens = "swapExactTokensForTokens"
	MethodSwapTokensForExactTokens = "swapTokensForExactTokens"
	MethodMulticall                = "multicall"
)

// SwapRouterABI is the subset of SwapRouter02 the planner encodes against.
var SwapRouterABI = parseABI(swapRouterABI)

func parseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("failed to parse ABI: %v", err))
	}
	return parsed
}

// ExactInputParams mirrors IV3SwapRouter.ExactInputParams.
type ExactInputParams struct {
	Path             []byte
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

// ExactOutputParams mirrors IV3SwapRouter.ExactOutputParams.
type ExactOutputParams struct {
	Path            []byte
	Recipient       common.Address
	AmountOut       *big.Int
	AmountInMaximum *big.Int
}

// encodeV3Path packs token(20) fee(3) token(20)... The fees slice has one
// entry fewer than tokens.
func encodeV3Path(tokens []common.Address, fees []uint32) []byte {
	path := make([]byte, 0, len(tokens)*common.AddressLength+len(fees)*3)
	for i, token := range tokens {
		path = append(path, token.Bytes()...)
		if i < len(fees) {
			fee := fees[i]
			path = append(path, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return path
}

// DecodeV3Path is the inverse of the packed path encoding.
func DecodeV3Path(path []byte) ([]common.Address, []uint32, error) {
	const hop = common.AddressLength + 3
	if len(path) < common.AddressLength || (len(path)-common.AddressLength)%hop != 0 {
		return nil, nil, fmt.Errorf("malformed v3 path of %d bytes", len(path))
	}
	tokens := []common.Address{common.BytesToAddress(path[:common.AddressLength])}
	var fees []uint32
	for rest := path[common.AddressLength:]; len(rest) > 0; rest = rest[hop:] {
		fees = append(fees, uint32(rest[0])<<16|uint32(rest[1])<<8|uint32(rest[2]))
		tokens = append(tokens, common.BytesToAddress(rest[3:hop]))
	}
	return tokens, fees, nil
}
