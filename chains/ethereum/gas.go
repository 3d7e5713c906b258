package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/defistate/defistate-router-go/chains"
	"github.com/ethereum/go-ethereum/ethclient"
)

// DefaultGasPriceTTL bounds how long a suggested gas price is reused.
const DefaultGasPriceTTL = 12 * time.Second

// GasPricer is the slice of ethclient.Client the oracle needs.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasOracle serves the node's suggested gas price, cached for a TTL.
type GasOracle struct {
	pricer GasPricer
	ttl    time.Duration
	now    func() time.Time
	logger chains.Logger

	mu        sync.Mutex
	price     *big.Int
	fetchedAt time.Time
}

// NewGasOracle wraps pricer. A ttl of zero disables caching.
func NewGasOracle(pricer GasPricer, ttl time.Duration, logger chains.Logger) *GasOracle {
	return &GasOracle{
		pricer: pricer,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// DialGasOracle connects to an execution node RPC endpoint. The returned
// func closes the connection.
func DialGasOracle(ctx context.Context, url string, ttl time.Duration, logger chains.Logger) (*GasOracle, func(), error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial node rpc: %w", err)
	}
	return NewGasOracle(client, ttl, logger), client.Close, nil
}

// CurrentGasPrice returns the gas price in wei. The oracle lock is held
// across the node call so concurrent callers share one request.
func (o *GasOracle) CurrentGasPrice(ctx context.Context) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.price != nil && o.ttl > 0 && o.now().Sub(o.fetchedAt) < o.ttl {
		return new(big.Int).Set(o.price), nil
	}

	price, err := o.pricer.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}
	if price == nil || price.Sign() < 0 {
		return nil, errors.New("suggest gas price: node returned an invalid price")
	}

	o.price = new(big.Int).Set(price)
	o.fetchedAt = o.now()
	o.logger.Debug("Gas price refreshed", "wei", price.String())
	return new(big.Int).Set(price), nil
}

// FixedGasPrice always reports the same price. A nil Wei prices gas at zero.
type FixedGasPrice struct {
	Wei *big.Int
}

func (f FixedGasPrice) CurrentGasPrice(context.Context) (*big.Int, error) {
	if f.Wei == nil {
		return new(big.Int), nil
	}
	return new(big.Int).Set(f.Wei), nil
}
