package quoter

import (
	"errors"
	"fmt"

	"github.com/defistate/defistate-router-go/routing/poolmodel"
	"github.com/defistate/defistate-router-go/routing/route"
)

var ErrInvalidGasTable = errors.New("invalid gas table")

// GasTable is a fixed unit-gas model: one overhead per route plus a cost per
// hop depending on the pool's curve.
type GasTable struct {
	RouteOverhead uint64                    `yaml:"routeOverhead" json:"routeOverhead"`
	PerHop        map[poolmodel.Kind]uint64 `yaml:"perHop" json:"perHop"`
}

func DefaultGasTable() GasTable {
	return GasTable{
		RouteOverhead: 30_000,
		PerHop: map[poolmodel.Kind]uint64{
			poolmodel.KindConstantProduct: 60_000,
			poolmodel.KindConcentrated:    100_000,
		},
	}
}

func (g GasTable) Validate() error {
	for _, kind := range []poolmodel.Kind{poolmodel.KindConstantProduct, poolmodel.KindConcentrated} {
		if g.PerHop[kind] == 0 {
			return fmt.Errorf("%w: no hop cost for %s pools", ErrInvalidGasTable, kind)
		}
	}
	return nil
}

// Estimate is the gas units for one route.
func (g GasTable) Estimate(r route.Route) uint64 {
	units := g.RouteOverhead
	for i := 0; i < r.Len(); i++ {
		units += g.PerHop[r.Hop(i).Pool.Kind()]
	}
	return units
}
