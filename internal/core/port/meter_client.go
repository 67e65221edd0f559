package port

import (
	"context"

	"github.com/berfenger/elvia2mqtt/pkg/elvia"
)

type MeterClient interface {
	GetMeters(ctx context.Context) (*elvia.MetersResult, error)
}

// MeterClientFactory builds a client bound to one credential token.
type MeterClientFactory func(token string) MeterClient

// ensure interface compliance
var _ MeterClient = (*elvia.Client)(nil)
