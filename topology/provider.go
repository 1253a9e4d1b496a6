package topology

import (
	"context"

	"github.com/dogmatiq/retrospect/gateway"
)

// Provider is an interface for obtaining the gateway topology of a process
// definition.
type Provider interface {
	// GetGatewayTopology returns the gateway nodes of the process definition
	// with the given ID.
	//
	// It returns an empty topology if the definition has no gateways. An
	// error indicates that the topology could not be resolved, not that it
	// is empty.
	GetGatewayTopology(ctx context.Context, definitionID string) ([]gateway.Node, error)
}

// ProviderFunc is an adaptor that allows an ordinary function to be used as
// a Provider.
type ProviderFunc func(ctx context.Context, definitionID string) ([]gateway.Node, error)

// GetGatewayTopology returns the gateway nodes of the process definition
// with the given ID.
func (fn ProviderFunc) GetGatewayTopology(ctx context.Context, definitionID string) ([]gateway.Node, error) {
	return fn(ctx, definitionID)
}
