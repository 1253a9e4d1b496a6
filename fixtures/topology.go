package fixtures

import (
	"context"

	"github.com/dogmatiq/retrospect/gateway"
	"github.com/dogmatiq/retrospect/topology"
)

// TopologyProviderStub is a test implementation of the topology.Provider
// interface.
type TopologyProviderStub struct {
	topology.Provider

	GetGatewayTopologyFunc func(context.Context, string) ([]gateway.Node, error)
}

// GetGatewayTopology returns the gateway nodes of the process definition
// with the given ID.
func (p *TopologyProviderStub) GetGatewayTopology(
	ctx context.Context,
	definitionID string,
) ([]gateway.Node, error) {
	if p.GetGatewayTopologyFunc != nil {
		return p.GetGatewayTopologyFunc(ctx, definitionID)
	}

	if p.Provider != nil {
		return p.Provider.GetGatewayTopology(ctx, definitionID)
	}

	return nil, nil
}
