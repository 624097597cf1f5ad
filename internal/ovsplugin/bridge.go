package ovsplugin

import "context"

// bridgeController is the subset of *ovsctl.Client the plugin depends on.
// Defined here (rather than depending on the concrete type throughout)
// so unit tests can exercise RPC handling and reconciliation without
// shelling out to ovs-vsctl.
type bridgeController interface {
	Name() string
	EnsureBridge(ctx context.Context) error
	BridgeExists(ctx context.Context) (bool, error)
	AddPort(ctx context.Context, port string, vlanTag int) error
	DelPort(ctx context.Context, port string) error
	SetTag(ctx context.Context, port string, vlanTag int) error
	PortTag(ctx context.Context, port string) (int, error)
	PortNames(ctx context.Context) ([]string, error)
	IsOwnedPort(ctx context.Context, port string) (bool, error)
	DestroyIfEmpty(ctx context.Context) error
}
