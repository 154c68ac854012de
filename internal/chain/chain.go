// Package chain describes the GenLayer networks the verifier can talk to.
package chain

import (
	"fmt"
	"sort"
)

// Network identifies a GenLayer chain and how to reach it.
type Network struct {
	Key    string // registry key: "studionet", "localnet", "testnet"
	ID     int
	Name   string
	RPCURL string
	Symbol string
}

// Endpoint is a network plus the deployed verifier contract.
type Endpoint struct {
	Network
	ContractAddress string
}

// Configured reports whether a contract address is present.
func (e Endpoint) Configured() bool {
	return e.ContractAddress != ""
}

// Overrides are optional per-field replacements for a registry network.
// Zero values leave the registry value in place.
type Overrides struct {
	ID     int
	Name   string
	RPCURL string
	Symbol string
}

// Apply returns n with every non-zero override applied.
func (o Overrides) Apply(n Network) Network {
	if o.ID > 0 {
		n.ID = o.ID
	}
	if o.Name != "" {
		n.Name = o.Name
	}
	if o.RPCURL != "" {
		n.RPCURL = o.RPCURL
	}
	if o.Symbol != "" {
		n.Symbol = o.Symbol
	}
	return n
}

// DefaultNetwork is used when no network is selected.
const DefaultNetwork = "studionet"

// Registry holds the known networks
type Registry struct {
	networks map[string]Network
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{networks: make(map[string]Network)}
}

// DefaultRegistry returns a registry with the built-in GenLayer networks.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Network{
		Key:    "studionet",
		ID:     61999,
		Name:   "GenLayer Studio",
		RPCURL: "https://studio.genlayer.com/api",
		Symbol: "GEN",
	})
	r.Register(Network{
		Key:    "localnet",
		ID:     61127,
		Name:   "GenLayer Localnet",
		RPCURL: "http://127.0.0.1:4000/api",
		Symbol: "GEN",
	})
	r.Register(Network{
		Key:    "testnet",
		ID:     4221,
		Name:   "GenLayer Testnet",
		RPCURL: "https://genlayer-testnet.rpc.caldera.xyz/http",
		Symbol: "GEN",
	})
	return r
}

// Register adds or replaces a network
func (r *Registry) Register(n Network) {
	r.networks[n.Key] = n
}

// Get retrieves a network by key
func (r *Registry) Get(key string) (Network, bool) {
	n, ok := r.networks[key]
	return n, ok
}

// Keys returns the registered network keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.networks))
	for k := range r.networks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolve looks up key (DefaultNetwork when empty) and applies the overrides.
func (r *Registry) Resolve(key string, o Overrides) (Network, error) {
	if key == "" {
		key = DefaultNetwork
	}
	n, ok := r.Get(key)
	if !ok {
		return Network{}, fmt.Errorf("unknown network %q (known: %v)", key, r.Keys())
	}
	return o.Apply(n), nil
}
