package gateway

import (
	"fmt"
	"net/http"
	"sort"

	"go.uber.org/zap"

	"github.com/example/paybridge/internal/config"
)

// Registry maps gateway names to configured adapters. It is filled once at
// startup and only read afterwards, so lookups need no locking.
type Registry struct {
	adapters map[Name]Adapter
}

// NewRegistry registers every gateway whose credentials are present. A gateway
// without credentials is skipped rather than treated as an error.
func NewRegistry(cfg config.Gateways, policy VerificationPolicy, client *http.Client, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{adapters: make(map[Name]Adapter)}

	if cfg.Easebuzz.Enabled() {
		a, err := NewEasebuzzAdapter(EasebuzzConfig{
			Key:          cfg.Easebuzz.Key,
			Salt:         cfg.Easebuzz.Salt,
			PayURL:       cfg.Easebuzz.BaseURL(),
			DashboardURL: cfg.Easebuzz.DashboardURL,
			Policy:       policy,
		}, client, logger)
		if err != nil {
			return nil, err
		}
		r.Register(a)
	} else {
		logger.Info("gateway not configured, skipping", zap.String("gateway", string(Easebuzz)))
	}

	if cfg.UPI.Enabled() {
		a, err := NewUPIAdapter(UPIConfig{
			Key:         cfg.UPI.Key,
			BaseURL:     cfg.UPI.BaseURL,
			WebhookSalt: cfg.UPI.WebhookSalt,
			RedirectURL: cfg.UPI.RedirectURL,
			Policy:      policy,
		}, client, logger)
		if err != nil {
			return nil, err
		}
		r.Register(a)
	} else {
		logger.Info("gateway not configured, skipping", zap.String("gateway", string(UPI)))
	}

	logger.Info("gateway registry ready",
		zap.Strings("gateways", r.namesAsStrings()),
		zap.String("verification", policy.String()))
	return r, nil
}

// NewRegistryWith builds a registry from ready adapters.
func NewRegistryWith(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Name]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds an adapter. It must only be called during startup.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Resolve returns the adapter for name, accepting the aliases ParseName knows.
func (r *Registry) Resolve(name string) (Adapter, error) {
	n, ok := ParseName(name)
	if !ok {
		n = Name(name)
	}
	a, ok := r.adapters[n]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGatewayNotRegistered, name)
	}
	return a, nil
}

// Names lists registered gateways in a stable order.
func (r *Registry) Names() []Name {
	out := make([]Name, 0, len(r.adapters))
	for n := range r.adapters {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LookupKeys unions the lookup fields of all adapters, references first in
// registry order, without duplicates.
func (r *Registry) LookupKeys() LookupKeys {
	var out LookupKeys
	seenRef := map[string]bool{}
	seenID := map[string]bool{}
	for _, n := range r.Names() {
		keys := r.adapters[n].LookupKeys()
		for _, k := range keys.Reference {
			if !seenRef[k] {
				seenRef[k] = true
				out.Reference = append(out.Reference, k)
			}
		}
		for _, k := range keys.GatewayID {
			if !seenID[k] {
				seenID[k] = true
				out.GatewayID = append(out.GatewayID, k)
			}
		}
	}
	return out
}

func (r *Registry) namesAsStrings() []string {
	names := r.Names()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
