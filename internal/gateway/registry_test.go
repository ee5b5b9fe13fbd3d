package gateway

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/paybridge/internal/config"
)

func TestNewRegistry(t *testing.T) {
	t.Run("registers only configured gateways", func(t *testing.T) {
		r, err := NewRegistry(config.Gateways{
			UPI: config.UPIGateway{Key: "upi-key", BaseURL: "http://upi.local"},
		}, PolicyStrict, nil, nil)
		require.NoError(t, err)
		require.Equal(t, []Name{UPI}, r.Names())

		_, err = r.Resolve("easebuzz")
		require.ErrorIs(t, err, ErrGatewayNotRegistered)
		require.True(t, IsConfigError(err))
	})

	t.Run("nothing configured is not an error", func(t *testing.T) {
		r, err := NewRegistry(config.Gateways{}, PolicyPermissive, nil, nil)
		require.NoError(t, err)
		require.Empty(t, r.Names())
	})

	t.Run("both gateways", func(t *testing.T) {
		r, err := NewRegistry(config.Gateways{
			Easebuzz: config.Easebuzz{Key: "key", Salt: "salt", Env: "test"},
			UPI:      config.UPIGateway{Key: "upi-key"},
		}, PolicyStrict, nil, nil)
		require.NoError(t, err)
		require.Equal(t, []Name{Easebuzz, UPI}, r.Names())

		for _, alias := range []string{"easebuzz", "Hosted-Checkout", "gateway_a"} {
			a, err := r.Resolve(alias)
			require.NoError(t, err, alias)
			require.Equal(t, Easebuzz, a.Name())
		}
		for _, alias := range []string{"upi", "UPIGateway", "gatewayB"} {
			a, err := r.Resolve(alias)
			require.NoError(t, err, alias)
			require.Equal(t, UPI, a.Name())
		}
	})
}

func TestRegistryLookupKeys(t *testing.T) {
	eb, err := NewEasebuzzAdapter(EasebuzzConfig{Key: "key", Salt: "salt"}, nil, nil)
	require.NoError(t, err)
	upi, err := NewUPIAdapter(UPIConfig{Key: "upi-key"}, nil, nil)
	require.NoError(t, err)

	keys := NewRegistryWith(upi, eb).LookupKeys()
	require.Equal(t, []string{"txnid", "client_txn_id", "order_id"}, keys.Reference)
	require.Equal(t, []string{"easepayid", "txn_id", "id"}, keys.GatewayID)
}
