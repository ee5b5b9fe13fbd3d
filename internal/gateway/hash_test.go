package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	fixtureResponseHash = "3f09577b747a336f8ca498534313f3f3d07c4d8bd5c816655daadbfa50b30c7545c57c3e79a76a7a6aa15349c8076adf94b5bdce6232c58544a29879bf5f53ea"
	fixtureRequestHash  = "f9d2b59fbd18dff50a0d881cde89221da6d6abd4e56bb45fc5583d5922cc39d71172ae51bebcb986f43c07fe561ea5ed8e20eefa0504254ea3eb152c27a29f84"
)

func fixtureFields() []string {
	fields := []string{"TXN1", "100.00", "Payment", "Asha", "a@b.com"}
	fields = append(fields, make([]string, 10)...)
	return append(fields, "success")
}

func fixtureRequestFields() []string {
	fields := []string{"TXN1", "100.00", "Payment", "Asha", "a@b.com"}
	return append(fields, make([]string, 10)...)
}

func TestComputeRequestHash(t *testing.T) {
	require.Equal(t, fixtureRequestHash, ComputeRequestHash(fixtureRequestFields(), "key", "salt"))

	t.Run("key and salt are trimmed", func(t *testing.T) {
		require.Equal(t, fixtureRequestHash, ComputeRequestHash(fixtureRequestFields(), "  key\n", "\tsalt "))
	})

	t.Run("field order matters", func(t *testing.T) {
		swapped := fixtureRequestFields()
		swapped[0], swapped[1] = swapped[1], swapped[0]
		require.NotEqual(t, fixtureRequestHash, ComputeRequestHash(swapped, "key", "salt"))
	})
}

func TestVerifyResponseHash(t *testing.T) {
	fields := fixtureFields()

	require.Equal(t, fixtureResponseHash, ComputeResponseHash(fields, "key", "salt"))
	require.True(t, VerifyResponseHash(fields, fixtureResponseHash, "key", "salt"))
	require.True(t, VerifyResponseHash(fields, strings.ToUpper(fixtureResponseHash), "key", "salt"))
	require.True(t, VerifyResponseHash(fields, fixtureResponseHash, " key ", " salt\n"))

	t.Run("request hash is not a valid response hash", func(t *testing.T) {
		require.False(t, VerifyResponseHash(fields, ComputeRequestHash(fields, "key", "salt"), "key", "salt"))
	})

	t.Run("any single character mutation fails", func(t *testing.T) {
		for i, f := range fields {
			if f == "" {
				continue
			}
			for pos := range f {
				mutated := append([]string(nil), fields...)
				b := []byte(f)
				b[pos] ^= 0x01
				mutated[i] = string(b)
				require.False(t, VerifyResponseHash(mutated, fixtureResponseHash, "key", "salt"), "field %d pos %d", i, pos)
			}
		}
		require.False(t, VerifyResponseHash(fields, fixtureResponseHash, "kez", "salt"))
		require.False(t, VerifyResponseHash(fields, fixtureResponseHash, "key", "salu"))
	})
}

func TestCheckResponseHash(t *testing.T) {
	fields := fixtureFields()

	require.NoError(t, CheckResponseHash(fields, fixtureResponseHash, "key", "salt"))
	require.ErrorIs(t, CheckResponseHash(fields, "", "key", "salt"), ErrHashMissing)
	require.ErrorIs(t, CheckResponseHash(fields, "   ", "key", "salt"), ErrHashMissing)
	require.ErrorIs(t, CheckResponseHash(fields, "deadbeef", "key", "salt"), ErrHashMismatch)
	require.True(t, IsVerificationError(CheckResponseHash(fields, "", "key", "salt")))
}
