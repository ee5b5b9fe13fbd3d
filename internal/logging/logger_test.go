package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	log, err := New(Config{ServiceName: "paybridge", Env: "development"})
	require.NoError(t, err)
	require.NotNil(t, log)

	log, err = New(Config{ServiceName: "paybridge", Env: "production", Level: "WARN"})
	require.NoError(t, err)
	require.NotNil(t, log)

	_, err = New(Config{Level: "trace"})
	require.Error(t, err)

	_, err = New(Config{Format: "xml"})
	require.Error(t, err)
}
