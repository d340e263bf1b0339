package convert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigSupportsWildcard(t *testing.T) {
	cfg := Config{SupportedMessages: []string{"*"}}
	require.True(t, cfg.SupportsAll())
	require.True(t, cfg.Supports("ADT_A01"))
	require.True(t, cfg.Supports("ORU_R01"))
}

func TestConfigSupportsExplicitList(t *testing.T) {
	cfg := Config{SupportedMessages: []string{"ADT_A01", "ADT_A03"}}
	require.False(t, cfg.SupportsAll())
	require.True(t, cfg.Supports("ADT_A01"))
	require.False(t, cfg.Supports("ORU_R01"))
}
