package api

import (
	"testing"

	"github.com/ssargent/freyjadb/pkg/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServer(t *testing.T) {
	manager := index.NewIndexManager(t.TempDir(), 4)
	t.Cleanup(func() { _ = manager.CloseAll() })

	serverConfig := ServerConfig{Port: 0, APIKey: "test-key"}
	metrics := &Metrics{}

	server := NewServer(manager, serverConfig, metrics)
	require.NotNil(t, server)
	assert.Same(t, manager, server.indexes)
	assert.Equal(t, "test-key", server.config.APIKey)
}

func TestServerConfig(t *testing.T) {
	tests := []struct {
		name     string
		config   ServerConfig
		expected ServerConfig
	}{
		{
			name:     "valid config",
			config:   ServerConfig{Port: 8080, APIKey: "secret-key"},
			expected: ServerConfig{Port: 8080, APIKey: "secret-key"},
		},
		{
			name:     "empty config",
			config:   ServerConfig{},
			expected: ServerConfig{Port: 0, APIKey: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected.Port, tt.config.Port)
			assert.Equal(t, tt.expected.APIKey, tt.config.APIKey)
		})
	}
}
