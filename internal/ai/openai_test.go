package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/vigil/internal/instrument"
	"github.com/wonny/vigil/pkg/config"
	"github.com/wonny/vigil/pkg/logger"
)

func TestExtractAnalysis(t *testing.T) {
	tests := []struct {
		name    string
		content string
		signal  string
		wantErr bool
	}{
		{
			name:    "bare json",
			content: `{"signal": "SELL", "message": "broke support", "holding_duration": "short term"}`,
			signal:  "SELL",
		},
		{
			name: "fenced json",
			content: "Here is my analysis:\n```json\n" +
				`{"signal": "BUY", "message": "golden cross"}` + "\n```\nGood luck.",
			signal: "BUY",
		},
		{
			name:    "no json",
			content: "I think you should sell.",
			wantErr: true,
		},
		{
			name:    "broken json",
			content: `{"signal": "BUY",`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			analysis, err := extractAnalysis(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.signal, analysis.Signal)
		})
	}
}

func TestResolveProviderOverrides(t *testing.T) {
	c := NewClient(nil, config.AIConfig{
		BaseURL: "https://api.openai.com/v1",
		APIKey:  "default-key",
		Model:   "gpt-4o-mini",
	}, nil, logger.NewNop())

	// Nil provider keeps the defaults.
	baseURL, apiKey, model := c.resolve(nil)
	assert.Equal(t, "https://api.openai.com/v1", baseURL)
	assert.Equal(t, "default-key", apiKey)
	assert.Equal(t, "gpt-4o-mini", model)

	// Provider row overrides field by field.
	baseURL, apiKey, model = c.resolve(&instrument.AIProvider{
		BaseURL: "https://api.deepseek.com/v1",
		Model:   "deepseek-chat",
	})
	assert.Equal(t, "https://api.deepseek.com/v1", baseURL)
	assert.Equal(t, "default-key", apiKey)
	assert.Equal(t, "deepseek-chat", model)
}
