package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		fields   map[string]string
		expected string
	}{
		{
			name: "default level emits info",
			expected: `level=info msg="split written" @app=cleave
`,
		},
		{
			name:  "debug level emits debug",
			level: "DEBUG",
			expected: `level=debug msg="debug message" @app=cleave
level=info msg="split written" @app=cleave
`,
		},
		{
			name:  "warn level drops info",
			level: "warn",
			expected: `level=warning msg="split warning" @app=cleave split_key=2
`,
			fields: map[string]string{"split_key": "2"},
		},
		{
			name:   "json format",
			format: "json",
			expected: `{"@app":"cleave","level":"info","msg":"split written"}
`,
		},
		{
			name:     "none discards output",
			level:    "none",
			expected: "",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.AddTimestamp = false
			cfg.StaticFields = map[string]string{"@app": "cleave"}
			if test.level != "" {
				cfg.Level = test.level
			}
			if test.format != "" {
				cfg.Format = test.format
			}

			var buf bytes.Buffer
			logger, err := New(&buf, cfg)
			require.NoError(t, err)

			logger.Debug("debug message")
			if test.fields != nil {
				entry := logger
				for k, v := range test.fields {
					entry = entry.WithField(k, v)
				}
				entry.Warn("split warning")
			}
			logger.Info("split written")

			assert.Equal(t, test.expected, buf.String())
		})
	}
}

func TestLogger_InvalidConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.Level = "loud"
	_, err := New(&bytes.Buffer{}, cfg)
	require.Error(t, err)

	cfg = NewConfig()
	cfg.Format = "xml"
	_, err = New(&bytes.Buffer{}, cfg)
	require.Error(t, err)
}

func TestNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Noop().WithField("rows", 3).Info("ignored")
	})
}
