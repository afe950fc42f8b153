package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestBuild_JSONWithServiceAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := Component(build(&buf, Config{Env: "production", Level: "info", Service: "order-api"}), "ledger")

	l.Debug().Msg("hidden")
	l.Info().Str("sku_id", "sku-1").Msg("reserved")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line), "only the info line must be written")
	assert.Equal(t, "order-api", line["service"])
	assert.Equal(t, "ledger", line["component"])
	assert.Equal(t, "sku-1", line["sku_id"])
	assert.Equal(t, "reserved", line["message"])
}
