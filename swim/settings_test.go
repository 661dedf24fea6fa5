package swim

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"

	"github.com/linkwire/swim/value"
)

func TestApplyClientSettingsYaml(t *testing.T) {
	settings := DefaultClientSettings()
	err := ApplyClientSettingsYaml(settings, []byte(`
protocols: [warp0]
max_reconnect_timeout: 5000
idle_timeout: 250
send_buffer_size: 16
no_web_socket: true
credentials:
  jwt: abc
`))
	assert.Equal(t, err, nil)
	assert.Equal(t, settings.Protocols, []string{"warp0"})
	assert.Equal(t, settings.MaxReconnectTimeout, 5*time.Second)
	assert.Equal(t, settings.IdleTimeout, 250*time.Millisecond)
	assert.Equal(t, settings.SendBufferSize, 16)
	assert.Equal(t, settings.NoWebSocket, true)
	assert.Equal(t, value.Equal(settings.Credentials, value.Record("jwt", "abc")), true)
	// unset fields keep their defaults
	assert.Equal(t, settings.SendDelay, 100*time.Millisecond)
	assert.Equal(t, settings.ReadTimeout, 30*time.Second)
}

func TestApplyClientSettingsYamlErrors(t *testing.T) {
	assert.NotEqual(t, ApplyClientSettingsYaml(DefaultClientSettings(), []byte(`idle_timeout: [1]`)), nil)
	assert.NotEqual(t, ApplyClientSettingsYaml(DefaultClientSettings(), []byte(`idle_timeout: 0`)), nil)
	assert.NotEqual(t, ApplyClientSettingsYaml(DefaultClientSettings(), []byte(`send_buffer_size: -1`)), nil)
}

func TestLoadClientSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swim.yml")
	err := os.WriteFile(path, []byte("send_delay: 20\n"), 0600)
	assert.Equal(t, err, nil)

	settings, err := LoadClientSettings(path)
	assert.Equal(t, err, nil)
	assert.Equal(t, settings.SendDelay, 20*time.Millisecond)

	_, err = LoadClientSettings(filepath.Join(t.TempDir(), "missing.yml"))
	assert.NotEqual(t, err, nil)
}

func TestNewClientValidates(t *testing.T) {
	settings := DefaultClientSettings()
	settings.LoopQueueSize = 0
	_, err := NewClient(context.Background(), settings)
	assert.NotEqual(t, err, nil)
}
