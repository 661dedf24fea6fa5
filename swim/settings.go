package swim

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linkwire/swim/value"
)

type ClientSettings struct {
	// websocket sub-protocols offered on dial
	Protocols []string
	// upper bound of the reconnect backoff
	MaxReconnectTimeout time.Duration
	// a connected channel with no downlinks and no buffered sends closes after this timeout
	IdleTimeout time.Duration
	// envelopes buffered while disconnected. Additional sends are dropped.
	SendBufferSize int
	// outbound throttle of the long poll transport
	SendDelay time.Duration
	// always use the long poll transport
	NoWebSocket bool
	// sent in an auth request whenever a channel connects
	Credentials value.Value

	UriCacheSize        int
	LoopQueueSize       int
	TransportBufferSize int

	HttpConnectTimeout time.Duration
	WsHandshakeTimeout time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration

	// nil uses the websocket or long poll transport based on the host uri
	TransportDialer TransportDialer
}

func DefaultClientSettings() *ClientSettings {
	return &ClientSettings{
		Protocols:           []string{},
		MaxReconnectTimeout: 30 * time.Second,
		IdleTimeout:         1 * time.Second,
		SendBufferSize:      1024,
		SendDelay:           100 * time.Millisecond,
		NoWebSocket:         false,
		UriCacheSize:        DefaultUriCacheSize,
		LoopQueueSize:       1024,
		TransportBufferSize: 32,
		HttpConnectTimeout:  5 * time.Second,
		WsHandshakeTimeout:  5 * time.Second,
		PingTimeout:         10 * time.Second,
		WriteTimeout:        5 * time.Second,
		ReadTimeout:         30 * time.Second,
	}
}

func (self *ClientSettings) Validate() error {
	positiveDurations := []struct {
		name  string
		value time.Duration
	}{
		{"MaxReconnectTimeout", self.MaxReconnectTimeout},
		{"IdleTimeout", self.IdleTimeout},
		{"SendDelay", self.SendDelay},
		{"HttpConnectTimeout", self.HttpConnectTimeout},
		{"WsHandshakeTimeout", self.WsHandshakeTimeout},
		{"PingTimeout", self.PingTimeout},
		{"WriteTimeout", self.WriteTimeout},
		{"ReadTimeout", self.ReadTimeout},
	}
	for _, d := range positiveDurations {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive (%s)", d.name, d.value)
		}
	}
	if self.SendBufferSize < 0 {
		return fmt.Errorf("SendBufferSize must not be negative (%d)", self.SendBufferSize)
	}
	if self.UriCacheSize <= 0 {
		return fmt.Errorf("UriCacheSize must be positive (%d)", self.UriCacheSize)
	}
	if self.LoopQueueSize <= 0 {
		return fmt.Errorf("LoopQueueSize must be positive (%d)", self.LoopQueueSize)
	}
	if self.TransportBufferSize <= 0 {
		return fmt.Errorf("TransportBufferSize must be positive (%d)", self.TransportBufferSize)
	}
	return nil
}

// yaml form of the settings. Durations are integer milliseconds.
//
//     protocols: [warp0]
//     max_reconnect_timeout: 30000
//     idle_timeout: 1000
//     send_buffer_size: 1024
//     send_delay: 100
//     no_web_socket: false
//     credentials:
//       jwt: ...
type clientSettingsConfig struct {
	Protocols           []string       `yaml:"protocols"`
	MaxReconnectTimeout *int64         `yaml:"max_reconnect_timeout"`
	IdleTimeout         *int64         `yaml:"idle_timeout"`
	SendBufferSize      *int           `yaml:"send_buffer_size"`
	SendDelay           *int64         `yaml:"send_delay"`
	NoWebSocket         *bool          `yaml:"no_web_socket"`
	Credentials         map[string]any `yaml:"credentials"`
	PingTimeout         *int64         `yaml:"ping_timeout"`
	ReadTimeout         *int64         `yaml:"read_timeout"`
	WriteTimeout        *int64         `yaml:"write_timeout"`
}

// LoadClientSettings reads a yaml config file over the default settings.
func LoadClientSettings(path string) (*ClientSettings, error) {
	configBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	settings := DefaultClientSettings()
	if err := ApplyClientSettingsYaml(settings, configBytes); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return settings, nil
}

func ApplyClientSettingsYaml(settings *ClientSettings, configBytes []byte) error {
	var config clientSettingsConfig
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		return err
	}

	millis := func(ms *int64, d *time.Duration) {
		if ms != nil {
			*d = time.Duration(*ms) * time.Millisecond
		}
	}

	if config.Protocols != nil {
		settings.Protocols = config.Protocols
	}
	millis(config.MaxReconnectTimeout, &settings.MaxReconnectTimeout)
	millis(config.IdleTimeout, &settings.IdleTimeout)
	millis(config.SendDelay, &settings.SendDelay)
	millis(config.PingTimeout, &settings.PingTimeout)
	millis(config.ReadTimeout, &settings.ReadTimeout)
	millis(config.WriteTimeout, &settings.WriteTimeout)
	if config.SendBufferSize != nil {
		settings.SendBufferSize = *config.SendBufferSize
	}
	if config.NoWebSocket != nil {
		settings.NoWebSocket = *config.NoWebSocket
	}
	if config.Credentials != nil {
		credentials, err := value.Of(config.Credentials)
		if err != nil {
			return fmt.Errorf("credentials: %w", err)
		}
		settings.Credentials = credentials
	}
	return settings.Validate()
}
