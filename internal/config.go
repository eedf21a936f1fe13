package internal

import "time"

// Config is the relay's environment surface, loaded with go-env. Every
// knob has a default so a bare `go run ./cmd/relay` starts a working
// coordinator.
type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	// BufferSize is the router mailbox capacity; a full mailbox drops
	// advisory commands but never lifecycle ones.
	BufferSize           int   `env:"BUFFER_SIZE,default=1024"`
	ConnectionBufferSize int   `env:"CONNECTION_BUFFER_SIZE,default=64"`
	MaxMessageSize       int64 `env:"MAX_MESSAGE_SIZE,default=65536"`

	TypingWindow  time.Duration `env:"TYPING_WINDOW,default=5s"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL,default=1s"`

	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	// AuthSecret enables handshake token verification when set.
	AuthSecret string `env:"AUTH_SECRET"`

	// PersistenceBaseURL locates the external Message Delivery API. Only
	// needed by the relay itself when REQUIRE_ROOM_VALIDATION is on.
	PersistenceBaseURL    string        `env:"PERSISTENCE_BASE_URL"`
	PersistenceToken      string        `env:"PERSISTENCE_TOKEN"`
	PersistenceTimeout    time.Duration `env:"PERSISTENCE_TIMEOUT,default=5s"`
	RequireRoomValidation bool          `env:"REQUIRE_ROOM_VALIDATION,default=false"`
}
