package config

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" validate:"required"`
	Storage StorageConfig `mapstructure:"storage" validate:"required"`
	Tasks   TasksConfig   `mapstructure:"tasks" validate:"required"`
	LLM     LLMConfig     `mapstructure:"llm"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// StorageConfig selects the durable snapshot store.
type StorageConfig struct {
	// Driver is one of memory, sqlite, redis, postgres. The memory driver
	// disables durability across restarts.
	Driver string `mapstructure:"driver" validate:"required,oneof=memory sqlite redis postgres"`

	// Path is the sqlite database file.
	Path string `mapstructure:"path" validate:"required_if=Driver sqlite"`

	RedisAddr     string `mapstructure:"redis_addr" validate:"required_if=Driver redis"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	PostgresURL string `mapstructure:"postgres_url" validate:"required_if=Driver postgres"`

	// SnapshotKey is the KV key task snapshots are written under.
	SnapshotKey string `mapstructure:"snapshot_key"`
}

// TasksConfig tunes the task core's policy knobs.
type TasksConfig struct {
	// RetainFinished caps how many terminal task records are kept.
	RetainFinished int `mapstructure:"retain_finished" validate:"gte=0"`

	// DebounceMs is the snapshot write debounce window in milliseconds.
	DebounceMs int `mapstructure:"debounce_ms" validate:"gte=0"`

	// Snapshot write retry policy.
	PersistMaxAttempts  int `mapstructure:"persist_max_attempts" validate:"gte=0"`
	PersistInitialDelay int `mapstructure:"persist_initial_delay_ms" validate:"gte=0"`
	PersistMaxDelay     int `mapstructure:"persist_max_delay_ms" validate:"gte=0"`
}

// LLMConfig configures the Gemini analyzer. An empty API key disables the
// in-process analyze executor; analyze tasks then wait for an executor to be
// attached by other means.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	Model        string `mapstructure:"model"`

	// Analyzer call retry policy.
	MaxAttempts    int `mapstructure:"max_attempts" validate:"gte=0"`
	InitialDelayMs int `mapstructure:"initial_delay_ms" validate:"gte=0"`
	MaxDelayMs     int `mapstructure:"max_delay_ms" validate:"gte=0"`
}
