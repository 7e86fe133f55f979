package domain

// ConfigManager is the read side of the configuration layer used by the
// binaries when wiring stores.
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	// GetDatabaseURL returns the postgres:// form accepted by golang-migrate
	// and lib/pq.
	GetDatabaseURL() string
	Validate() error
	IsProduction() bool
}
