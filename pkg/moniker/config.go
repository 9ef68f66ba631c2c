package moniker

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ClientConfig configures the moniker client.
//
// Precedence, lowest to highest: built-in defaults, ~/.moniker/client.yaml,
// .moniker.yaml in the working directory, an explicit config file, MONIKER_*
// environment variables, then functional options passed to NewClient.
type ClientConfig struct {
	// ServiceURL is the base URL of the resolution service.
	ServiceURL string `yaml:"service_url" env:"MONIKER_SERVICE_URL" validate:"omitempty,url"`

	// Identity headers attached to every resolver request.
	AppID string `yaml:"app_id" env:"MONIKER_APP_ID"`
	Team  string `yaml:"team" env:"MONIKER_TEAM"`

	// Timeout is the resolver request timeout in seconds.
	Timeout float64 `yaml:"timeout" env:"MONIKER_TIMEOUT" validate:"gte=0"`

	// ReportTelemetry controls access-telemetry reporting.
	ReportTelemetry bool `yaml:"report_telemetry" env:"MONIKER_REPORT_TELEMETRY"`

	// CacheTTL is the resolution cache lifetime in seconds; 0 disables
	// caching.
	CacheTTL float64 `yaml:"cache_ttl" env:"MONIKER_CACHE_TTL" validate:"gte=0"`

	// AuthMethod selects resolver authentication: "kerberos", "jwt", or
	// empty/"none" for unauthenticated requests.
	AuthMethod string `yaml:"auth_method" env:"MONIKER_AUTH_METHOD" validate:"omitempty,oneof=kerberos jwt none"`

	// KerberosServicePrincipal overrides the SPN derived from the
	// resolver host.
	KerberosServicePrincipal string `yaml:"kerberos_service_principal" env:"MONIKER_SERVICE_PRINCIPAL"`

	// JWT settings. JWTToken is never read from the environment directly;
	// JWTTokenEnv names the variable holding the token.
	JWTToken     string `yaml:"jwt_token" env:"-"`
	JWTTokenEnv  string `yaml:"jwt_token_env" env:"MONIKER_JWT_ENV"`
	JWTTokenFile string `yaml:"jwt_token_file" env:"MONIKER_JWT_FILE"`

	// Source credentials. These stay client-side; the resolver never sees
	// or supplies them.
	SnowflakeUser           string `yaml:"snowflake_user" env:"SNOWFLAKE_USER"`
	SnowflakePassword       string `yaml:"snowflake_password" env:"SNOWFLAKE_PASSWORD"`
	SnowflakePrivateKeyPath string `yaml:"snowflake_private_key_path" env:"SNOWFLAKE_PRIVATE_KEY_PATH"`
	SnowflakeAccount        string `yaml:"snowflake_account" env:"SNOWFLAKE_ACCOUNT"`
	SnowflakeWarehouse      string `yaml:"snowflake_warehouse" env:"SNOWFLAKE_WAREHOUSE"`
	SnowflakeDatabase       string `yaml:"snowflake_database" env:"SNOWFLAKE_DATABASE"`
	SnowflakeSchema         string `yaml:"snowflake_schema" env:"SNOWFLAKE_SCHEMA"`
	SnowflakeRole           string `yaml:"snowflake_role" env:"SNOWFLAKE_ROLE"`
	OracleUser              string `yaml:"oracle_user" env:"ORACLE_USER"`
	OraclePassword          string `yaml:"oracle_password" env:"ORACLE_PASSWORD"`
	MSSQLUser               string `yaml:"mssql_user" env:"MSSQL_USER"`
	MSSQLPassword           string `yaml:"mssql_password" env:"MSSQL_PASSWORD"`

	// Credentials holds additional credentials keyed "<source_type>_<key>".
	Credentials map[string]string `yaml:"credentials" env:"-"`

	// Deprecation awareness.
	DeprecationEnabled  bool                                  `yaml:"deprecation_enabled" env:"MONIKER_DEPRECATION_ENABLED"`
	WarnOnDeprecated    bool                                  `yaml:"warn_on_deprecated" env:"MONIKER_WARN_DEPRECATED"`
	DeprecationCallback func(path, message, successor string) `yaml:"-" env:"-"`

	// Adapter-local retry policy for sources that speak HTTP.
	RetryMaxAttempts   int     `yaml:"retry_max_attempts" env:"MONIKER_RETRY_MAX_ATTEMPTS" validate:"gte=0"`
	RetryBackoffFactor float64 `yaml:"retry_backoff_factor" env:"MONIKER_RETRY_BACKOFF_FACTOR" validate:"gte=0"`
	RetryStatusCodes   []int   `yaml:"retry_status_codes" env:"-"`
}

// configSearchPaths returns the discovery locations in merge order.
func configSearchPaths() []string {
	paths := make([]string, 0, 2)
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".moniker", "client.yaml"))
	}
	paths = append(paths, ".moniker.yaml")
	return paths
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		ServiceURL:         "http://localhost:8050",
		Timeout:            30,
		ReportTelemetry:    true,
		CacheTTL:           60,
		JWTTokenEnv:        "MONIKER_JWT",
		WarnOnDeprecated:   true,
		RetryMaxAttempts:   3,
		RetryBackoffFactor: 0.5,
		RetryStatusCodes:   []int{502, 503, 504},
		Credentials:        map[string]string{},
	}
}

// LoadConfig builds a ClientConfig from defaults, discovered YAML files, an
// optional explicit file, and MONIKER_* environment variables. A missing
// discovery file is skipped; a missing explicit file is an error.
func LoadConfig(configFile string) (ClientConfig, error) {
	cfg := DefaultConfig()

	for _, path := range configSearchPaths() {
		if err := mergeYAMLFile(&cfg, path, false); err != nil {
			return cfg, err
		}
	}
	if configFile != "" {
		if err := mergeYAMLFile(&cfg, configFile, true); err != nil {
			return cfg, err
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("op=config.LoadConfig: %w: %v", ErrConfiguration, err)
	}
	return cfg, nil
}

// mergeYAMLFile unmarshals path over cfg; keys absent from the file leave
// the current values untouched.
func mergeYAMLFile(cfg *ClientConfig, path string, required bool) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("op=config.mergeYAMLFile path=%s: %w: %v", path, ErrConfiguration, err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("op=config.mergeYAMLFile path=%s: %w: %v", path, ErrConfiguration, err)
	}
	return nil
}

var validate = validator.New()

// Validate checks the configuration against its struct constraints.
func (c *ClientConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("op=config.Validate: %w: %v", ErrConfiguration, err)
	}
	return nil
}

// RequestTimeout returns the resolver request timeout; zero means no limit.
func (c *ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout * float64(time.Second))
}

// ResolutionTTL returns the cache lifetime; non-positive disables caching.
func (c *ClientConfig) ResolutionTTL() time.Duration {
	return time.Duration(c.CacheTTL * float64(time.Second))
}

// Credential returns the credential for a source type and key. Typed fields
// are consulted first, then the Credentials map under "<source_type>_<key>".
// Empty means not configured.
func (c *ClientConfig) Credential(sourceType, key string) string {
	var typed string
	switch sourceType {
	case "snowflake":
		switch key {
		case "user":
			typed = c.SnowflakeUser
		case "password":
			typed = c.SnowflakePassword
		case "private_key_path":
			typed = c.SnowflakePrivateKeyPath
		case "account":
			typed = c.SnowflakeAccount
		case "warehouse":
			typed = c.SnowflakeWarehouse
		case "database":
			typed = c.SnowflakeDatabase
		case "schema":
			typed = c.SnowflakeSchema
		case "role":
			typed = c.SnowflakeRole
		}
	case "oracle":
		switch key {
		case "user":
			typed = c.OracleUser
		case "password":
			typed = c.OraclePassword
		}
	case "mssql":
		switch key {
		case "user":
			typed = c.MSSQLUser
		case "password":
			typed = c.MSSQLPassword
		}
	}
	if typed != "" {
		return typed
	}
	return c.Credentials[sourceType+"_"+key]
}

// Option adjusts a ClientConfig during client construction.
type Option func(*ClientConfig)

// WithServiceURL sets the resolution service base URL.
func WithServiceURL(u string) Option { return func(c *ClientConfig) { c.ServiceURL = u } }

// WithAppID sets the X-App-ID identity header value.
func WithAppID(id string) Option { return func(c *ClientConfig) { c.AppID = id } }

// WithTeam sets the X-Team identity header value.
func WithTeam(team string) Option { return func(c *ClientConfig) { c.Team = team } }

// WithTimeout sets the resolver request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *ClientConfig) { c.Timeout = d.Seconds() }
}

// WithCacheTTL sets the resolution cache lifetime; zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(c *ClientConfig) { c.CacheTTL = d.Seconds() }
}

// WithTelemetry toggles access-telemetry reporting.
func WithTelemetry(enabled bool) Option {
	return func(c *ClientConfig) { c.ReportTelemetry = enabled }
}

// WithAuthMethod selects the resolver authentication method.
func WithAuthMethod(method string) Option {
	return func(c *ClientConfig) { c.AuthMethod = method }
}

// WithJWTToken sets an explicit bearer token for resolver auth.
func WithJWTToken(token string) Option {
	return func(c *ClientConfig) {
		c.AuthMethod = "jwt"
		c.JWTToken = token
	}
}

// WithKerberosPrincipal sets the resolver SPN for SPNEGO auth.
func WithKerberosPrincipal(spn string) Option {
	return func(c *ClientConfig) { c.KerberosServicePrincipal = spn }
}

// WithCredential adds one credential under "<source_type>_<key>" naming.
func WithCredential(key, value string) Option {
	return func(c *ClientConfig) {
		if c.Credentials == nil {
			c.Credentials = map[string]string{}
		}
		c.Credentials[key] = value
	}
}

// WithDeprecationWarnings enables deprecation awareness and controls whether
// warnings are emitted on deprecated resolutions.
func WithDeprecationWarnings(enabled, warn bool) Option {
	return func(c *ClientConfig) {
		c.DeprecationEnabled = enabled
		c.WarnOnDeprecated = warn
	}
}

// WithDeprecationCallback installs a callback invoked on each deprecated
// resolution with the path, deprecation message, and successor.
func WithDeprecationCallback(fn func(path, message, successor string)) Option {
	return func(c *ClientConfig) { c.DeprecationCallback = fn }
}

// WithRetry sets the adapter-local retry policy.
func WithRetry(maxAttempts int, backoffFactor float64) Option {
	return func(c *ClientConfig) {
		c.RetryMaxAttempts = maxAttempts
		c.RetryBackoffFactor = backoffFactor
	}
}
