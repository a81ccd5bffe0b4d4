package config

import "time"

type Config interface {
	APIConfig
	SessionConfig
	CacheConfig
	PagerConfig
	StorageConfig
	LogConfig
}

type APIConfig interface {
	GetBaseURL() string
	GetTimeout() time.Duration
	GetTokenExpiresIn() string
}

type SessionConfig interface {
	GetOTPLength() int
	GetOTPResendInterval() time.Duration
}

type CacheConfig interface {
	GetStaleTime() time.Duration
	GetRetryDelay() time.Duration
}

type PagerConfig interface {
	GetPageSize() int
	GetSearchDebounce() time.Duration
}

type StorageConfig interface {
	GetStorageDriver() string
	GetStoragePath() string
	GetStorageSecret() string
}

type LogConfig interface {
	GetLogLevel() string
}

// API holds the settings for the marketplace REST API.
type API struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	TokenExpiresIn string        `mapstructure:"token_expires_in" validate:"required"`
}

type Session struct {
	OTPLength         int           `mapstructure:"otp_length" validate:"min=4,max=8"`
	OTPResendInterval time.Duration `mapstructure:"otp_resend_interval" validate:"gt=0"`
}

type Cache struct {
	StaleTime  time.Duration `mapstructure:"stale_time" validate:"gte=0"`
	RetryDelay time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
}

type Pager struct {
	PageSize       int           `mapstructure:"page_size" validate:"min=1,max=100"`
	SearchDebounce time.Duration `mapstructure:"search_debounce" validate:"gte=0"`
}

// Storage selects where the token pair is persisted. An empty secret stores
// the pair unencrypted (file mode 0600).
type Storage struct {
	Driver string `mapstructure:"driver" validate:"oneof=file sqlite"`
	Path   string `mapstructure:"path" validate:"required"`
	Secret string `mapstructure:"secret"`
}

type Log struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type mainConfig struct {
	API     API     `mapstructure:"api"`
	Session Session `mapstructure:"session"`
	Cache   Cache   `mapstructure:"cache"`
	Pager   Pager   `mapstructure:"pager"`
	Storage Storage `mapstructure:"storage"`
	Log     Log     `mapstructure:"log"`
}

var _ Config = (*mainConfig)(nil)

func (c *mainConfig) GetBaseURL() string                  { return c.API.BaseURL }
func (c *mainConfig) GetTimeout() time.Duration           { return c.API.Timeout }
func (c *mainConfig) GetTokenExpiresIn() string           { return c.API.TokenExpiresIn }
func (c *mainConfig) GetOTPLength() int                   { return c.Session.OTPLength }
func (c *mainConfig) GetOTPResendInterval() time.Duration { return c.Session.OTPResendInterval }
func (c *mainConfig) GetStaleTime() time.Duration         { return c.Cache.StaleTime }
func (c *mainConfig) GetRetryDelay() time.Duration        { return c.Cache.RetryDelay }
func (c *mainConfig) GetPageSize() int                    { return c.Pager.PageSize }
func (c *mainConfig) GetSearchDebounce() time.Duration    { return c.Pager.SearchDebounce }
func (c *mainConfig) GetStorageDriver() string            { return c.Storage.Driver }
func (c *mainConfig) GetStoragePath() string              { return c.Storage.Path }
func (c *mainConfig) GetStorageSecret() string            { return c.Storage.Secret }
func (c *mainConfig) GetLogLevel() string                 { return c.Log.Level }
