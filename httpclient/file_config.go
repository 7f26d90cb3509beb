package httpclient

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML form of a client configuration.
//
//	base_url: https://api.example.com
//	service_name: order-service
//	preset: low_latency
//	timeout: 5s
//	attempt_timeout: 2s
//	logging: true
//	headers:
//	  Accept: application/json
//	retry:
//	  preset: default
//	  max_retries: 4
//	rate_limit:
//	  requests_per_second: 50
//	  burst: 5
//	  wait: true
//	breaker:
//	  timeout: 30s
//	  consecutive_failures: 5
type FileConfig struct {
	BaseURL        string            `yaml:"base_url"`
	ServiceName    string            `yaml:"service_name"`
	Preset         string            `yaml:"preset"`
	Timeout        time.Duration     `yaml:"timeout"`
	AttemptTimeout time.Duration     `yaml:"attempt_timeout"`
	Logging        bool              `yaml:"logging"`
	Headers        map[string]string `yaml:"headers"`
	DownloadDir    string            `yaml:"download_dir"`
	BufferSize     int               `yaml:"buffer_size"`

	Retry     *FileRetryConfig     `yaml:"retry"`
	RateLimit *FileRateLimitConfig `yaml:"rate_limit"`
	Breaker   *FileBreakerConfig   `yaml:"breaker"`
}

// FileRetryConfig starts from a RetryConfig preset and overrides the
// fields that are set.
type FileRetryConfig struct {
	Preset          string        `yaml:"preset"`
	MaxRetries      *int          `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
	JitterFactor    *float64      `yaml:"jitter_factor"`
}

// FileRateLimitConfig is the YAML form of RateLimitConfig.
type FileRateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	Wait              bool    `yaml:"wait"`
	PerHost           bool    `yaml:"per_host"`
}

// FileBreakerConfig overrides DefaultBreakerConfig.
type FileBreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	FailureThreshold    uint32        `yaml:"failure_threshold"`
	FailureRatio        float64       `yaml:"failure_ratio"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
}

// LoadConfig decodes a FileConfig. Unknown fields are rejected.
func LoadConfig(r io.Reader) (*FileConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var fc FileConfig
	if err := dec.Decode(&fc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode client config: %w", err)
	}
	return &fc, nil
}

// LoadConfigFile reads a FileConfig from path.
func LoadConfigFile(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadConfig(f)
}

// Options converts the file configuration into client options.
func (fc *FileConfig) Options() ([]Option, error) {
	var opts []Option

	if fc.Preset != "" || fc.Timeout > 0 {
		cfg, err := configPreset(fc.Preset)
		if err != nil {
			return nil, err
		}
		if fc.Timeout > 0 {
			cfg.Timeout = fc.Timeout
		}
		opts = append(opts, WithConfig(cfg))
	}

	if fc.BaseURL != "" {
		opts = append(opts, WithBaseURL(fc.BaseURL))
	}
	if fc.ServiceName != "" {
		opts = append(opts, WithServiceName(fc.ServiceName))
	}
	if fc.AttemptTimeout > 0 {
		opts = append(opts, WithAttemptTimeout(fc.AttemptTimeout))
	}
	if fc.Logging {
		opts = append(opts, WithLogging(true))
	}
	if len(fc.Headers) > 0 {
		h := make(http.Header, len(fc.Headers))
		for k, v := range fc.Headers {
			h.Set(k, v)
		}
		opts = append(opts, WithDefaultHeaders(h))
	}
	if fc.DownloadDir != "" {
		opts = append(opts, WithDownloadDir(fc.DownloadDir))
	}
	if fc.BufferSize > 0 {
		opts = append(opts, WithBufferSize(fc.BufferSize))
	}

	if fc.Retry != nil {
		rc, err := fc.Retry.config()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithRetryConfig(rc))
	}
	if rl := fc.RateLimit; rl != nil {
		opts = append(opts, WithRateLimit(RateLimitConfig{
			RequestsPerSecond: rl.RequestsPerSecond,
			Burst:             rl.Burst,
			WaitOnLimit:       rl.Wait,
			PerHost:           rl.PerHost,
		}))
	}
	if fc.Breaker != nil {
		opts = append(opts, WithBreakerConfig(fc.Breaker.config()))
	}
	return opts, nil
}

func configPreset(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "high_throughput":
		return HighThroughputConfig(), nil
	case "low_latency":
		return LowLatencyConfig(), nil
	case "conservative":
		return ConservativeConfig(), nil
	default:
		return Config{}, fmt.Errorf("httpclient: unknown config preset %q", name)
	}
}

func (f *FileRetryConfig) config() (RetryConfig, error) {
	var rc RetryConfig
	switch f.Preset {
	case "", "default":
		rc = DefaultRetryConfig()
	case "aggressive":
		rc = AggressiveRetryConfig()
	case "conservative":
		rc = ConservativeRetryConfig()
	case "none":
		rc = NoRetryConfig()
	default:
		return RetryConfig{}, fmt.Errorf("httpclient: unknown retry preset %q", f.Preset)
	}

	if f.MaxRetries != nil {
		rc.MaxRetries = *f.MaxRetries
	}
	if f.InitialInterval > 0 {
		rc.InitialInterval = f.InitialInterval
	}
	if f.MaxInterval > 0 {
		rc.MaxInterval = f.MaxInterval
	}
	if f.Multiplier > 0 {
		rc.Multiplier = f.Multiplier
	}
	if f.JitterFactor != nil {
		rc.JitterFactor = *f.JitterFactor
	}
	return rc, nil
}

func (f *FileBreakerConfig) config() BreakerConfig {
	bc := DefaultBreakerConfig()
	if f.MaxRequests > 0 {
		bc.MaxRequests = f.MaxRequests
	}
	if f.Interval > 0 {
		bc.Interval = f.Interval
	}
	if f.Timeout > 0 {
		bc.Timeout = f.Timeout
	}
	if f.FailureThreshold > 0 {
		bc.FailureThreshold = f.FailureThreshold
	}
	if f.FailureRatio > 0 {
		bc.FailureRatio = f.FailureRatio
	}
	if f.ConsecutiveFailures > 0 {
		bc.ConsecutiveFailures = f.ConsecutiveFailures
	}
	return bc
}
