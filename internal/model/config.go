package model

import "time"

// Config holds the complete verity configuration
type Config struct {
	Backend      string             `yaml:"backend" mapstructure:"backend"` // remote or local
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	Local        LocalConfig        `yaml:"local" mapstructure:"local"`
	Search       SearchConfig       `yaml:"search" mapstructure:"search"`
	Cache        CacheConfig        `yaml:"cache" mapstructure:"cache"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency" mapstructure:"concurrency"`
	RateLimiting RateLimitConfig    `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	Subjectivity SubjectivityConfig `yaml:"subjectivity" mapstructure:"subjectivity"`
	Verify       VerifyConfig       `yaml:"verify" mapstructure:"verify"`
	Authority    AuthorityConfig    `yaml:"authority" mapstructure:"authority"`
	Output       OutputConfig       `yaml:"output" mapstructure:"output"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" mapstructure:"telemetry"`
}

// LLMConfig configures the remote generation backend
type LLMConfig struct {
	Provider string        `yaml:"provider" mapstructure:"provider"` // openai, anthropic
	Model    string        `yaml:"model" mapstructure:"model"`
	APIKey   string        `yaml:"-" mapstructure:"api_key"` // Never rendered; use env vars
	BaseURL  string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`

	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"` // Comma-separated hosts that bypass the proxy
}

// LocalConfig configures the locally hosted model
type LocalConfig struct {
	ModelDir      string        `yaml:"model_dir" mapstructure:"model_dir"`           // On-disk model artifacts
	RequiredFiles []string      `yaml:"required_files" mapstructure:"required_files"` // Must exist in ModelDir
	Model         string        `yaml:"model" mapstructure:"model"`                   // Name served by the inference engine
	BaseURL       string        `yaml:"base_url" mapstructure:"base_url"`             // Ollama endpoint
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	ChatTemplate  string        `yaml:"chat_template,omitempty" mapstructure:"chat_template"` // Go text/template; empty uses the Mistral default
}

// SearchConfig configures evidence retrieval
type SearchConfig struct {
	APIKey            string        `yaml:"-" mapstructure:"api_key"`
	BaseURL           string        `yaml:"base_url" mapstructure:"base_url"`
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxResults        int           `yaml:"max_results" mapstructure:"max_results"`
	Depth             string        `yaml:"depth" mapstructure:"depth"` // basic or advanced
	Topic             string        `yaml:"topic" mapstructure:"topic"`
	TimeRange         string        `yaml:"time_range,omitempty" mapstructure:"time_range"` // day, week, month, year
	StartDate         string        `yaml:"start_date,omitempty" mapstructure:"start_date"` // YYYY-MM-DD
	EndDate           string        `yaml:"end_date,omitempty" mapstructure:"end_date"`
	IncludeDomains    []string      `yaml:"include_domains,omitempty" mapstructure:"include_domains"`
	ExcludeDomains    []string      `yaml:"exclude_domains,omitempty" mapstructure:"exclude_domains"`
	Country           string        `yaml:"country,omitempty" mapstructure:"country"`
	IncludeAnswer     bool          `yaml:"include_answer" mapstructure:"include_answer"`
	IncludeRawContent bool          `yaml:"include_raw_content" mapstructure:"include_raw_content"`

	HTTPProxy  string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy    string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig configures the search response cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// ConcurrencyConfig configures batch parallelism
type ConcurrencyConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"` // Statements verified in parallel
}

// RateLimitConfig limits outbound search requests per endpoint host
type RateLimitConfig struct {
	RequestsPerSecond float64          `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int              `yaml:"burst_size" mapstructure:"burst_size"`
	Hosts             []HostRateConfig `yaml:"hosts,omitempty" mapstructure:"hosts"` // Per-host overrides
}

// HostRateConfig overrides the default rate for one endpoint host
type HostRateConfig struct {
	Host              string  `yaml:"host" mapstructure:"host"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size,omitempty" mapstructure:"burst_size"`
}

// SubjectivityConfig points at an optional lexicon override
type SubjectivityConfig struct {
	LexiconFile string `yaml:"lexicon_file,omitempty" mapstructure:"lexicon_file"`
}

// VerifyConfig tunes the verification pipeline
type VerifyConfig struct {
	// EmptyDecomposition decides what happens when no questions are produced:
	// "factual" (vacuous truth) or "error"
	EmptyDecomposition string `yaml:"empty_decomposition" mapstructure:"empty_decomposition"`

	DecomposeTemperature      float32 `yaml:"decompose_temperature" mapstructure:"decompose_temperature"`
	LocalDecomposeTemperature float32 `yaml:"local_decompose_temperature" mapstructure:"local_decompose_temperature"`
	DecomposeMaxTokens        int     `yaml:"decompose_max_tokens" mapstructure:"decompose_max_tokens"`
	DecomposeTopP             float32 `yaml:"decompose_top_p" mapstructure:"decompose_top_p"`
	DecomposeRepeatPenalty    float32 `yaml:"decompose_repeat_penalty" mapstructure:"decompose_repeat_penalty"`
	JudgeTemperature          float32 `yaml:"judge_temperature" mapstructure:"judge_temperature"`
	JudgeMaxTokens            int     `yaml:"judge_max_tokens" mapstructure:"judge_max_tokens"`
}

// AuthorityConfig drives evidence source ranking
type AuthorityConfig struct {
	PrimaryDomains   []string          `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string          `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	DomainMap        map[string]string `yaml:"domain_map,omitempty" mapstructure:"domain_map"` // host -> tier name
	PathPatterns     []PathPattern     `yaml:"path_patterns,omitempty" mapstructure:"path_patterns"`
}

// PathPattern assigns a tier to URLs whose path matches Pattern
type PathPattern struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Tier    string `yaml:"tier" mapstructure:"tier"`
}

// OutputConfig controls console output
type OutputConfig struct {
	Verbose bool `yaml:"verbose" mapstructure:"verbose"`
	LogJSON bool `yaml:"log_json" mapstructure:"log_json"`
}

// TelemetryConfig controls metric and trace export
type TelemetryConfig struct {
	MetricsFile string `yaml:"metrics_file,omitempty" mapstructure:"metrics_file"` // Prometheus textfile
	TraceFile   string `yaml:"trace_file,omitempty" mapstructure:"trace_file"`     // stdout-exporter JSON spans
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: string(BackendRemote),
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
			Timeout:  60 * time.Second,
		},
		Local: LocalConfig{
			ModelDir:      "models/Mistral-7B-Instruct-v0.3",
			RequiredFiles: []string{"config.json", "tokenizer.json"},
			Model:         "mistral:7b-instruct-v0.3",
			BaseURL:       "http://localhost:11434",
			Timeout:       5 * time.Minute,
		},
		Search: SearchConfig{
			BaseURL:       "https://api.tavily.com",
			Timeout:       30 * time.Second,
			MaxResults:    5,
			Depth:         "basic",
			Topic:         "general",
			IncludeAnswer: true,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".verity-cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			Workers: 4,
		},
		RateLimiting: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         4,
		},
		Verify: VerifyConfig{
			EmptyDecomposition:        "factual",
			DecomposeTemperature:      0.3,
			LocalDecomposeTemperature: 0.7,
			DecomposeMaxTokens:        300,
			DecomposeTopP:             0.9,
			DecomposeRepeatPenalty:    1.1,
			JudgeTemperature:          0,
			JudgeMaxTokens:            50,
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"gov", "gov.uk", "europa.eu", "un.org", "who.int",
				"nasa.gov", "nih.gov", "legislation.gov.uk",
			},
			SecondaryDomains: []string{
				"wikipedia.org", "britannica.com", "reuters.com", "apnews.com",
				"bbc.co.uk", "bbc.com", "nature.com", "sciencedirect.com",
			},
			PathPatterns: []PathPattern{
				{Pattern: `^/(doi|abs|pdf)/`, Tier: "primary"},
			},
		},
	}
}
