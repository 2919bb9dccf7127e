package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for winmaxreturn.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Launcher  LauncherConfig  `mapstructure:"launcher"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool   `mapstructure:"otlp_insecure"`
	ServiceName  string `mapstructure:"service_name"`
	LogLevel     string `mapstructure:"log_level"`
}

// LauncherConfig drives the startup sequence. EntryAsset is required at
// launch (missing ⇒ the sequence aborts and the process exits 1);
// DataFile is a convenience default and only warns when absent.
type LauncherConfig struct {
	EntryAsset   string `mapstructure:"entry_asset"`
	DataFile     string `mapstructure:"data_file"`
	SkipSelfTest bool   `mapstructure:"skip_selftest"`
}

// AnalysisConfig carries the return-rule constants. Defaults match the
// production rule set: returns are shipped to D001, RF transfers move at
// least 2 units and must leave 20% of safety stock behind, and sites in
// the top 20% of sales for an article never return RF stock.
type AnalysisConfig struct {
	ReceiveSite     string  `mapstructure:"receive_site"`
	MinTransferQty  int     `mapstructure:"min_transfer_qty"`
	SafetyFloorPct  float64 `mapstructure:"safety_floor_pct"`
	TopSellerPctile float64 `mapstructure:"top_seller_pctile"`
	SalesCap        int     `mapstructure:"sales_cap"`
}

type ArchiveConfig struct {
	Dir      string `mapstructure:"dir"`
	Disabled bool   `mapstructure:"disabled"`
}

// CacheConfig configures the optional Redis result cache. The cache is
// disabled entirely when Addr is empty.
type CacheConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// FetchConfig configures the optional remote dataset download attempted
// when the default data file is missing. Disabled when URL is empty.
type FetchConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Load reads config from the optional YAML file at path, then overlays
// environment variables with the WINMAX_ prefix (e.g. WINMAX_SERVER_PORT).
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("WINMAX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8501)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.otlp_insecure", true)
	v.SetDefault("telemetry.service_name", "winmaxreturn")
	v.SetDefault("telemetry.log_level", "info")

	v.SetDefault("launcher.entry_asset", "web/index.html")
	v.SetDefault("launcher.data_file", "data/ELE_15Sep2025.xlsx")
	v.SetDefault("launcher.skip_selftest", false)

	v.SetDefault("analysis.receive_site", "D001")
	v.SetDefault("analysis.min_transfer_qty", 2)
	v.SetDefault("analysis.safety_floor_pct", 0.2)
	v.SetDefault("analysis.top_seller_pctile", 80)
	v.SetDefault("analysis.sales_cap", 100000)

	v.SetDefault("archive.dir", "data")
	v.SetDefault("archive.disabled", false)

	v.SetDefault("cache.addr", "")
	v.SetDefault("cache.db", 0)
	v.SetDefault("cache.ttl", 6*time.Hour)

	v.SetDefault("fetch.url", "")
	v.SetDefault("fetch.timeout", 30*time.Second)
}
