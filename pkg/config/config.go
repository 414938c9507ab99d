package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Mode        string `yaml:"mode"` // trader, collector, archiver
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Archive struct {
		Backend      string        `yaml:"backend"` // kafka, clickhouse, both
		BatchSize    int           `yaml:"batch_size"`
		BatchTimeout time.Duration `yaml:"batch_timeout"`
		MaxRPS       int           `yaml:"max_rps"`
		BufferSize   int           `yaml:"buffer_size"`
	} `yaml:"archive"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		TicksTopic   string   `yaml:"ticks_topic"`
		EventsTopic  string   `yaml:"events_topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		TradesTable      string        `yaml:"trades_table"`
		BarsTable        string        `yaml:"bars_table"`
		TicksTable       string        `yaml:"ticks_table"`
	} `yaml:"clickhouse"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Queue    struct {
			Workers    int           `yaml:"workers"`
			QueueSize  int           `yaml:"queue_size"`
			RetryLimit int           `yaml:"retry_limit"`
			RetryDelay time.Duration `yaml:"retry_delay"`
			KeyPrefix  string        `yaml:"key_prefix"`
		} `yaml:"queue"`
	} `yaml:"redis"`
	Venue struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		RestURL        string        `yaml:"rest_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		Timeout        time.Duration `yaml:"timeout"`
		Paper          bool          `yaml:"paper"`
		PaperBalance   float64       `yaml:"paper_balance"`
		PaperSlippage  float64       `yaml:"paper_slippage"`
	} `yaml:"venue"`
	Predictor struct {
		Enabled  bool          `yaml:"enabled"`
		URL      string        `yaml:"url"`
		Timeout  time.Duration `yaml:"timeout"`
		Attempts int           `yaml:"attempts"`
	} `yaml:"predictor"`
	Trading struct {
		BotID  string `yaml:"bot_id"`
		Symbol string `yaml:"symbol"`

		Features struct {
			MinRecords     int `yaml:"min_records"`
			EMAFastPeriod  int `yaml:"ema_fast_period"`
			EMASlowPeriod  int `yaml:"ema_slow_period"`
			RSIPeriod      int `yaml:"rsi_period"`
			ATRPeriod      int `yaml:"atr_period"`
			MomentumPeriod int `yaml:"momentum_period"`
		} `yaml:"features"`

		Signal struct {
			MaxSpread        float64 `yaml:"max_spread"`
			DeltaThreshold   float64 `yaml:"delta_threshold"`
			DeltaWeight      float64 `yaml:"delta_weight"`
			VelocityWeight   float64 `yaml:"velocity_weight"`
			VelocityRef      float64 `yaml:"velocity_ref"`
			VolatilityCap    float64 `yaml:"volatility_cap"`
			MinStrength      float64 `yaml:"min_strength"`
			RSIOverbought    float64 `yaml:"rsi_overbought"`
			RSIOversold      float64 `yaml:"rsi_oversold"`
			SLVolatilityMult float64 `yaml:"sl_volatility_mult"`
			TPMode           string  `yaml:"tp_mode"` // rr, currency
			TPRiskReward     float64 `yaml:"tp_risk_reward"`
			TPCurrency       float64 `yaml:"tp_currency"`
		} `yaml:"signal"`

		Risk struct {
			DailyLossLimit    float64 `yaml:"daily_loss_limit"`
			DailyTradeLimit   int     `yaml:"daily_trade_limit"`
			DailyVolumeLimit  float64 `yaml:"daily_volume_limit"`
			MaxOpenPositions  int     `yaml:"max_open_positions"`
			MinVolume         float64 `yaml:"min_volume"`
			MaxVolume         float64 `yaml:"max_volume"`
			FloatingLossLimit float64 `yaml:"floating_loss_limit"`
			DrawdownLimit     float64 `yaml:"drawdown_limit"`
			DailyProfitTarget float64 `yaml:"daily_profit_target"`
			RiskFraction      float64 `yaml:"risk_fraction"`
			MaxPositionSize   float64 `yaml:"max_position_size"`
			Timezone          string  `yaml:"timezone"`
		} `yaml:"risk"`

		Exec struct {
			Cooldown             time.Duration `yaml:"cooldown"`
			FloatingLossLimit    float64       `yaml:"floating_loss_limit"`
			FloatingProfitTarget float64       `yaml:"floating_profit_target"`
			MaxTradeDuration     time.Duration `yaml:"max_trade_duration"`
			SessionEndHour       int           `yaml:"session_end_hour"`
		} `yaml:"exec"`

		Engine struct {
			WindowSize        int           `yaml:"window_size"`
			DecisionInterval  time.Duration `yaml:"decision_interval"`
			QueueSize         int           `yaml:"queue_size"`
			ManageInterval    time.Duration `yaml:"manage_interval"`
			ReconcileInterval time.Duration `yaml:"reconcile_interval"`
			ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
		} `yaml:"engine"`
	} `yaml:"trading"`
	Backtest struct {
		WarmupBars int `yaml:"warmup_bars"`
	} `yaml:"backtest"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("VENUE_API_KEY"); v != "" {
		c.Venue.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Venue.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("PREDICTOR_URL"); v != "" {
		c.Predictor.URL = v
	}

	return c, nil
}

// Validate checks the configuration and names the failing parameter.
// A config the bot cannot trade safely with refuses startup.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Mode {
	case "trader", "collector", "archiver":
	case "":
		return fmt.Errorf("mode is required")
	default:
		return fmt.Errorf("mode must be 'trader', 'collector' or 'archiver', got '%s'", c.Mode)
	}

	if c.Mode == "collector" || c.Mode == "archiver" {
		switch c.Archive.Backend {
		case "kafka", "clickhouse", "both":
		default:
			return fmt.Errorf("archive.backend must be 'kafka', 'clickhouse' or 'both', got '%s'", c.Archive.Backend)
		}
	}
	if c.Mode != "archiver" {
		if len(c.Venue.Symbols) == 0 {
			return fmt.Errorf("venue.symbols cannot be empty")
		}
		if !c.Venue.Paper && c.Venue.APIKey == "" {
			return fmt.Errorf("venue.api_key is required")
		}
	}

	if c.Mode == "trader" {
		t := &c.Trading
		if t.Symbol == "" {
			return fmt.Errorf("trading.symbol is required")
		}
		f := t.Features
		if f.EMAFastPeriod > 0 && f.EMASlowPeriod > 0 && f.EMAFastPeriod >= f.EMASlowPeriod {
			return fmt.Errorf("trading.features.ema_fast_period (%d) must be below ema_slow_period (%d)",
				f.EMAFastPeriod, f.EMASlowPeriod)
		}
		s := t.Signal
		if s.MaxSpread < 0 {
			return fmt.Errorf("trading.signal.max_spread cannot be negative")
		}
		if s.MinStrength < 0 || s.MinStrength > 1 {
			return fmt.Errorf("trading.signal.min_strength must be in [0, 1], got %v", s.MinStrength)
		}
		if s.RSIOverbought > 0 && s.RSIOversold > 0 && s.RSIOversold >= s.RSIOverbought {
			return fmt.Errorf("trading.signal.rsi_oversold (%v) must be below rsi_overbought (%v)",
				s.RSIOversold, s.RSIOverbought)
		}
		if s.TPMode != "" && s.TPMode != "rr" && s.TPMode != "currency" {
			return fmt.Errorf("trading.signal.tp_mode must be 'rr' or 'currency', got '%s'", s.TPMode)
		}
		r := t.Risk
		if r.RiskFraction < 0 || r.RiskFraction > 0.1 {
			return fmt.Errorf("trading.risk.risk_fraction must be in [0, 0.1], got %v", r.RiskFraction)
		}
		if r.MinVolume > 0 && r.MaxVolume > 0 && r.MinVolume > r.MaxVolume {
			return fmt.Errorf("trading.risk.min_volume (%v) exceeds max_volume (%v)", r.MinVolume, r.MaxVolume)
		}
		if r.Timezone != "" {
			if _, err := time.LoadLocation(r.Timezone); err != nil {
				return fmt.Errorf("trading.risk.timezone: %w", err)
			}
		}
		if t.Exec.SessionEndHour < 0 || t.Exec.SessionEndHour > 23 {
			return fmt.Errorf("trading.exec.session_end_hour must be in [0, 23], got %d", t.Exec.SessionEndHour)
		}
		if c.Predictor.Enabled && c.Predictor.URL == "" {
			return fmt.Errorf("predictor.url is required when predictor.enabled")
		}
	}
	return nil
}
