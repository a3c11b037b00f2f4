package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/prite36/floraseven/internal/health"
)

type ServerConfig struct {
	Addr        string
	UploadDir   string
	MaxUploadMB int
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Path     string
}

type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      int
}

type NodesConfig struct {
	PlantNodeID string
	HubNodeID   string
}

type ClassifierConfig struct {
	Backend      string
	URL          string
	Timeout      int
	GeminiAPIKey string
	GeminiModel  string
}

type ScheduleConfig struct {
	Timezone      string
	CaptureTimes  string
	HealthCheck   string
	PruneTime     string
	RetentionDays int
}

type SlackConfig struct {
	BotToken      string
	ChannelID     string
	SigningSecret string
	AlertCooldown int
}

type AuthConfig struct {
	Enabled      bool
	APIKey       string
	Username     string
	PasswordHash string
}

type WateringConfig struct {
	DefaultSeconds     int
	MaxSeconds         int
	MinIntervalSeconds int
}

type Config struct {
	Environment    string
	Server         ServerConfig
	Database       DatabaseConfig
	MQTT           MQTTConfig
	Nodes          NodesConfig
	Classifier     ClassifierConfig
	Schedule       ScheduleConfig
	Slack          SlackConfig
	Auth           AuthConfig
	Watering       WateringConfig
	ThresholdsPath string

	// Thresholds are the first-boot defaults after config overrides.
	Thresholds map[health.Parameter]health.Threshold `mapstructure:"-"`
}

// bindings maps viper keys to the environment variables that set them.
var bindings = [][2]string{
	{"environment", "APP_ENV"},

	{"server.addr", "SERVER_ADDR"},
	{"server.uploaddir", "UPLOAD_DIR"},
	{"server.maxuploadmb", "MAX_UPLOAD_MB"},

	{"database.driver", "DB_DRIVER"},
	{"database.host", "DB_HOST"},
	{"database.port", "DB_PORT"},
	{"database.user", "DB_USER"},
	{"database.password", "DB_PASSWORD"},
	{"database.dbname", "DB_NAME"},
	{"database.sslmode", "DB_SSLMODE"},
	{"database.path", "DB_PATH"},

	{"mqtt.broker", "MQTT_BROKER"},
	{"mqtt.clientid", "MQTT_CLIENT_ID"},
	{"mqtt.username", "MQTT_USERNAME"},
	{"mqtt.password", "MQTT_PASSWORD"},
	{"mqtt.qos", "MQTT_QOS"},

	{"nodes.plantnodeid", "PLANT_NODE_ID"},
	{"nodes.hubnodeid", "HUB_NODE_ID"},

	{"classifier.backend", "CLASSIFIER_BACKEND"},
	{"classifier.url", "CLASSIFIER_URL"},
	{"classifier.timeout", "CLASSIFIER_TIMEOUT_SECONDS"},
	{"classifier.geminiapikey", "GEMINI_API_KEY"},
	{"classifier.geminimodel", "GEMINI_MODEL"},

	{"schedule.timezone", "SCHEDULE_TIMEZONE"},
	{"schedule.capturetimes", "CAPTURE_TIMES"},
	{"schedule.healthcheck", "HEALTH_CHECK_INTERVAL"},
	{"schedule.prunetime", "PRUNE_TIME"},
	{"schedule.retentiondays", "RETENTION_DAYS"},

	{"slack.bottoken", "SLACK_BOT_TOKEN"},
	{"slack.channelid", "SLACK_CHANNEL_ID"},
	{"slack.signingsecret", "SLACK_SIGNING_SECRET"},
	{"slack.alertcooldown", "SLACK_ALERT_COOLDOWN_MINUTES"},

	{"auth.enabled", "AUTH_ENABLED"},
	{"auth.apikey", "API_KEY"},
	{"auth.username", "AUTH_USERNAME"},
	{"auth.passwordhash", "AUTH_PASSWORD_HASH"},

	{"watering.defaultseconds", "WATERING_DEFAULT_SECONDS"},
	{"watering.maxseconds", "WATERING_MAX_SECONDS"},
	{"watering.minintervalseconds", "WATERING_MIN_INTERVAL_SECONDS"},

	{"thresholdspath", "THRESHOLDS_CONFIG_PATH"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "local")

	v.SetDefault("server.addr", ":3005")
	v.SetDefault("server.uploaddir", "uploads")
	v.SetDefault("server.maxuploadmb", 16)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "floraseven.db")

	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.clientid", "floraseven-server")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("nodes.plantnodeid", "plantNode1")
	v.SetDefault("nodes.hubnodeid", "hubNode")

	v.SetDefault("classifier.backend", "http")
	v.SetDefault("classifier.url", "http://localhost:8501/v1/classify")
	v.SetDefault("classifier.timeout", 30)
	v.SetDefault("classifier.geminimodel", "gemini-1.5-flash")

	v.SetDefault("schedule.timezone", "Asia/Bangkok")
	v.SetDefault("schedule.healthcheck", "5m")
	v.SetDefault("schedule.prunetime", "03:00")
	v.SetDefault("schedule.retentiondays", 90)

	v.SetDefault("slack.alertcooldown", 60)

	v.SetDefault("watering.defaultseconds", 3)
	v.SetDefault("watering.maxseconds", 120)
	v.SetDefault("watering.minintervalseconds", 300)
}

// LoadConfig reads configuration from the environment, and from .env.local
// when APP_ENV is unset or "local".
func LoadConfig() (*Config, error) {
	envFile := ""
	env := os.Getenv("APP_ENV")
	if env == "" || env == "local" {
		envFile = ".env.local"
	} else {
		log.Printf("[INFO] Skipping .env file loading because APP_ENV is '%s'", env)
	}
	return Load(envFile)
}

// Load builds a Config from defaults, the optional env file, and the process
// environment, in increasing order of precedence.
func Load(envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	for _, b := range bindings {
		if err := v.BindEnv(b[0], b[1]); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", b[1], err)
		}
	}
	for _, p := range health.Parameters {
		name := strings.ToUpper(string(p))
		_ = v.BindEnv(thresholdKey(p, "min"), "DEFAULT_"+name+"_MIN")
		_ = v.BindEnv(thresholdKey(p, "max"), "DEFAULT_"+name+"_MAX")
	}

	if envFile != "" {
		if err := applyEnvFile(v, envFile); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	thresholds, err := loadThresholds(v, cfg.ThresholdsPath)
	if err != nil {
		return nil, err
	}
	cfg.Thresholds = thresholds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Printf("[INFO] Configuration loaded (env=%s, db=%s, classifier=%s, mqtt=%s)",
		cfg.Environment, cfg.Database.Driver, cfg.Classifier.Backend, cfg.MQTT.Broker)
	return &cfg, nil
}

// applyEnvFile reads KEY=VALUE pairs and applies them as defaults, so real
// environment variables still take precedence.
func applyEnvFile(v *viper.Viper, path string) error {
	file := viper.New()
	file.SetConfigFile(path)
	file.SetConfigType("env")

	if err := file.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			log.Printf("[INFO] %s not found, relying on environment variables", path)
			return nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("[INFO] %s not found, relying on environment variables", path)
			return nil
		}
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}

	apply := func(key, envName string) {
		name := strings.ToLower(envName)
		if file.IsSet(name) {
			v.SetDefault(key, file.Get(name))
		}
	}
	for _, b := range bindings {
		apply(b[0], b[1])
	}
	for _, p := range health.Parameters {
		name := strings.ToUpper(string(p))
		apply(thresholdKey(p, "min"), "DEFAULT_"+name+"_MIN")
		apply(thresholdKey(p, "max"), "DEFAULT_"+name+"_MAX")
	}

	log.Printf("[INFO] Loaded configuration from %s", file.ConfigFileUsed())
	return nil
}

func thresholdKey(p health.Parameter, bound string) string {
	return "thresholds." + string(p) + "." + bound
}

type thresholdFile struct {
	Thresholds map[health.Parameter]struct {
		Min *float64 `json:"min"`
		Max *float64 `json:"max"`
	} `json:"thresholds"`
}

// loadThresholds starts from the built-in defaults, applies the optional JSON
// file and then DEFAULT_<PARAM>_MIN/MAX overrides.
func loadThresholds(v *viper.Viper, path string) (map[health.Parameter]health.Threshold, error) {
	out := health.DefaultThresholds()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read thresholds config file '%s': %w", path, err)
		}
		// Expected shape: { "thresholds": { "moisture": {"min": 40, "max": 70} } }
		var tf thresholdFile
		if err := json.Unmarshal(data, &tf); err != nil {
			return nil, fmt.Errorf("failed to unmarshal thresholds config JSON: %w", err)
		}
		for p, b := range tf.Thresholds {
			if !p.Valid() {
				return nil, fmt.Errorf("unknown parameter %q in %s", p, path)
			}
			t := out[p]
			if b.Min != nil {
				t.Min = *b.Min
			}
			if b.Max != nil {
				t.Max = *b.Max
			}
			out[p] = t
		}
	}

	for _, p := range health.Parameters {
		t := out[p]
		if v.IsSet(thresholdKey(p, "min")) {
			t.Min = v.GetFloat64(thresholdKey(p, "min"))
		}
		if v.IsSet(thresholdKey(p, "max")) {
			t.Max = v.GetFloat64(thresholdKey(p, "max"))
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("default threshold for %s: %w", p, err)
		}
		out[p] = t
	}
	return out, nil
}

// Validate rejects settings the service cannot run with.
func (cfg *Config) Validate() error {
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
	switch cfg.Classifier.Backend {
	case "http", "gemini", "disabled":
	default:
		return fmt.Errorf("unsupported classifier backend %q", cfg.Classifier.Backend)
	}
	if cfg.Classifier.Backend == "gemini" && cfg.Classifier.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required for the gemini classifier")
	}
	if _, err := time.ParseDuration(cfg.Schedule.HealthCheck); err != nil {
		return fmt.Errorf("invalid health check interval %q: %w", cfg.Schedule.HealthCheck, err)
	}
	if cfg.Watering.DefaultSeconds <= 0 || cfg.Watering.MaxSeconds < cfg.Watering.DefaultSeconds {
		return fmt.Errorf("invalid watering durations: default %ds, max %ds",
			cfg.Watering.DefaultSeconds, cfg.Watering.MaxSeconds)
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("invalid MQTT QoS %d", cfg.MQTT.QoS)
	}
	if cfg.Auth.Enabled && cfg.Auth.APIKey == "" && cfg.Auth.PasswordHash == "" {
		return fmt.Errorf("auth is enabled but neither API_KEY nor AUTH_PASSWORD_HASH is set")
	}
	if cfg.Auth.PasswordHash != "" && cfg.Auth.Username == "" {
		return fmt.Errorf("AUTH_USERNAME is required when AUTH_PASSWORD_HASH is set")
	}
	return nil
}

// DSN returns the connection string for the configured driver.
func (cfg *Config) DSN() string {
	if cfg.Database.Driver == "sqlite" {
		return cfg.Database.Path
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		cfg.Database.Host,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.Port,
		cfg.Database.SSLMode,
	)
}

// HealthCheckInterval is the parsed health check period.
func (cfg *Config) HealthCheckInterval() time.Duration {
	d, err := time.ParseDuration(cfg.Schedule.HealthCheck)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

func (cfg *Config) ClassifierTimeout() time.Duration {
	return time.Duration(cfg.Classifier.Timeout) * time.Second
}

func (cfg *Config) MaxUploadBytes() int64 {
	return int64(cfg.Server.MaxUploadMB) << 20
}
