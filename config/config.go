package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"privmsg/models"

	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Address  string `yaml:"address" json:"address"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
}

type SMTPConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	Username  string `yaml:"username" json:"username"`
	Password  string `yaml:"password" json:"-"`
	FromEmail string `yaml:"from_email" json:"from_email"`
	FromName  string `yaml:"from_name" json:"from_name"`
}

// PurgeConfig controls removal of conversations every participant has trashed.
type PurgeConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Cron    string        `yaml:"cron" json:"cron"`
	After   time.Duration `yaml:"after" json:"after"`
}

type Config struct {
	Environment      string      `yaml:"environment" json:"environment"`
	ServerPort       string      `yaml:"server_port" json:"server_port"`
	SiteURL          string      `yaml:"site_url" json:"site_url"`
	JWTSecret        string      `yaml:"jwt_secret" json:"-"`
	DBHost           string      `yaml:"db_host" json:"db_host"`
	DBPort           string      `yaml:"db_port" json:"db_port"`
	DBUser           string      `yaml:"db_user" json:"db_user"`
	DBPassword       string      `yaml:"db_password" json:"-"`
	DBName           string      `yaml:"db_name" json:"db_name"`
	DBSSLMode        string      `yaml:"db_ssl_mode" json:"db_ssl_mode"`
	DBMaxIdleConns   int         `yaml:"db_max_idle_conns" json:"db_max_idle_conns"`
	DBMaxOpenConns   int         `yaml:"db_max_open_conns" json:"db_max_open_conns"`
	Redis            RedisConfig `yaml:"redis" json:"redis"`
	SMTP             SMTPConfig  `yaml:"smtp" json:"smtp"`
	NotifyEmail      bool        `yaml:"notify_email" json:"notify_email"`
	AMQPURL          string      `yaml:"amqp_url" json:"-"`
	SentryDSN        string      `yaml:"sentry_dsn" json:"-"`
	PaginateBy       int         `yaml:"paginate_by" json:"paginate_by"`
	ComposeRateLimit int         `yaml:"compose_rate_limit" json:"compose_rate_limit"`
	CORSOrigins      []string    `yaml:"cors_origins" json:"cors_origins"`
	Purge            PurgeConfig `yaml:"purge" json:"purge"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

// LoadConfig populates AppConfig from CONFIG_FILE (optional) and the environment.
func LoadConfig() error {
	cfg, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	AppConfig = cfg
	logConfig()
	return nil
}

// Load reads the optional YAML file at path and lets environment variables
// override any value it sets.
func Load(path string) (Config, error) {
	var file Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&file); err != nil {
			return Config{}, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	cfg := Config{
		Environment:    getEnv("ENVIRONMENT", pick(file.Environment, "development")),
		ServerPort:     getEnv("SERVER_PORT", pick(file.ServerPort, "5000")),
		SiteURL:        getEnv("SITE_URL", pick(file.SiteURL, "http://localhost:5000")),
		JWTSecret:      getEnv("JWT_SECRET", file.JWTSecret),
		DBHost:         getEnv("DB_HOST", pick(file.DBHost, "localhost")),
		DBPort:         getEnv("DB_PORT", pick(file.DBPort, "5432")),
		DBUser:         getEnv("DB_USER", pick(file.DBUser, "postgres")),
		DBPassword:     getEnv("DB_PASSWORD", file.DBPassword),
		DBName:         getEnv("DB_NAME", pick(file.DBName, "privmsg")),
		DBSSLMode:      getEnv("DB_SSL_MODE", pick(file.DBSSLMode, "disable")),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", pickInt(file.DBMaxIdleConns, 10)),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", pickInt(file.DBMaxOpenConns, 100)),
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", file.Redis.Enabled),
			Address:  getEnv("REDIS_ADDRESS", pick(file.Redis.Address, "localhost:6379")),
			Password: getEnv("REDIS_PASSWORD", file.Redis.Password),
			DB:       getEnvAsInt("REDIS_DB", file.Redis.DB),
		},
		SMTP: SMTPConfig{
			Host:      getEnv("SMTP_HOST", file.SMTP.Host),
			Port:      getEnvAsInt("SMTP_PORT", pickInt(file.SMTP.Port, 587)),
			Username:  getEnv("SMTP_USERNAME", file.SMTP.Username),
			Password:  getEnv("SMTP_PASSWORD", file.SMTP.Password),
			FromEmail: getEnv("SMTP_FROM_EMAIL", file.SMTP.FromEmail),
			FromName:  getEnv("SMTP_FROM_NAME", pick(file.SMTP.FromName, "Messages")),
		},
		NotifyEmail:      getEnvAsBool("NOTIFY_EMAIL", file.NotifyEmail),
		AMQPURL:          getEnv("AMQP_URL", file.AMQPURL),
		SentryDSN:        getEnv("SENTRY_DSN", file.SentryDSN),
		PaginateBy:       getEnvAsInt("PAGINATE_BY", pickInt(file.PaginateBy, 25)),
		ComposeRateLimit: getEnvAsInt("COMPOSE_RATE_LIMIT", pickInt(file.ComposeRateLimit, 30)),
		CORSOrigins:      getEnvAsList("CORS_ORIGINS", file.CORSOrigins),
		Purge: PurgeConfig{
			Enabled: getEnvAsBool("PURGE_ENABLED", file.Purge.Enabled),
			Cron:    getEnv("PURGE_CRON", pick(file.Purge.Cron, "0 3 * * *")),
			After:   getEnvAsDuration("PURGE_AFTER", pickDuration(file.Purge.After, 30*24*time.Hour)),
		},
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"http://localhost:3000"}
	}

	// Validate required configurations
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.DBPassword == "" {
		return Config{}, fmt.Errorf("DB_PASSWORD is required")
	}
	if !gronx.IsValid(cfg.Purge.Cron) {
		return Config{}, fmt.Errorf("invalid PURGE_CRON expression: %q", cfg.Purge.Cron)
	}
	if cfg.PaginateBy <= 0 {
		return Config{}, fmt.Errorf("PAGINATE_BY must be positive")
	}
	if cfg.NotifyEmail && (cfg.SMTP.Host == "" || cfg.SMTP.FromEmail == "") {
		return Config{}, fmt.Errorf("SMTP_HOST and SMTP_FROM_EMAIL are required when NOTIFY_EMAIL is set")
	}

	return cfg, nil
}

func ConnectDB() error {
	logrus.Info("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	logrus.WithField("dsn", maskPassword(dsn)).Debug("Using connection string")

	gormLogger := logger.Default.LogMode(logger.Warn)
	if AppConfig.Environment == "production" {
		gormLogger = logger.Default.LogMode(logger.Error)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	logrus.Info("Successfully connected to the database")
	if err := Migrate(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	logrus.Info("Database migration completed")
	return nil
}

// Migrate creates or updates the tables this service reads and writes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Message{},
	)
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		logrus.Warnf("Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func pickInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}

func pickDuration(value, fallback time.Duration) time.Duration {
	if value != 0 {
		return value
	}
	return fallback
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	logrus.WithFields(logrus.Fields{
		"environment":  AppConfig.Environment,
		"server_port":  AppConfig.ServerPort,
		"database":     fmt.Sprintf("%s@%s:%s/%s", AppConfig.DBUser, AppConfig.DBHost, AppConfig.DBPort, AppConfig.DBName),
		"redis":        AppConfig.Redis.Enabled,
		"notify_email": AppConfig.NotifyEmail,
		"amqp":         AppConfig.AMQPURL != "",
		"purge":        AppConfig.Purge.Enabled,
	}).Info("Loaded configuration")
}
