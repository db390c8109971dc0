package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
		AllowOrigins              []string
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Channel  string
	}

	MQTTConfig struct {
		Broker      string
		ClientID    string
		Username    string
		Password    string
		TopicPrefix string
	}

	// BellConfig holds the scheduling knobs of the bell system.
	BellConfig struct {
		TestSignalDuration time.Duration
		DeviceOfflineAfter time.Duration
		MonitorInterval    time.Duration
		SummaryTime        string // HH:MM, local to Config.TimeZone
	}

	LogConfig struct {
		Level  string
		Format string // json | console
	}

	Config struct {
		Env              string // DEV (default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		WorkDir          string
		AppName          string
		SecretKey        string
		TimeZone         string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		defaultFromEmail string

		Log      LogConfig
		Server   ServerConfig
		Database DatabaseConfig
		Redis    RedisConfig
		MQTT     MQTTConfig
		Bell     BellConfig
	}
)

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)

	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Smart Bell Scheduler")
	v.SetDefault("secretKey", "x3!v@9k#bell&q7+sched)ul2er$w(0h=m4z8r%t5n^c1y*p6")
	v.SetDefault("timeZone", "Asia/Kolkata")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("defaultFromEmail", "Smart Bell Scheduler <noreply@localhost>")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.passwordResetTimeoutDelta", 3*24*time.Hour)
	v.SetDefault("server.allowOrigins", []string{"*"})

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "bells")
	v.SetDefault("database.user", "bells")
	v.SetDefault("database.password", "bells")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "bells:changes")

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.clientID", "bell-scheduler-api")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topicPrefix", "bells")

	v.SetDefault("bell.testSignalDuration", 35*time.Second)
	v.SetDefault("bell.deviceOfflineAfter", 2*time.Minute)
	v.SetDefault("bell.monitorInterval", 30*time.Second)
	v.SetDefault("bell.summaryTime", "06:30")
}

// NewConfig loads the configuration from defaults, the optional config/.env.<env> file and
// ENV-prefixed environment variables (DEV_SERVER_ADDR, PROD_DATABASE_HOST, ...).
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          workDir,
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		TimeZone:         v.GetString("timeZone"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Addr:                      v.GetString("server.addr"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("server.passwordResetTimeoutDelta"),
			AllowOrigins:              v.GetStringSlice("server.allowOrigins"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			Channel:  v.GetString("redis.channel"),
		},
		MQTT: MQTTConfig{
			Broker:      v.GetString("mqtt.broker"),
			ClientID:    v.GetString("mqtt.clientID"),
			Username:    v.GetString("mqtt.username"),
			Password:    v.GetString("mqtt.password"),
			TopicPrefix: v.GetString("mqtt.topicPrefix"),
		},
		Bell: BellConfig{
			TestSignalDuration: v.GetDuration("bell.testSignalDuration"),
			DeviceOfflineAfter: v.GetDuration("bell.deviceOfflineAfter"),
			MonitorInterval:    v.GetDuration("bell.monitorInterval"),
			SummaryTime:        v.GetString("bell.summaryTime"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests; it never reads the environment.
func NewTestConfig() *Config {
	v := viper.New()
	setDefaults(v)
	return &Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          v.GetString("appName"),
		SecretKey:        "secret",
		TimeZone:         v.GetString("timeZone"),
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Log:              LogConfig{Level: "debug", Format: "console"},
		Server: ServerConfig{
			Host:                      "localhost",
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
			AllowOrigins:              []string{"*"},
		},
		Redis: RedisConfig{Channel: v.GetString("redis.channel")},
		MQTT:  MQTTConfig{TopicPrefix: v.GetString("mqtt.topicPrefix")},
		Bell: BellConfig{
			TestSignalDuration: v.GetDuration("bell.testSignalDuration"),
			DeviceOfflineAfter: v.GetDuration("bell.deviceOfflineAfter"),
			MonitorInterval:    v.GetDuration("bell.monitorInterval"),
			SummaryTime:        v.GetString("bell.summaryTime"),
		},
	}
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
	}
	return *addr
}

// Location returns the time zone bells are rung in. Falls back to UTC on unknown zones.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (dc DatabaseConfig) Address() string {
	if dc.Port == "" {
		return dc.Host
	}
	return net.JoinHostPort(dc.Host, dc.Port)
}

func (rc RedisConfig) Enabled() bool { return rc.Addr != "" }

func (mc MQTTConfig) Enabled() bool { return mc.Broker != "" }

// Topic joins parts under the configured topic prefix.
func (mc MQTTConfig) Topic(parts ...string) string {
	return fmt.Sprintf("%s/%s", mc.TopicPrefix, strings.Join(parts, "/"))
}
