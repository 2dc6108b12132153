package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`
	Redis struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		Password string `mapstructure:"password"`
	} `mapstructure:"redis"`
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	JWT struct {
		SecretKey string        `mapstructure:"secret_key"`
		AccessTTL time.Duration `mapstructure:"access_ttl"`
	} `mapstructure:"jwt"`
	Refresh struct {
		TTL           time.Duration `mapstructure:"ttl"`
		CookieName    string        `mapstructure:"cookie_name"`
		CookiePath    string        `mapstructure:"cookie_path"`
		CookieSecure  bool          `mapstructure:"cookie_secure"`
		RotateTimeout time.Duration `mapstructure:"rotate_timeout"`
	} `mapstructure:"refresh"`
}

var AppConfig Config

func LoadConfig(path string) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	// The refresh timeout and token lifetimes are deliberately fixed defaults;
	// deployments override them in config.yml when needed.
	viper.SetDefault("jwt.access_ttl", 15*time.Minute)
	viper.SetDefault("refresh.ttl", 720*time.Hour)
	viper.SetDefault("refresh.cookie_name", "refresh_token")
	viper.SetDefault("refresh.cookie_path", "/auth")
	viper.SetDefault("refresh.cookie_secure", true)
	viper.SetDefault("refresh.rotate_timeout", 10*time.Second)

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file, %s", err)
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}
}
