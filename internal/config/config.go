package config

import (
	"net"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server ServerConfig `envPrefix:"SERVER_"`
	Store  StoreConfig  `envPrefix:"STORE_"`
	Chat   ChatConfig   `envPrefix:"CHAT_"`
	Bot    BotConfig    `envPrefix:"BOT_"`
}

type ServerConfig struct {
	Port string `env:"PORT" envDefault:"3000"`
	Host string `env:"HOST" envDefault:"0.0.0.0"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, s.Port)
}

type StoreConfig struct {
	DataDir  string `env:"DATA_DIR" envDefault:".poalim-data"`
	FileName string `env:"FILE_NAME" envDefault:"chat-db.json"`
}

type ChatConfig struct {
	DefaultRoomID string `env:"DEFAULT_ROOM" envDefault:"global"`
	MaxHistory    int    `env:"MAX_HISTORY" envDefault:"200"`
}

type BotConfig struct {
	TypingBase   time.Duration `env:"TYPING_BASE" envDefault:"450ms"`
	TypingJitter time.Duration `env:"TYPING_JITTER" envDefault:"450ms"`

	// Seed for the bot's pseudo-randomness; 0 means time-based.
	Seed int64 `env:"SEED" envDefault:"0"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
