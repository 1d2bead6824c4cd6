// Package config loads environment driven configuration structs.
//
// Structs declare their variables with caarlos0/env tags; Load fills them,
// after loading a .env file when one is present:
//
//	type Config struct {
//		RedisURL string        `env:"REDIS_URL,required"`
//		Timeout  time.Duration `env:"TIMEOUT" envDefault:"5s"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
