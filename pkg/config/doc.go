// Package config loads typed configuration structs from environment
// variables, wrapping github.com/caarlos0/env and github.com/joho/godotenv.
//
// Each configuration type is parsed once per process and cached, so
// independent components can load their own config structs without
// coordinating. A .env file in the working directory is picked up
// automatically; its absence is not an error.
//
// # Usage
//
//	type ServerConfig struct {
//	    Addr           string        `env:"HTTP_ADDR" envDefault:":8080"`
//	    RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
//	}
//
//	var cfg ServerConfig
//	config.MustLoad(&cfg)
//
// Tests that mutate the environment between loads should call
// ResetCache.
package config
