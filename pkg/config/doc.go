// Package config loads typed configuration from environment variables.
//
// Configuration structs declare their variables with caarlos0/env tags; Load
// parses them once per type and caches the result for the life of the process.
// A .env file in the working directory is applied on first use, which keeps
// local runs and containers on the same code path.
//
//	type Config struct {
//		Processor string `env:"BILLING_PROCESSOR" envDefault:"stripe"`
//	}
//
//	var cfg Config
//	config.MustLoad(&cfg)
package config
