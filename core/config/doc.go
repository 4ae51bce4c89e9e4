// Package config provides type-safe environment variable loading with caching
// using Go generics. Each configuration type is loaded once and cached for
// subsequent calls.
//
// The package automatically loads .env files on first use and uses the
// caarlos0/env library for parsing environment variables into struct fields.
//
// Basic usage:
//
//	import "github.com/dmitrymomot/eventbus/core/config"
//
//	type ConsumerConfig struct {
//		QueueURL    string `env:"EVENTBUS_QUEUE_URL,required"`
//		WaitTime    int    `env:"EVENTBUS_WAIT_TIME" envDefault:"20"`
//		MaxMessages int    `env:"EVENTBUS_MAX_MESSAGES" envDefault:"10"`
//	}
//
//	func main() {
//		var cfg ConsumerConfig
//
//		// Load with error handling
//		if err := config.Load(&cfg); err != nil {
//			log.Fatal(err)
//		}
//
//		// Or panic on failure (useful for startup)
//		config.MustLoad(&cfg)
//	}
//
// # Caching Behavior
//
// Each configuration type is loaded only once per application lifetime:
//
//	var cfg1 ConsumerConfig
//	config.Load(&cfg1) // Loads from environment
//
//	var cfg2 ConsumerConfig
//	config.Load(&cfg2) // Returns cached value, cfg1 == cfg2
//
// Different types are cached independently.
package config
