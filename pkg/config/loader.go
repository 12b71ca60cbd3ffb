package config

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type cacheEntry struct {
	once  sync.Once
	value any
	err   error
}

var (
	cache         sync.Map // reflect.Type -> *cacheEntry
	dotenvLoadOne sync.Once
)

// Load parses environment variables into v according to its `env` struct tags.
//
// The first call loads a .env file from the working directory when one exists.
// Each configuration type is parsed once per process; later calls for the same
// type copy the cached value, including a cached parse error.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	loadDotenv()

	key := reflect.TypeFor[T]()
	raw, _ := cache.LoadOrStore(key, &cacheEntry{})
	entry := raw.(*cacheEntry)

	entry.once.Do(func() {
		var parsed T
		if err := env.Parse(&parsed); err != nil {
			entry.err = errors.Join(ErrParsingConfig, err)
			return
		}
		entry.value = parsed
	})

	if entry.err != nil {
		return entry.err
	}
	cached, ok := entry.value.(T)
	if !ok {
		return ErrConfigNotLoaded
	}
	*v = cached
	return nil
}

// MustLoad works like Load but panics if configuration loading fails.
// Intended for cmd/ entrypoints where a missing setting must stop startup.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration %T: %v", *new(T), err))
	}
}

// Parse reads the environment into a fresh T without touching the cache.
func Parse[T any]() (T, error) {
	loadDotenv()
	var v T
	if err := env.Parse(&v); err != nil {
		return v, errors.Join(ErrParsingConfig, err)
	}
	return v, nil
}

func loadDotenv() {
	dotenvLoadOne.Do(func() {
		// a missing .env file is the normal case outside local development
		_ = godotenv.Load()
	})
}
