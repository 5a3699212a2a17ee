package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

var (
	envFilePath string
	parseOnce   sync.Once
	exportOnce  sync.Once
	exportErr   error
)

// Validator is implemented by config structs that need checks beyond envconfig tags.
type Validator interface {
	Validate() error
}

func MustNew[T any](prefix string) *T {
	conf, err := New[T](prefix)
	if err != nil {
		panic(err)
	}
	return conf
}

// New exports the .env file (once per process) and fills T from the environment.
func New[T any](prefix string) (*T, error) {
	exportOnce.Do(func() {
		exportErr = exportEnvFile(resolveEnvPath())
	})
	if exportErr != nil {
		return nil, exportErr
	}
	return FromEnv[T](prefix)
}

// FromEnv fills T from the current environment only.
func FromEnv[T any](prefix string) (*T, error) {
	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("process %s config: %w", strings.ToLower(prefix), err)
	}
	if v, ok := any(&conf).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &conf, nil
}

func exportEnvFile(path string) error {
	if path != "" {
		if err := exportEnvironment(path); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
		return nil
	}
	if err := exportEnvironmentIfExists(".env"); err != nil {
		return fmt.Errorf("failed to load default env file: %w", err)
	}
	return nil
}

func resolveEnvPath() string {
	parseOnce.Do(func() {
		if flag.Lookup("env") == nil {
			flag.StringVar(&envFilePath, "env", "", "path to .env file")
		}
		if !flag.Parsed() {
			flag.Parse()
		}
	})
	return strings.TrimSpace(envFilePath)
}

func exportEnvironmentIfExists(filepath string) error {
	info, err := os.Stat(filepath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	return exportEnvironment(filepath)
}

// exportEnvironment copies dotenv keys into the process environment without
// overriding variables that are already set.
func exportEnvironment(filepath string) error {
	v := viper.New()
	v.SetConfigFile(filepath)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}

	return nil
}
