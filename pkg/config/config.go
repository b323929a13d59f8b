// Package config implements the three-source configuration merge: CLI
// flags, an optional YAML file, and KVNODE_* environment variables,
// combined with flags > file > env precedence. Each field resolves
// independently — an explicit --address flag wins even if a config
// file sets a different worker-threads value, for example — and the
// winning source per run is recorded on EffectiveConfig.Source for
// startup logging.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved set of knobs the process runs with.
type Config struct {
	WorkerThreads        int
	StorageQueueSize     int
	TransactionQueueSize int
	Address              string
	StorageBasepath      string
	ReadLog              bool
	LogOnCorruption      string // "fail" or "skip"
}

// Defaults returns the spec-mandated default configuration.
func Defaults() Config {
	return Config{
		WorkerThreads:        8,
		StorageQueueSize:     8,
		TransactionQueueSize: 100,
		Address:              "127.0.0.1:11311",
		StorageBasepath:      "./tmp/log",
		ReadLog:              true,
		LogOnCorruption:      "fail",
	}
}

// FlagConfig holds the values parsed from the CLI, plus which ones were
// explicitly set (as opposed to left at their flag.Parse default).
type FlagConfig struct {
	Config
	ConfigPath string
	Explicit   map[string]bool
}

// ParseFlags parses args (typically os.Args[1:]) into a FlagConfig.
func ParseFlags(args []string) (*FlagConfig, error) {
	fs := flag.NewFlagSet("kvnode", flag.ContinueOnError)
	defaults := Defaults()

	workerThreads := fs.Int("worker-threads", defaults.WorkerThreads, "size of the task scheduler pool")
	storageQueueSize := fs.Int("storage-queue-size", defaults.StorageQueueSize, "storage mailbox depth")
	transactionQueueSize := fs.Int("transaction-queue-size", defaults.TransactionQueueSize, "log writer mailbox depth")
	address := fs.String("address", defaults.Address, "listen address")
	storageBasepath := fs.String("storage-basepath", defaults.StorageBasepath, "log file base path")
	readLog := fs.Bool("read-log", defaults.ReadLog, "replay the log at startup")
	logOnCorruption := fs.String("log-on-corruption", defaults.LogOnCorruption, "fail or skip on a corrupt log tail")
	configPath := fs.String("config", "", "path to an optional YAML config file")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	return &FlagConfig{
		Config: Config{
			WorkerThreads:        *workerThreads,
			StorageQueueSize:     *storageQueueSize,
			TransactionQueueSize: *transactionQueueSize,
			Address:              *address,
			StorageBasepath:      *storageBasepath,
			ReadLog:              *readLog,
			LogOnCorruption:      *logOnCorruption,
		},
		ConfigPath: *configPath,
		Explicit:   explicit,
	}, nil
}

// fileConfig mirrors Config's fields as YAML-optional pointers, so an
// absent key in the file is distinguishable from an explicit zero value.
type fileConfig struct {
	WorkerThreads        *int    `yaml:"worker_threads"`
	StorageQueueSize     *int    `yaml:"storage_queue_size"`
	TransactionQueueSize *int    `yaml:"transaction_queue_size"`
	Address              *string `yaml:"address"`
	StorageBasepath      *string `yaml:"storage_basepath"`
	ReadLog              *bool   `yaml:"read_log"`
	LogOnCorruption      *string `yaml:"log_on_corruption"`
}

// ParseFile reads a YAML config file at path. A missing file is
// reported via exists=false rather than an error.
func ParseFile(path string) (*fileConfig, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, true, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &fc, true, nil
}

// EnvConfig mirrors Config's fields as optional strings sourced from
// KVNODE_* environment variables.
type EnvConfig struct {
	values map[string]string
}

var envKeys = map[string]string{
	"worker-threads":          "KVNODE_WORKER_THREADS",
	"storage-queue-size":      "KVNODE_STORAGE_QUEUE_SIZE",
	"transaction-queue-size":  "KVNODE_TRANSACTION_QUEUE_SIZE",
	"address":                 "KVNODE_ADDRESS",
	"storage-basepath":        "KVNODE_STORAGE_BASEPATH",
	"read-log":                "KVNODE_READ_LOG",
	"log-on-corruption":       "KVNODE_LOG_ON_CORRUPTION",
}

// ParseEnv reads every KVNODE_* variable the config surface recognizes.
func ParseEnv() *EnvConfig {
	values := map[string]string{}
	for flagName, envName := range envKeys {
		if v, ok := os.LookupEnv(envName); ok {
			values[flagName] = v
		}
	}
	return &EnvConfig{values: values}
}

// EffectiveConfig is the merged result, plus Source recording which
// input won for each field (flag, file, env, or default).
type EffectiveConfig struct {
	Config
	Source map[string]string
}

// LoadEffectiveConfig merges flags, an optional file, and env with
// flags > file > env > defaults precedence, field by field.
func LoadEffectiveConfig(flags *FlagConfig, file *fileConfig, fileExists bool, env *EnvConfig) EffectiveConfig {
	eff := EffectiveConfig{Config: Defaults(), Source: map[string]string{}}

	resolveInt := func(field string, flagVal int, flagExplicit bool, fileVal *int, envVal string, dst *int) {
		switch {
		case flagExplicit:
			*dst = flagVal
			eff.Source[field] = "flag"
		case fileExists && fileVal != nil:
			*dst = *fileVal
			eff.Source[field] = "file"
		case envVal != "":
			if n, err := strconv.Atoi(envVal); err == nil {
				*dst = n
				eff.Source[field] = "env"
			} else {
				*dst = flagVal
				eff.Source[field] = "default"
			}
		default:
			*dst = flagVal
			eff.Source[field] = "default"
		}
	}

	resolveString := func(field string, flagVal string, flagExplicit bool, fileVal *string, envVal string, dst *string) {
		switch {
		case flagExplicit:
			*dst = flagVal
			eff.Source[field] = "flag"
		case fileExists && fileVal != nil:
			*dst = *fileVal
			eff.Source[field] = "file"
		case envVal != "":
			*dst = envVal
			eff.Source[field] = "env"
		default:
			*dst = flagVal
			eff.Source[field] = "default"
		}
	}

	resolveBool := func(field string, flagVal bool, flagExplicit bool, fileVal *bool, envVal string, dst *bool) {
		switch {
		case flagExplicit:
			*dst = flagVal
			eff.Source[field] = "flag"
		case fileExists && fileVal != nil:
			*dst = *fileVal
			eff.Source[field] = "file"
		case envVal != "":
			if b, err := strconv.ParseBool(envVal); err == nil {
				*dst = b
				eff.Source[field] = "env"
			} else {
				*dst = flagVal
				eff.Source[field] = "default"
			}
		default:
			*dst = flagVal
			eff.Source[field] = "default"
		}
	}

	var fwt, fsqs, ftqs *int
	var faddr, fbase, flog *string
	var frl *bool
	if file != nil {
		fwt, fsqs, ftqs = file.WorkerThreads, file.StorageQueueSize, file.TransactionQueueSize
		faddr, fbase, flog = file.Address, file.StorageBasepath, file.LogOnCorruption
		frl = file.ReadLog
	}

	resolveInt("worker-threads", flags.WorkerThreads, flags.Explicit["worker-threads"], fwt, env.values["worker-threads"], &eff.WorkerThreads)
	resolveInt("storage-queue-size", flags.StorageQueueSize, flags.Explicit["storage-queue-size"], fsqs, env.values["storage-queue-size"], &eff.StorageQueueSize)
	resolveInt("transaction-queue-size", flags.TransactionQueueSize, flags.Explicit["transaction-queue-size"], ftqs, env.values["transaction-queue-size"], &eff.TransactionQueueSize)
	resolveString("address", flags.Address, flags.Explicit["address"], faddr, env.values["address"], &eff.Address)
	resolveString("storage-basepath", flags.StorageBasepath, flags.Explicit["storage-basepath"], fbase, env.values["storage-basepath"], &eff.StorageBasepath)
	resolveString("log-on-corruption", flags.LogOnCorruption, flags.Explicit["log-on-corruption"], flog, env.values["log-on-corruption"], &eff.LogOnCorruption)
	resolveBool("read-log", flags.ReadLog, flags.Explicit["read-log"], frl, env.values["read-log"], &eff.ReadLog)

	return eff
}
