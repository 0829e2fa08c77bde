package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Malformed-line policies for the rating reader.
const (
	OnMalformedFail = "fail"
	OnMalformedSkip = "skip"
)

// InputConfig points at the two input files.
type InputConfig struct {
	RatingsPath string `json:"ratings_path"`
	ItemsPath   string `json:"items_path"`
	// OnMalformed is "fail" (abort the run) or "skip" (count and continue).
	OnMalformed string `json:"on_malformed"`
}

// SimilarityConfig holds the quality filter and expansion limits.
type SimilarityConfig struct {
	MinCoRatings    int64   `json:"min_co_ratings"`
	MinScore        float64 `json:"min_score"`
	MaxItemsPerUser int     `json:"max_items_per_user"` // 0 = sin límite
}

// ConcurrencyConfig controls local accumulation.
type ConcurrencyConfig struct {
	Workers   int `json:"workers"`
	BlockSize int `json:"block_size"` // usuarios por bloque; 0 = automático
}

// ClusterConfig configures the coordinator and worker nodes.
type ClusterConfig struct {
	CoordinatorAddr   string   `json:"coordinator_addr"` // worker -> coordinator
	ListenAddr        string   `json:"listen_addr"`      // coordinator TCP listener
	TaskTimeout       Duration `json:"task_timeout"`
	HeartbeatInterval Duration `json:"heartbeat_interval"`
	MinWorkers        int      `json:"min_workers"`
}

// RedisConfig is only used for the worker registry.
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// OutputConfig lists the report sinks. Empty fields disable a sink.
type OutputConfig struct {
	TSVPath       string   `json:"tsv_path"` // "-" = stdout
	SQLitePath    string   `json:"sqlite_path"`
	MongoURI      string   `json:"mongo_uri"`
	MongoDB       string   `json:"mongo_db"`
	MongoColl     string   `json:"mongo_collection"`
	MongoRetries  int      `json:"mongo_max_retries"` // 0 = sin límite
	MongoInterval Duration `json:"mongo_retry_interval"`
}

// Duration accepts either a Go duration string ("15s") or nanoseconds in JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %s", b)
	}
	*d = Duration(n)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full application configuration.
type Config struct {
	Input       InputConfig       `json:"input"`
	Similarity  SimilarityConfig  `json:"similarity"`
	Concurrency ConcurrencyConfig `json:"concurrency"`
	Cluster     ClusterConfig     `json:"cluster"`
	Redis       RedisConfig       `json:"redis"`
	Output      OutputConfig      `json:"output"`
	HTTPAddr    string            `json:"http_addr"`
	LogLevel    string            `json:"log_level"`
}

// DefaultConfig retorna la configuración por defecto
func DefaultConfig() Config {
	return Config{
		Input: InputConfig{
			RatingsPath: "ml-100k/u.data",
			ItemsPath:   "ml-100k/u.item",
			OnMalformed: OnMalformedFail,
		},
		Similarity: SimilarityConfig{
			MinCoRatings: 10,
			MinScore:     0.95,
		},
		Concurrency: ConcurrencyConfig{
			Workers:   runtime.NumCPU(),
			BlockSize: 64,
		},
		Cluster: ClusterConfig{
			CoordinatorAddr:   "localhost:9000",
			ListenAddr:        ":9000",
			TaskTimeout:       Duration(2 * time.Minute),
			HeartbeatInterval: Duration(5 * time.Second),
			MinWorkers:        1,
		},
		Redis: RedisConfig{},
		Output: OutputConfig{
			TSVPath:       "-",
			MongoColl:     "similarities",
			MongoInterval: Duration(15 * time.Second),
		},
		HTTPAddr: ":8080",
		LogLevel: "info",
	}
}

// Load reads a JSON config file on top of the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Input.RatingsPath, "MOVIESIMS_RATINGS")
	setString(&c.Input.ItemsPath, "MOVIESIMS_ITEMS")
	setString(&c.Input.OnMalformed, "MOVIESIMS_ON_MALFORMED")
	setString(&c.Cluster.CoordinatorAddr, "COORDINATOR_ADDR")
	setString(&c.Cluster.ListenAddr, "WORKER_TCP_ADDR")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Redis.Password, "REDIS_PASSWORD")
	setString(&c.Output.TSVPath, "MOVIESIMS_TSV")
	setString(&c.Output.SQLitePath, "SQLITE_PATH")
	setString(&c.Output.MongoURI, "MONGODB_URI")
	setString(&c.Output.MongoDB, "MONGO_DB_NAME")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v, ok := lookup("MOVIESIMS_MIN_CO_RATINGS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: MOVIESIMS_MIN_CO_RATINGS: %w", err)
		}
		c.Similarity.MinCoRatings = n
	}
	if v, ok := lookup("MOVIESIMS_MIN_SCORE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: MOVIESIMS_MIN_SCORE: %w", err)
		}
		c.Similarity.MinScore = f
	}
	if err := setInt(&c.Similarity.MaxItemsPerUser, "MOVIESIMS_MAX_ITEMS_PER_USER"); err != nil {
		return err
	}
	if err := setInt(&c.Concurrency.Workers, "MOVIESIMS_WORKERS"); err != nil {
		return err
	}
	if err := setInt(&c.Cluster.MinWorkers, "MOVIESIMS_MIN_WORKERS"); err != nil {
		return err
	}
	if err := setInt(&c.Redis.DB, "REDIS_DB"); err != nil {
		return err
	}
	if err := setInt(&c.Output.MongoRetries, "MONGO_MAX_RETRIES"); err != nil {
		return err
	}
	if v, ok := lookup("MONGO_RETRY_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: MONGO_RETRY_INTERVAL: %w", err)
		}
		c.Output.MongoInterval = Duration(d)
	}
	return nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Input.OnMalformed {
	case OnMalformedFail, OnMalformedSkip:
	default:
		return fmt.Errorf("config: on_malformed must be %q or %q, got %q",
			OnMalformedFail, OnMalformedSkip, c.Input.OnMalformed)
	}
	if c.Similarity.MinCoRatings < 0 {
		return fmt.Errorf("config: min_co_ratings must be >= 0")
	}
	if c.Similarity.MaxItemsPerUser < 0 {
		return fmt.Errorf("config: max_items_per_user must be >= 0")
	}
	if c.Concurrency.Workers < 1 {
		c.Concurrency.Workers = 1
	}
	if c.Concurrency.BlockSize < 0 {
		c.Concurrency.BlockSize = 0
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func setString(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = n
	return nil
}
