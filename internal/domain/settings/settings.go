// Package settings holds the process-wide configuration record that request
// handlers read once startup has finished.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/joho/godotenv"
)

// ErrAlreadyPublished is returned when a second record is published.
var ErrAlreadyPublished = errors.New("settings already published")

// Default values for the configuration record.
const (
	DefaultLLMProvider       = "openai"
	DefaultEmbeddingModel    = "text-embedding-3-small"
	DefaultMaxStepIterations = 3
	DefaultCollectionName    = "Biography_of_Christopher_Diaz"
	ScratchDirName           = "chroma_langchain_db"
)

// Environment variables recognised when building the record.
const (
	EnvLLMProvider       = "LLM_PROVIDER"
	EnvEmbeddingModel    = "EMBEDDING_MODEL"
	EnvMaxStepIterations = "MAX_STEP_ITERATIONS"
	EnvCollectionName    = "COLLECTION_NAME"
	EnvAPIKey            = "OPENAI_API_KEY"
)

// Settings is the configuration record. Values are copied out of the Store,
// so a handler holding a Settings cannot change what other handlers see.
type Settings struct {
	LLMProvider       string `json:"llm_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	MaxStepIterations int    `json:"max_step_iterations"`
	// ScratchPath lives on fast local ephemeral storage. The mount is an
	// object store and does not support small transactional writes.
	ScratchPath    string `json:"scratch_path"`
	CollectionName string `json:"collection_name"`
	MountPath      string `json:"mount_path"`
	APIKey         string `json:"-"`
}

// HasAPIKey reports whether the provider secret is available.
func (s Settings) HasAPIKey() bool { return s.APIKey != "" }

// APIKeyPreview returns a redacted form of the key that is safe to log.
func (s Settings) APIKeyPreview() string {
	if len(s.APIKey) < 4 {
		return "sk-..."
	}
	return "sk-..." + s.APIKey[len(s.APIKey)-4:]
}

// Lookup reads a variable from an environment.
type Lookup func(key string) (string, bool)

// FromEnv builds a record for the given mount and scratch roots, letting the
// environment override defaults. An invalid override keeps the default and
// is reported in the returned error; the record is always usable.
func FromEnv(lookup Lookup, mountPath, scratchRoot string) (Settings, error) {
	s := Settings{
		LLMProvider:       DefaultLLMProvider,
		EmbeddingModel:    DefaultEmbeddingModel,
		MaxStepIterations: DefaultMaxStepIterations,
		ScratchPath:       filepath.Join(scratchRoot, ScratchDirName),
		CollectionName:    DefaultCollectionName,
		MountPath:         mountPath,
	}

	if v, ok := lookup(EnvLLMProvider); ok && v != "" {
		s.LLMProvider = v
	}
	if v, ok := lookup(EnvEmbeddingModel); ok && v != "" {
		s.EmbeddingModel = v
	}
	if v, ok := lookup(EnvCollectionName); ok && v != "" {
		s.CollectionName = v
	}
	if v, ok := lookup(EnvAPIKey); ok {
		s.APIKey = v
	}

	var err error
	if v, ok := lookup(EnvMaxStepIterations); ok && v != "" {
		n, convErr := strconv.Atoi(v)
		switch {
		case convErr != nil:
			err = fmt.Errorf("%s=%q is not an integer: %w", EnvMaxStepIterations, v, convErr)
		case n < 1:
			err = fmt.Errorf("%s=%d must be at least 1", EnvMaxStepIterations, n)
		default:
			s.MaxStepIterations = n
		}
	}

	return s, err
}

// Env is the subset of process environment access needed to apply a
// configuration file.
type Env interface {
	LookupEnv(key string) (string, bool)
	Setenv(key, value string) error
}

// OSEnv is the real process environment.
type OSEnv struct{}

func (OSEnv) LookupEnv(key string) (string, bool) { return os.LookupEnv(key) }
func (OSEnv) Setenv(key, value string) error      { return os.Setenv(key, value) }

// LoadFile parses a key=value configuration file and applies it to env.
// Variables that are already set are left untouched. It returns the keys
// that were applied.
func LoadFile(path string, env Env) ([]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	applied := make([]string, 0, len(values))
	for k, v := range values {
		if _, exists := env.LookupEnv(k); exists {
			continue
		}
		if err := env.Setenv(k, v); err != nil {
			return applied, fmt.Errorf("setting %s: %w", k, err)
		}
		applied = append(applied, k)
	}

	return applied, nil
}

// Store holds the single published record.
type Store struct {
	current atomic.Pointer[Settings]
}

// NewStore returns an empty store.
func NewStore() *Store { return new(Store) }

// Publish stores s. Only the first call succeeds.
func (st *Store) Publish(s Settings) error {
	if !st.current.CompareAndSwap(nil, &s) {
		return ErrAlreadyPublished
	}
	return nil
}

// Load returns a copy of the published record and whether one exists.
func (st *Store) Load() (Settings, bool) {
	p := st.current.Load()
	if p == nil {
		return Settings{}, false
	}
	return *p, true
}
