package settings

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapEnv map[string]string

func (m mapEnv) LookupEnv(k string) (string, bool) {
	v, ok := m[k]
	return v, ok
}

func (m mapEnv) Setenv(k, v string) error {
	m[k] = v
	return nil
}

func TestFromEnv_Defaults(t *testing.T) {
	s, err := FromEnv(mapEnv{}.LookupEnv, "/mnt/storage", "/tmp")
	require.NoError(t, err)

	assert.Equal(t, Settings{
		LLMProvider:       "openai",
		EmbeddingModel:    "text-embedding-3-small",
		MaxStepIterations: 3,
		ScratchPath:       filepath.Join("/tmp", "chroma_langchain_db"),
		CollectionName:    "Biography_of_Christopher_Diaz",
		MountPath:         "/mnt/storage",
	}, s)
	assert.False(t, s.HasAPIKey())
}

func TestFromEnv_Overrides(t *testing.T) {
	env := mapEnv{
		EnvLLMProvider:       "vertex",
		EnvEmbeddingModel:    "text-embedding-005",
		EnvMaxStepIterations: "7",
		EnvCollectionName:    "docs",
		EnvAPIKey:            "sk-test-abcd1234",
	}

	s, err := FromEnv(env.LookupEnv, "/mnt/b", "/scratch")
	require.NoError(t, err)

	assert.Equal(t, "vertex", s.LLMProvider)
	assert.Equal(t, "text-embedding-005", s.EmbeddingModel)
	assert.Equal(t, 7, s.MaxStepIterations)
	assert.Equal(t, "docs", s.CollectionName)
	assert.True(t, s.HasAPIKey())
	assert.Equal(t, "sk-...1234", s.APIKeyPreview())
}

func TestFromEnv_InvalidIterationsKeepsDefault(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not a number", "many"},
		{"zero", "0"},
		{"negative", "-2"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, err := FromEnv(mapEnv{EnvMaxStepIterations: tc.value}.LookupEnv, "/mnt", "/tmp")
			assert.Error(t, err)
			assert.Equal(t, DefaultMaxStepIterations, s.MaxStepIterations)
		})
	}
}

func TestAPIKeyPreview_Short(t *testing.T) {
	assert.Equal(t, "sk-...", Settings{APIKey: "abc"}.APIKeyPreview())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nOPENAI_API_KEY=sk-from-file\nLLM_PROVIDER=openai\nEXISTING=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	env := mapEnv{"EXISTING": "from-process"}
	applied, err := LoadFile(path, env)
	require.NoError(t, err)

	sort.Strings(applied)
	assert.Equal(t, []string{"LLM_PROVIDER", "OPENAI_API_KEY"}, applied)
	assert.Equal(t, "sk-from-file", env["OPENAI_API_KEY"])
	assert.Equal(t, "from-process", env["EXISTING"], "process values win over the file")
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), ".env"), mapEnv{})
	assert.Error(t, err)
}

func TestStore_PublishOnce(t *testing.T) {
	st := NewStore()

	_, ok := st.Load()
	assert.False(t, ok, "empty store has no record")

	require.NoError(t, st.Publish(Settings{CollectionName: "first"}))
	assert.ErrorIs(t, st.Publish(Settings{CollectionName: "second"}), ErrAlreadyPublished)

	got, ok := st.Load()
	require.True(t, ok)
	assert.Equal(t, "first", got.CollectionName)
}

func TestStore_LoadReturnsCopy(t *testing.T) {
	st := NewStore()
	require.NoError(t, st.Publish(Settings{CollectionName: "docs"}))

	got, _ := st.Load()
	got.CollectionName = "mutated"

	again, _ := st.Load()
	assert.Equal(t, "docs", again.CollectionName)
}

func TestStore_ConcurrentReadsAreIdentical(t *testing.T) {
	st := NewStore()
	want := Settings{
		LLMProvider:       "openai",
		EmbeddingModel:    "text-embedding-3-small",
		MaxStepIterations: 3,
		ScratchPath:       "/tmp/chroma_langchain_db",
		CollectionName:    "docs",
		MountPath:         "/mnt/storage",
	}
	require.NoError(t, st.Publish(want))

	const readers = 64
	results := make([]Settings, readers)

	var wg sync.WaitGroup
	for i := range readers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = st.Load()
		}()
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}
