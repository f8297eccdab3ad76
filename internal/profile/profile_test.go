package profile

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProfileValidate(t *testing.T) {
	dir := t.TempDir()

	p := &Profile{
		Mode:                "dev",
		Driver:              "sqlite",
		Data:                dir,
		EmbeddingDimensions: 1024,
	}
	err := p.Validate()
	require.NoError(t, err)
	require.Equal(t, "dev", p.Mode)
	require.NotEmpty(t, p.DSN)
	require.Contains(t, p.DSN, "lyricmem_dev.db")
}

func TestProfileValidateUnknownMode(t *testing.T) {
	p := &Profile{
		Mode:                "staging",
		Driver:              "sqlite",
		Data:                t.TempDir(),
		EmbeddingDimensions: 1024,
	}
	err := p.Validate()
	require.NoError(t, err)
	require.Equal(t, "demo", p.Mode)
}

func TestProfileValidateBadDimensions(t *testing.T) {
	p := &Profile{
		Mode:   "dev",
		Driver: "sqlite",
		Data:   t.TempDir(),
	}
	err := p.Validate()
	require.Error(t, err)
}

func TestProfileFromEnvDefaults(t *testing.T) {
	p := &Profile{}
	p.FromEnv()
	require.Equal(t, "BAAI/bge-m3", p.AIEmbeddingModel)
	require.Equal(t, 1024, p.EmbeddingDimensions)
	require.Equal(t, 300, p.RetrievalCandidateLimit)
	require.False(t, p.IsEmbeddingEnabled())
}

func TestProfileFromEnvOverride(t *testing.T) {
	t.Setenv("LYRICMEM_AI_EMBEDDING_MODEL", "text-embedding-3-small")
	t.Setenv("LYRICMEM_AI_EMBEDDING_DIMENSIONS", "1536")
	t.Setenv("LYRICMEM_AI_EMBEDDING_API_KEY", "sk-test")

	p := &Profile{}
	p.FromEnv()
	require.Equal(t, "text-embedding-3-small", p.AIEmbeddingModel)
	require.Equal(t, 1536, p.EmbeddingDimensions)
	require.True(t, p.IsEmbeddingEnabled())
}
