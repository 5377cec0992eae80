package config

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotgateway/internal/secrets"
	"slotgateway/internal/slots"
)

func TestLoadSlotsFromSlotVariables(t *testing.T) {
	t.Setenv("SLOT_COUNT", "3")
	t.Setenv("SLOT_1_API_KEY", "gsk_one")
	t.Setenv("SLOT_2_API_KEY", "sk_two")
	t.Setenv("SLOT_2_PROVIDER", "moonshot")
	t.Setenv("SLOT_2_NAME", "Kimi")
	t.Setenv("SLOT_3_MODEL", "groq/compuesto")
	t.Setenv("RESERVED_SLOTS", "2, x")

	cfg := LoadWith(context.Background(), secrets.EnvSource{})
	require.Len(t, cfg.Slots, 3)

	s1, s2, s3 := cfg.Slots[0], cfg.Slots[1], cfg.Slots[2]
	assert.Equal(t, slots.KindGroq, s1.Kind)
	assert.Equal(t, "gsk_one", s1.Credential)
	assert.Equal(t, DefaultQuotaInfo[slots.KindGroq], s1.QuotaInfo)

	assert.Equal(t, slots.KindMoonshot, s2.Kind)
	assert.Equal(t, "Kimi", s2.Name)
	assert.True(t, s2.Reserved)

	assert.False(t, s3.Configured(), "blank slot keeps its identity")
	assert.Equal(t, 3, s3.ID)
	assert.Equal(t, "groq/compuesto", s3.Model)
}

func TestLoadSlotsLegacyAliases(t *testing.T) {
	t.Setenv("SLOT_COUNT", "")
	t.Setenv("GROQ_API_KEY", "legacy-1")
	t.Setenv("GROQ_API_KEY_4", "legacy-4")
	t.Setenv("GROQ_MODEL_4", "groq/compound")
	t.Setenv("GROQ_LLAVE_4_NOMBRE", "BC3")
	t.Setenv("HF_TOKEN", "hf_legacy")
	t.Setenv("HUGGINGFACE_MODEL_ID", "Qwen/Qwen3-32B")

	cfg := LoadWith(context.Background(), secrets.EnvSource{})
	require.Len(t, cfg.Slots, 5)

	assert.Equal(t, "legacy-1", cfg.Slots[0].Credential)
	assert.Equal(t, "legacy-4", cfg.Slots[3].Credential)
	assert.Equal(t, "groq/compound", cfg.Slots[3].Model)
	assert.Equal(t, "BC3", cfg.Slots[3].Name)

	hf := cfg.Slots[4]
	assert.Equal(t, slots.KindHuggingFace, hf.Kind)
	assert.Equal(t, "hf_legacy", hf.Credential)
	assert.Equal(t, "Qwen/Qwen3-32B", hf.Model)
}

func TestLoadSlotsLegacyReservedAndModelAliases(t *testing.T) {
	t.Setenv("SLOT_COUNT", "4")
	t.Setenv("GROQ_LLAVE_SOLO_BC3", "2,4")
	t.Setenv("GROQ_LLAVE_2_MODELO", "groq/compuesto")
	t.Setenv("GROQ_MODEL_2", "ignored-when-modelo-set")
	t.Setenv("KIMI_LLAVE_3_MODELO", "kimi-k2.5")

	cfg := LoadWith(context.Background(), secrets.EnvSource{})
	require.Len(t, cfg.Slots, 4)
	assert.False(t, cfg.Slots[0].Reserved)
	assert.True(t, cfg.Slots[1].Reserved)
	assert.True(t, cfg.Slots[3].Reserved)
	assert.Equal(t, "groq/compuesto", cfg.Slots[1].Model)
	assert.Equal(t, "kimi-k2.5", cfg.Slots[2].Model)
}

func TestReservedSlotsWinsOverLegacyAlias(t *testing.T) {
	t.Setenv("SLOT_COUNT", "4")
	t.Setenv("RESERVED_SLOTS", "3")
	t.Setenv("LLAVE_SOLO_BC3", "2")

	cfg := LoadWith(context.Background(), secrets.EnvSource{})
	assert.False(t, cfg.Slots[1].Reserved)
	assert.True(t, cfg.Slots[2].Reserved)
}

func TestSecretSourceWinsOverEnvironment(t *testing.T) {
	t.Setenv("SLOT_1_API_KEY", "from-env")
	src := secrets.Chain{
		secrets.MapSource{"slot_1_api_key": "from-vault", "api_keys": "ops:s3cret"},
		secrets.EnvSource{},
	}

	cfg := LoadWith(context.Background(), src)
	assert.Equal(t, "from-vault", cfg.Slots[0].Credential)
	assert.Equal(t, map[string]string{"ops": "s3cret"}, cfg.APIKeys)
}

func TestDefaults(t *testing.T) {
	cfg := LoadWith(context.Background(), secrets.MapSource{})

	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, 0.2, cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, 8192, cfg.MaxTokensReserved)
	assert.Equal(t, 3, cfg.SameSlotRetries)
	assert.Equal(t, 900000, cfg.MaxBodyBytes)
	assert.Equal(t, DefaultReservedPromptIDs, cfg.ReservedPromptIDs)
	assert.Equal(t, "openai/gpt-oss-120b", cfg.ModelDefaults()[slots.KindGroq])
}

func TestOverrides(t *testing.T) {
	t.Setenv("DEFAULT_MODEL", "groq/compuesto")
	t.Setenv("TEMPERATURE", "0.7")
	t.Setenv("MAX_TOKENS", "oops")
	t.Setenv("RESERVED_PROMPT_IDS", "a, b")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg := LoadWith(context.Background(), secrets.MapSource{})
	assert.Equal(t, slots.CompoundModel, cfg.DefaultModel)
	assert.Equal(t, 0.7, cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens, "invalid values fall back")
	assert.Equal(t, []string{"a", "b"}, cfg.ReservedPromptIDs)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestSnapshotRedactsSecrets(t *testing.T) {
	cfg := Config{
		APIKeys:        map[string]string{"ops": "s3cret"},
		AdminJWTSecret: "super-secret",
		UsageDBDSN:     "postgres://user:pw@db/usage",
		Slots:          []slots.Slot{{ID: 1, Kind: slots.KindGroq, Credential: "gsk_live"}},
	}
	snap := cfg.Snapshot()

	assert.Equal(t, 1, snap["keysConfigured"])
	assert.Equal(t, true, snap["adminAuth"])
	rendered := fmt.Sprintf("%+v", snap)
	for _, secret := range []string{"s3cret", "super-secret", "pw@db", "gsk_live"} {
		assert.NotContains(t, rendered, secret)
	}
}

func TestParseKeys(t *testing.T) {
	got := parseKeys(" a:1 , b:2,broken, :x, c: ")
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, got)
}
