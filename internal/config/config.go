// Package config loads the gateway configuration from the environment once at start.
package config

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"slotgateway/internal/logger"
	"slotgateway/internal/secrets"
	"slotgateway/internal/slots"
)

// DefaultReservedPromptIDs are the structured-tree prompts served by reserved slots.
var DefaultReservedPromptIDs = []string{
	"arbol_jerarquico_bc3",
	"bc3_json_bloque_inicio",
	"bc3_json_bloque_intermedio",
	"bc3_json_bloque_final",
	"bc3_a_json_estructurado",
}

// DefaultQuotaInfo describes each provider's published limits.
var DefaultQuotaInfo = map[slots.ProviderKind]string{
	slots.KindGroq:        "60 requests/min, 1,000/day. 10K tokens/min, 300K tokens/day.",
	slots.KindMoonshot:    "Limits depend on the account tier at platform.moonshot.cn",
	slots.KindHuggingFace: "Limits depend on the model at router.huggingface.co",
	slots.KindOpenAI:      "Limits depend on the account tier at platform.openai.com",
	slots.KindMock:        "unlimited",
}

type Config struct {
	ListenAddr     string
	APIKeys        map[string]string
	AdminJWTSecret string
	CORSOrigins    []string

	Slots             []slots.Slot
	DefaultModel      string
	ProviderURLs      map[slots.ProviderKind]string
	ReservedPromptIDs []string

	Temperature       float64
	MaxTokens         int
	MaxTokensReserved int
	TokenBudget       int
	MaxBodyBytes      int
	SameSlotRetries   int
	UpstreamTimeout   time.Duration

	RedisURL      string
	UsageDBDriver string
	UsageDBDSN    string
	UsageBuffer   int
	TraceBuffer   int
	KafkaBrokers  []string
	KafkaTopic    string
	OTLPEndpoint  string
	OTLPSampling  float64
}

// Load reads the environment, resolving credentials through Infisical when
// INFISICAL_TOKEN is set and falling back to environment variables.
func Load() Config {
	log := logger.WithComponent("config")

	src := secrets.Chain{secrets.EnvSource{}}
	infisicalCfg := secrets.LoadConfig()
	if infisicalCfg.Token != "" {
		client, err := secrets.NewClient(infisicalCfg)
		if err != nil {
			log.Warn("Failed to initialize Infisical client, falling back to env vars", "error", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := client.Health(ctx)
			cancel()
			if err != nil {
				log.Warn("Infisical health check failed, falling back to env vars", "error", err)
			} else {
				log.Info("Connected to Infisical for secrets management")
				src = secrets.Chain{client, secrets.EnvSource{}}
			}
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return LoadWith(ctx, src)
}

// LoadWith reads the environment and resolves secrets from src.
func LoadWith(ctx context.Context, src secrets.Source) Config {
	cfg := Config{
		ListenAddr:     getenv("LISTEN_ADDR", ":8090"),
		APIKeys:        parseKeys(secret(ctx, src, "api_keys")),
		AdminJWTSecret: secret(ctx, src, "admin_jwt_secret"),
		CORSOrigins:    splitList(getenv("CORS_ALLOWED_ORIGINS", "*")),

		DefaultModel: slots.NormalizeModel(getenvAny("openai/gpt-oss-120b", "DEFAULT_MODEL", "GROQ_MODEL")),
		ProviderURLs: map[slots.ProviderKind]string{
			slots.KindGroq:        getenv("GROQ_API_URL", ""),
			slots.KindMoonshot:    getenv("MOONSHOT_API_URL", ""),
			slots.KindOpenAI:      getenv("OPENAI_API_URL", ""),
			slots.KindHuggingFace: getenv("HUGGINGFACE_API_URL", ""),
		},
		ReservedPromptIDs: DefaultReservedPromptIDs,

		Temperature:       getenvFloat("TEMPERATURE", 0.2),
		MaxTokens:         getenvInt("MAX_TOKENS", 4096),
		MaxTokensReserved: getenvInt("MAX_TOKENS_RESERVED", 8192),
		TokenBudget:       getenvInt("TOKEN_BUDGET", 0),
		MaxBodyBytes:      getenvInt("MAX_BODY_BYTES", 900000),
		SameSlotRetries:   getenvInt("SAME_SLOT_RETRIES", 3),
		UpstreamTimeout:   time.Duration(getenvInt("UPSTREAM_TIMEOUT_SECONDS", 120)) * time.Second,

		RedisURL:      getenv("REDIS_URL", ""),
		UsageDBDriver: getenv("USAGE_DB_DRIVER", ""),
		UsageDBDSN:    secret(ctx, src, "usage_db_dsn"),
		UsageBuffer:   getenvInt("USAGE_BUFFER", 1000),
		TraceBuffer:   getenvInt("TRACE_BUFFER", 2000),
		KafkaBrokers:  splitList(getenv("KAFKA_BROKERS", "")),
		KafkaTopic:    getenv("KAFKA_TOPIC", ""),
		OTLPEndpoint:  getenv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPSampling:  getenvFloat("OTEL_SAMPLING_RATIO", 1),
	}
	if raw := getenv("RESERVED_PROMPT_IDS", ""); raw != "" {
		cfg.ReservedPromptIDs = splitList(raw)
	}

	reserved := map[int]bool{}
	for _, item := range splitList(getenvAny("", "RESERVED_SLOTS", "GROQ_LLAVE_SOLO_BC3", "LLAVE_SOLO_BC3")) {
		if id, err := strconv.Atoi(item); err == nil {
			reserved[id] = true
		}
	}
	cfg.Slots = loadSlots(ctx, src, getenvInt("SLOT_COUNT", 5), reserved)
	return cfg
}

// ModelDefaults returns the per-provider default models, with DefaultModel for groq.
func (c Config) ModelDefaults() map[slots.ProviderKind]string {
	return map[slots.ProviderKind]string{slots.KindGroq: c.DefaultModel}
}

// Snapshot is the redacted view served by the admin API.
func (c Config) Snapshot() map[string]any {
	slotView := make([]map[string]any, 0, len(c.Slots))
	for _, s := range c.Slots {
		slotView = append(slotView, map[string]any{
			"id":         s.ID,
			"provider":   s.Kind,
			"model":      s.Model,
			"name":       s.Name,
			"configured": s.Configured(),
			"reserved":   s.Reserved,
		})
	}
	return map[string]any{
		"listenAddr":        c.ListenAddr,
		"keysConfigured":    len(c.APIKeys),
		"adminAuth":         c.AdminJWTSecret != "",
		"slots":             slotView,
		"defaultModel":      c.DefaultModel,
		"reservedPromptIds": c.ReservedPromptIDs,
		"temperature":       c.Temperature,
		"maxTokens":         c.MaxTokens,
		"maxTokensReserved": c.MaxTokensReserved,
		"tokenBudget":       c.TokenBudget,
		"maxBodyBytes":      c.MaxBodyBytes,
		"sameSlotRetries":   c.SameSlotRetries,
		"redis":             c.RedisURL != "",
		"usageDriver":       c.UsageDBDriver,
		"kafka":             len(c.KafkaBrokers) > 0,
		"tracing":           c.OTLPEndpoint != "",
	}
}

// legacy variable names per slot identity
var legacyKeys = map[int][]string{
	1: {"GROQ_API_KEY"},
	2: {"GROQ_API_KEY_2"},
	3: {"GROQ_API_KEY_3"},
	4: {"GROQ_API_KEY_4"},
	5: {"HUGGINGFACE_API_KEY", "HF_TOKEN"},
}

const huggingFaceSlot = 5

func loadSlots(ctx context.Context, src secrets.Source, count int, reserved map[int]bool) []slots.Slot {
	log := logger.WithComponent("config")
	if count <= 0 {
		count = 5
	}

	out := make([]slots.Slot, 0, count)
	for n := 1; n <= count; n++ {
		prefix := "SLOT_" + strconv.Itoa(n) + "_"

		credential := secret(ctx, src, strings.ToLower(prefix)+"api_key")
		if credential == "" {
			credential = getenvAny("", legacyKeys[n]...)
		}

		defaultKind := slots.KindGroq
		if n == huggingFaceSlot {
			defaultKind = slots.KindHuggingFace
		}
		kind := defaultKind
		if raw := getenv(prefix+"PROVIDER", ""); raw != "" {
			k, ok := slots.ParseKind(raw)
			if !ok {
				log.Warn("unknown slot provider, using default", "slot_id", n, "provider", raw)
			} else {
				kind = k
			}
		}

		modelVars := []string{
			prefix + "MODEL",
			"GROQ_LLAVE_" + strconv.Itoa(n) + "_MODELO",
			"GROQ_MODEL_" + strconv.Itoa(n),
			"KIMI_LLAVE_" + strconv.Itoa(n) + "_MODELO",
		}
		if n == huggingFaceSlot {
			modelVars = append(modelVars, "HUGGINGFACE_MODEL_ID")
		}

		quotaInfo := getenv(prefix+"QUOTA_INFO", DefaultQuotaInfo[kind])

		out = append(out, slots.Slot{
			ID:         n,
			Kind:       kind,
			Credential: credential,
			Model:      getenvAny("", modelVars...),
			Name:       getenvAny("", prefix+"NAME", "GROQ_LLAVE_"+strconv.Itoa(n)+"_NOMBRE"),
			QuotaInfo:  quotaInfo,
			Reserved:   reserved[n],
		})
	}
	return out
}

func secret(ctx context.Context, src secrets.Source, key string) string {
	if src == nil {
		return ""
	}
	v, err := src.GetSecret(ctx, key)
	if err != nil {
		if !errors.Is(err, secrets.ErrNotFound) {
			logger.WithComponent("config").Warn("secret lookup failed", "key", key, "error", err.Error())
		}
		return ""
	}
	return strings.TrimSpace(v)
}

// parseKeys parses comma-separated name:secret pairs
func parseKeys(raw string) map[string]string {
	out := map[string]string{}
	for _, item := range strings.Split(raw, ",") {
		kv := strings.SplitN(strings.TrimSpace(item), ":", 2)
		if len(kv) != 2 {
			continue
		}
		name := strings.TrimSpace(kv[0])
		secret := strings.TrimSpace(kv[1])
		if name != "" && secret != "" {
			out[name] = secret
		}
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getenv(k, fallback string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return fallback
	}
	return v
}

// getenvAny returns the first non-empty variable among keys.
func getenvAny(fallback string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return fallback
}

func getenvInt(k string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func getenvFloat(k string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(k))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
