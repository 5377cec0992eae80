package main

import (
	"slotgateway/internal/config"
	"slotgateway/internal/provider"
	"slotgateway/internal/provider/huggingface"
	"slotgateway/internal/provider/openai"
	"slotgateway/internal/slots"
)

// buildAdapters registers one adapter per provider kind, all sharing a single HTTP client.
func buildAdapters(cfg config.Config) *provider.Registry {
	ccfg := provider.DefaultClientConfig()
	if cfg.UpstreamTimeout > 0 {
		ccfg.Timeout = cfg.UpstreamTimeout
	}
	client := provider.NewClient(ccfg)

	reg := provider.NewRegistry(provider.NewMockAdapter())
	for _, kind := range []slots.ProviderKind{slots.KindGroq, slots.KindMoonshot, slots.KindOpenAI} {
		reg.Register(openai.NewAdapter(kind,
			openai.WithBaseURL(cfg.ProviderURLs[kind]),
			openai.WithClient(client),
		))
	}
	hfURL := cfg.ProviderURLs[slots.KindHuggingFace]
	if hfURL == "" {
		hfURL = huggingface.DefaultBaseURL
	}
	reg.Register(huggingface.NewAdapter(hfURL, client))
	return reg
}
