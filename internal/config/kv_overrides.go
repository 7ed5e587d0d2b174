package config

import (
	"strconv"
	"strings"
)

// ApplyKVOverrides applies free-form -c key=value overrides. Unknown keys and
// unparsable values are ignored.
func ApplyKVOverrides(cfg Config, overrides []string) Config {
	if len(overrides) == 0 {
		return cfg
	}
	for _, raw := range overrides {
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		switch key {
		case "url":
			cfg.URL = val
		case "token":
			cfg.Token = val
		case "model":
			cfg.Model = val
		case "catalog":
			cfg.Catalog = val
		case "log_level":
			cfg.LogLevel = val
		case "max_tokens":
			if n, err := strconv.Atoi(val); err == nil {
				cfg.MaxTokens = n
			}
		case "temperature":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.Temperature = f
			}
		case "top_p":
			if f, err := strconv.ParseFloat(val, 64); err == nil {
				cfg.TopP = f
			}
		case "request_timeout_seconds":
			if n, err := strconv.Atoi(val); err == nil {
				cfg.RequestTimeoutSeconds = n
			}
		case "idle_timeout_seconds":
			if n, err := strconv.Atoi(val); err == nil {
				cfg.IdleTimeoutSeconds = n
			}
		case "validate_arguments":
			if b, err := strconv.ParseBool(val); err == nil {
				cfg.ValidateArguments = b
			}
		case "gateway.listen":
			cfg.Gateway.Listen = val
		case "gateway.region":
			cfg.Gateway.Region = val
		case "gateway.llama_model_id":
			cfg.Gateway.LlamaModelID = val
		case "gateway.nova_model_id":
			cfg.Gateway.NovaModelID = val
		}
	}
	return cfg
}
