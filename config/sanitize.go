package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

var sensitiveKeys = []string{"password", "api_key", "secret", "token", "credential", "uri", "public_key"}

// Sanitized 返回隐藏敏感字段后的配置视图，键名与 YAML 一致
func (c *Config) Sanitized() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	redact(out)
	return out, nil
}

// redact 递归地编辑敏感字段
func redact(data map[string]any) {
	for key, value := range data {
		if isSensitive(key) {
			switch v := value.(type) {
			case string:
				if v != "" {
					data[key] = redacted
				}
			case []any:
				if len(v) > 0 {
					data[key] = redacted
				}
			}
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			redact(nested)
		}
	}
}

func isSensitive(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
