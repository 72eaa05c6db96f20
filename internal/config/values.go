package config

import (
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// stringList accepts a YAML list, a comma separated env value or repeated flags.
func stringList(v *viper.Viper, key string) []string {
	raw := v.Get(key)
	if s, ok := raw.(string); ok {
		raw = strings.Split(s, ",")
	}
	var out []string
	for _, item := range cast.ToStringSlice(raw) {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// symbolMap accepts a YAML mapping or SYMBOL=value pairs from flags and env.
func symbolMap(v *viper.Viper, key string) map[string]string {
	switch raw := v.Get(key).(type) {
	case nil:
		return map[string]string{}
	case string:
		return parsePairs(strings.Split(raw, ","))
	case []string:
		return parsePairs(raw)
	case []interface{}:
		return parsePairs(cast.ToStringSlice(raw))
	default:
		out := make(map[string]string)
		for k, val := range cast.ToStringMapString(raw) {
			if k, val = strings.TrimSpace(k), strings.TrimSpace(val); k != "" && val != "" {
				out[k] = val
			}
		}
		return out
	}
}

func parsePairs(pairs []string) map[string]string {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		if k, val = strings.TrimSpace(k), strings.TrimSpace(val); k != "" && val != "" {
			out[k] = val
		}
	}
	return out
}
