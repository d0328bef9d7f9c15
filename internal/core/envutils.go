package core

import "os"

// GetEnv retrieves an environment variable, checking both the standard name
// and an HSP-prefixed version. Returns the first non-empty value found.
// This lets HEADAS and PFILES be overridden for hsp alone (HSP_HEADAS, HSP_PFILES)
// without disturbing other toolkit consumers.
func GetEnv(key string) string {
	if val := os.Getenv("HSP_" + key); val != "" {
		return val
	}
	return os.Getenv(key)
}

// MergeEnv returns base with every key in overrides set, replacing any existing
// assignment of the same key. Order of base is preserved; new keys are appended.
func MergeEnv(base []string, overrides map[string]string) []string {
	merged := make([]string, 0, len(base)+len(overrides))
	seen := make(map[string]struct{}, len(overrides))
	for _, kv := range base {
		key := kv
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				key = kv[:i]
				break
			}
		}
		if val, ok := overrides[key]; ok {
			merged = append(merged, key+"="+val)
			seen[key] = struct{}{}
			continue
		}
		merged = append(merged, kv)
	}
	for _, key := range sortedKeys(overrides) {
		if _, ok := seen[key]; ok {
			continue
		}
		merged = append(merged, key+"="+overrides[key])
	}
	return merged
}
