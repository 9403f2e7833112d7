package util

import "strings"

// SplitAndTrim splits s on sep and trims whitespace from each element.
// Empty input returns nil. Used for the pipe-separated apn-type list and
// comma-separated fields in the V1-V5 APN serialization format.
func SplitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// FieldOrDefault returns fields[i] if present and non-empty, else def.
// Used when parsing older (V1-V4) APN lines whose trailing fields are absent.
func FieldOrDefault(fields []string, i int, def string) string {
	if i < 0 || i >= len(fields) {
		return def
	}
	if fields[i] == "" {
		return def
	}
	return fields[i]
}
