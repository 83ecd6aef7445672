package config

import "strings"

// MaskSecret hides all but the last four characters of a secret.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("*", 8)
	}
	return strings.Repeat("*", 8) + s[len(s)-4:]
}

// Redacted returns a copy of the config that is safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.WebsiteURLs = append([]string(nil), c.WebsiteURLs...)
	out.Evaluation.ReviewKeywords = append([]string(nil), c.Evaluation.ReviewKeywords...)
	out.Gemini.APIKey = MaskSecret(c.Gemini.APIKey)
	return &out
}
