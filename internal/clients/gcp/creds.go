package gcp

import (
	"os"
	"strings"

	"google.golang.org/api/option"
)

// ClientOptionsFromEnv resolves Application Default Credentials from either
// an inline JSON blob or a file path, falling back to ADC discovery when
// neither is set (e.g. GCE/GKE workload identity, or the GCS emulator).
func ClientOptionsFromEnv() []option.ClientOption {
	if raw := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON")); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func ptrFloat(f float64) *float64 { return &f }

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
