package gcp

import (
	"encoding/base64"
	"os"
	"strings"

	"google.golang.org/api/option"
)

// credentialVars are checked in order; the first non-empty one wins.
var credentialVars = []string{
	"OBJECT_STORAGE_CREDENTIALS",
	"GOOGLE_APPLICATION_CREDENTIALS_JSON",
	"GOOGLE_APPLICATION_CREDENTIALS",
}

// ClientOptionsFromEnv returns storage client credentials. A value may be
// inline JSON, base64-encoded JSON or a key file path. Nothing set means
// application default credentials.
func ClientOptionsFromEnv() []option.ClientOption {
	for _, name := range credentialVars {
		raw := strings.TrimSpace(os.Getenv(name))
		if raw == "" {
			continue
		}
		if js, ok := credentialsJSON(raw); ok {
			return []option.ClientOption{option.WithCredentialsJSON(js)}
		}
		return []option.ClientOption{option.WithCredentialsFile(raw)}
	}
	return nil
}

func credentialsJSON(raw string) ([]byte, bool) {
	if strings.HasPrefix(raw, "{") {
		return []byte(raw), true
	}
	if dec, err := base64.StdEncoding.DecodeString(raw); err == nil {
		if s := strings.TrimSpace(string(dec)); strings.HasPrefix(s, "{") {
			return []byte(s), true
		}
	}
	return nil, false
}
