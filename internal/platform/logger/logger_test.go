package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	t.Setenv("LOG_REDACTION_ENABLED", "true")

	out := sanitizeKVs([]interface{}{
		"mux_signature", "t=1,v1=abc",
		"api_key", "sk-123",
		"upload_id", "up_1",
	})
	if len(out) != 6 {
		t.Fatalf("unexpected length: got=%d want=6", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("signature not redacted: got=%v", out[1])
	}
	if out[3] != "[REDACTED]" {
		t.Fatalf("api key not redacted: got=%v", out[3])
	}
	if out[5] != "up_1" {
		t.Fatalf("upload id changed: got=%v want=%q", out[5], "up_1")
	}
}

func TestSanitizeKVsHashesUserIDs(t *testing.T) {
	got := sanitizeValue("owner_user_id", "0b7e2f9e-1111-4444-8888-222233334444")
	s, ok := got.(string)
	if !ok || len(s) != len("hash:")+12 {
		t.Fatalf("unexpected hash value: %v", got)
	}
}

func TestSanitizeKVsOddLength(t *testing.T) {
	out := sanitizeKVs([]interface{}{"status", "ready", "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %v", out)
	}
}
