package vault

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"fibonacci-trading-bot/config"
)

func TestDisabledVaultReportsNotFound(t *testing.T) {
	client, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if _, err := client.GetAPIKey(context.Background()); err == nil {
		t.Error("Expected error from disabled vault, got nil")
	}
}

func TestGetAPIKeyReadsKVv2Secret(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		if r.URL.Path != "/v1/secret/data/fibonacci-bot/api-keys" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-Vault-Token") != "test-token" {
			t.Errorf("Expected vault token header, got %q", r.Header.Get("X-Vault-Token"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"data":{"api_key":"key-123","secret_key":"secret-456"}}}`))
	}))
	defer server.Close()

	client, err := NewClient(config.VaultConfig{
		Enabled:    true,
		Address:    server.URL,
		Token:      "test-token",
		MountPath:  "secret",
		SecretPath: "fibonacci-bot/api-keys",
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	keys, err := client.GetAPIKey(context.Background())
	if err != nil {
		t.Fatalf("GetAPIKey returned error: %v", err)
	}
	if keys.APIKey != "key-123" || keys.SecretKey != "secret-456" {
		t.Errorf("Unexpected credentials: %+v", keys)
	}

	// Second lookup is served from cache.
	if _, err := client.GetAPIKey(context.Background()); err != nil {
		t.Fatalf("Cached GetAPIKey returned error: %v", err)
	}
	if requests != 1 {
		t.Errorf("Expected 1 vault request, got %d", requests)
	}
}
