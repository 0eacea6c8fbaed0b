package main

import (
	"testing"

	"github.com/NicolasHaas/discordvoicebridge/pkg/msalogin"
)

func TestEnvOrFallsBackWhenUnsetOrEmpty(t *testing.T) {
	t.Setenv("BRIDGE_TEST_VAR", "")
	if got := envOr("BRIDGE_TEST_VAR_UNSET", "fallback"); got != "fallback" {
		t.Errorf("envOr(unset) = %q, want %q", got, "fallback")
	}
	if got := envOr("BRIDGE_TEST_VAR", "fallback"); got != "fallback" {
		t.Errorf("envOr(empty) = %q, want %q", got, "fallback")
	}
}

func TestEnvOrReturnsSetValue(t *testing.T) {
	t.Setenv("BRIDGE_TEST_VAR", "value")
	if got := envOr("BRIDGE_TEST_VAR", "fallback"); got != "value" {
		t.Errorf("envOr(set) = %q, want %q", got, "value")
	}
}

func TestResolveIdentityOfflineWithoutMSAClientID(t *testing.T) {
	t.Setenv("MSA_CLIENT_ID", "")

	identity, err := resolveIdentity()
	if err != nil {
		t.Fatalf("resolveIdentity: unexpected error: %v", err)
	}
	if identity.Name != "DiscordBridge" {
		t.Errorf("identity.Name = %q, want %q", identity.Name, "DiscordBridge")
	}
	if identity.UUID == (msalogin.Identity{}).UUID {
		t.Error("expected a non-zero offline UUID")
	}
}

func TestResolveIdentityWithMSAClientIDButNoAuthFile(t *testing.T) {
	t.Setenv("MSA_CLIENT_ID", "some-client-id")

	_, err := resolveIdentity()
	if err == nil {
		t.Fatal("expected an error when MSA_CLIENT_ID is set but no .auth.json exists")
	}
}
