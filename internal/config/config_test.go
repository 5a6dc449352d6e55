package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"TRANSFER_FLAT_FEE_CENTS",
		"TRANSFER_FEE_WAIVER_THRESHOLD_CENTS",
		"TRANSFER_PER_TRANSFER_LIMIT_CENTS",
		"TRANSFER_DRAFT_TTL_MINUTES",
		"TRANSFER_PIN_MAX_ATTEMPTS",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.FlatFeeCents != 299 {
		t.Fatalf("expected default flat fee 299, got %d", cfg.FlatFeeCents)
	}
	if cfg.FeeWaiverThresholdCents != 10000 {
		t.Fatalf("expected default waiver threshold 10000, got %d", cfg.FeeWaiverThresholdCents)
	}
	if cfg.PerTransferLimitCents != 500000 {
		t.Fatalf("expected default per-transfer limit 500000, got %d", cfg.PerTransferLimitCents)
	}
	if cfg.DraftTTLMinutes != 60 {
		t.Fatalf("expected default draft TTL 60 minutes, got %d", cfg.DraftTTLMinutes)
	}
	if cfg.PINMaxAttempts != 3 {
		t.Fatalf("expected default pin attempt bound 3, got %d", cfg.PINMaxAttempts)
	}
}

func TestLoadConfig_CoercesNegativeFlatFee(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TRANSFER_FLAT_FEE_CENTS", "-100")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.FlatFeeCents != 0 {
		t.Fatalf("expected negative flat fee coerced to 0, got %d", cfg.FlatFeeCents)
	}
}

func TestConfig_CurrenciesNormalized(t *testing.T) {
	cfg := Config{SupportedCurrencies: " usd, EUR ,,gbp "}
	got := cfg.Currencies()
	want := []string{"USD", "EUR", "GBP"}
	if len(got) != len(want) {
		t.Fatalf("expected %d currencies, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected currency %q at index %d, got %q", want[i], i, got[i])
		}
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
