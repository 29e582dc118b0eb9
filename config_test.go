package goToken

import (
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults with keys", mutate: nil, wantErr: false},
		{name: "zero access ttl", mutate: func(c *Config) { c.JWT.AccessTTL = 0 }, wantErr: true},
		{name: "refresh not longer than access", mutate: func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL }, wantErr: true},
		{name: "unknown signing method", mutate: func(c *Config) { c.JWT.SigningMethod = "rs256" }, wantErr: true},
		{name: "ed25519 without private key", mutate: func(c *Config) { c.JWT.PrivateKey = nil }, wantErr: true},
		{name: "ed25519 without public key", mutate: func(c *Config) { c.JWT.PublicKey = nil }, wantErr: true},
		{name: "short hs256 key", mutate: func(c *Config) {
			c.JWT.SigningMethod = "hs256"
			c.JWT.PrivateKey = []byte("short")
		}, wantErr: true},
		{name: "missing issuer", mutate: func(c *Config) { c.JWT.Issuer = "" }, wantErr: true},
		{name: "missing audience", mutate: func(c *Config) { c.JWT.Audience = "" }, wantErr: true},
		{name: "oversized leeway", mutate: func(c *Config) { c.JWT.Leeway = 5 * time.Minute }, wantErr: true},
		{name: "negative retention", mutate: func(c *Config) { c.Ledger.RetentionDays = -1 }, wantErr: true},
		{name: "cap without evict batch", mutate: func(c *Config) {
			c.Ledger.MaxEntries = 100
			c.Ledger.EvictBatchSize = 0
		}, wantErr: true},
		{name: "throttle without budget", mutate: func(c *Config) {
			c.Security.EnableRefreshThrottle = true
			c.Security.MaxRefreshAttempts = 0
		}, wantErr: true},
		{name: "throttle disabled ignores budget", mutate: func(c *Config) {
			c.Security.EnableRefreshThrottle = false
			c.Security.MaxRefreshAttempts = 0
		}, wantErr: false},
		{name: "sweep without interval", mutate: func(c *Config) {
			c.Sweep.Enabled = true
			c.Sweep.Interval = 0
		}, wantErr: true},
		{name: "audit without buffer", mutate: func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestCloneConfigCopiesKeyMaterial(t *testing.T) {
	cfg := testConfig(t)
	clone := cloneConfig(cfg)

	clone.JWT.PrivateKey[0] ^= 0xff
	if cfg.JWT.PrivateKey[0] == clone.JWT.PrivateKey[0] {
		t.Fatal("clone shares private key backing array")
	}
}
