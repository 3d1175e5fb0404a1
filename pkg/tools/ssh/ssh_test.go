package ssh

import (
	"testing"

	"github.com/azimuth-ai/azimuth/pkg/engine"
)

func TestBuildCommandQuotesArguments(t *testing.T) {
	tests := []struct {
		name string
		spec engine.ActionSpec
		want string
	}{
		{
			"plain args",
			engine.ActionSpec{Command: "az", Args: []string{"group", "create", "--name", "web-rg"}},
			"az 'group' 'create' '--name' 'web-rg'",
		},
		{
			"no args",
			engine.ActionSpec{Command: "az"},
			"az",
		},
		{
			"arg with spaces",
			engine.ActionSpec{Command: "az", Args: []string{"--tags", "env=prod owner=web team"}},
			"az '--tags' 'env=prod owner=web team'",
		},
		{
			"arg with single quote",
			engine.ActionSpec{Command: "az", Args: []string{"it's"}},
			`az 'it'\''s'`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildCommand(tt.spec); got != tt.want {
				t.Errorf("buildCommand = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewRequiresHostAndUser(t *testing.T) {
	if _, err := New(Config{User: "ops"}); err == nil {
		t.Error("missing host must fail")
	}
	if _, err := New(Config{Host: "bastion"}); err == nil {
		t.Error("missing user must fail")
	}
}

func TestNewRequiresReadableKey(t *testing.T) {
	_, err := New(Config{
		Host:           "bastion",
		User:           "ops",
		PrivateKeyPath: "/nonexistent/id_ed25519",
		KnownHostsPath: "/nonexistent/known_hosts",
	})
	if err == nil {
		t.Fatal("unreadable private key must fail at construction")
	}
}
