package mysqlsource

import (
	"strings"
	"testing"
)

func TestConfig_FormatDSN(t *testing.T) {
	cfg := Config{Host: "db.local", User: "bot", Password: "pw", Database: "squad"}
	dsn := cfg.FormatDSN()
	if !strings.HasPrefix(dsn, "bot:pw@tcp(db.local:3306)/squad") {
		t.Fatalf("unexpected dsn %q", dsn)
	}
	if !strings.Contains(dsn, "parseTime=true") {
		t.Errorf("dsn should enable parseTime: %q", dsn)
	}
	if !strings.Contains(dsn, "loc=Local") {
		t.Errorf("dsn should use the local zone: %q", dsn)
	}

	cfg.Port = 3307
	if dsn := cfg.FormatDSN(); !strings.Contains(dsn, "tcp(db.local:3307)") {
		t.Errorf("custom port ignored: %q", dsn)
	}

	explicit := Config{DSN: "u:p@tcp(h:1)/d", Host: "ignored"}
	if got := explicit.FormatDSN(); got != "u:p@tcp(h:1)/d" {
		t.Errorf("explicit dsn should win, got %q", got)
	}
}
