package database

import (
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestDSN(t *testing.T) {
	dsn := DSN("app", "s3cret", "db.local", "3306", "settlement")
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		t.Fatalf("ParseDSN(%q): %v", dsn, err)
	}
	if cfg.User != "app" || cfg.Passwd != "s3cret" || cfg.Addr != "db.local:3306" || cfg.DBName != "settlement" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.ParseTime || !cfg.ClientFoundRows || cfg.Loc.String() != "UTC" {
		t.Fatalf("flags: parseTime=%v clientFoundRows=%v loc=%v", cfg.ParseTime, cfg.ClientFoundRows, cfg.Loc)
	}
}

func TestSchemaCoversTables(t *testing.T) {
	want := []string{"users", "refresh_tokens", "user_profiles", "rooms", "participants", "payments", "signature_requests"}
	if len(schema) != len(want) {
		t.Fatalf("schema has %d statements, want %d", len(schema), len(want))
	}
	for i, table := range want {
		if !containsTable(schema[i], table) {
			t.Errorf("statement %d does not create %s", i, table)
		}
	}
}

func containsTable(stmt, table string) bool {
	needle := "CREATE TABLE IF NOT EXISTS " + table + " "
	for i := 0; i+len(needle) <= len(stmt); i++ {
		if stmt[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
