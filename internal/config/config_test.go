package config

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("INVOICE_DEFAULT_DUE_DAYS", "")
	t.Setenv("CORS_ORIGINS", "")
	t.Setenv("PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Env != "development" || cfg.Server.Port != "8080" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Finance.DefaultDueDays != 30 {
		t.Fatalf("expected 30 default due days, got %d", cfg.Finance.DefaultDueDays)
	}
	if len(cfg.JWTSecret) == 0 {
		t.Fatal("expected a development secret")
	}
	if len(cfg.Server.CORSOrigins) != 2 {
		t.Fatalf("expected default CORS origins, got %v", cfg.Server.CORSOrigins)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "staging")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_MAX_OPEN_CONNS", "7")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90s")
	t.Setenv("DB_LOG_LEVEL", "silent")
	t.Setenv("CORS_ORIGINS", " https://a.test , ,https://b.test")
	t.Setenv("INVOICE_DEFAULT_DUE_DAYS", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DB.Host != "db.internal" || cfg.DB.MaxOpenConns != 7 || cfg.DB.ConnMaxLifetime != 90*time.Second {
		t.Fatalf("unexpected db config: %+v", cfg.DB)
	}
	if cfg.DB.LogLevel != gormlogger.Silent {
		t.Fatalf("expected silent gorm logging, got %v", cfg.DB.LogLevel)
	}
	if got := cfg.Server.CORSOrigins; len(got) != 2 || got[0] != "https://a.test" || got[1] != "https://b.test" {
		t.Fatalf("unexpected CORS origins: %v", got)
	}
	if cfg.Finance.DefaultDueDays != 14 {
		t.Fatalf("expected 14 due days, got %d", cfg.Finance.DefaultDueDays)
	}
}

func TestLoad_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error without JWT_SECRET in production")
	}

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.IsProduction() || string(cfg.JWTSecret) != "s3cret" {
		t.Fatalf("unexpected production config: env=%s", cfg.Server.Env)
	}
}

func TestLoad_RejectsNonPositiveDueDays(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("INVOICE_DEFAULT_DUE_DAYS", "0")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for zero due days")
	}
}

func TestDSN(t *testing.T) {
	c := DBConfig{Host: "h", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "require"}
	if got, want := c.DSN(), "postgres://u:p@h:5432/n?sslmode=require"; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestLoad_MissingEnvFileIsLogged(t *testing.T) {
	t.Setenv("APP_ENV", "")
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	if _, err := Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !strings.Contains(buf.String(), "No configs/.env file found") {
		t.Fatalf("expected the missing .env notice on the standard logger, got %q", buf.String())
	}
}
