package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GetMaxFileSizeBytes() != 10*1024*1024 {
		t.Errorf("expected 10MiB cap, got %d", cfg.GetMaxFileSizeBytes())
	}
	if cfg.BlobBackend != BackendLocal {
		t.Errorf("expected local blob backend, got %s", cfg.BlobBackend)
	}
	if cfg.PublicPrefix != "/uploads" {
		t.Errorf("unexpected public prefix %s", cfg.PublicPrefix)
	}
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "musicbox.yaml")
	content := "service_port: \"9090\"\nblob_backend: minio\nmax_file_size_mb: 20\ncors_origins: [\"https://example.com\"]\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv(EnvConfigFile, path)
	t.Setenv("MAX_FILE_SIZE_MB", "15")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.GetListenAddr() != ":9090" {
		t.Errorf("expected :9090 from file, got %s", cfg.GetListenAddr())
	}
	if cfg.BlobBackend != BackendMinIO {
		t.Errorf("expected minio from file, got %s", cfg.BlobBackend)
	}
	if cfg.MaxFileSizeMB != 15 {
		t.Errorf("expected env to override file, got %d", cfg.MaxFileSizeMB)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://example.com" {
		t.Errorf("unexpected cors origins %v", cfg.CORSOrigins)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"unknown blob backend", func(c *Config) { c.BlobBackend = "s3" }, true},
		{"unknown doc backend", func(c *Config) { c.DocBackend = "postgres" }, true},
		{"zero size", func(c *Config) { c.MaxFileSizeMB = 0 }, true},
		{"bad thumbnail width", func(c *Config) { c.ThumbnailWidth = 0 }, true},
		{"thumbnails off ignores width", func(c *Config) { c.ThumbnailsEnabled = false; c.ThumbnailWidth = 0 }, false},
		{"local without dir", func(c *Config) { c.UploadDir = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("CORS_ORIGINS", " http://a.test, ,http://b.test ")
	got := getEnvAsList("CORS_ORIGINS", nil)
	if len(got) != 2 || got[0] != "http://a.test" || got[1] != "http://b.test" {
		t.Errorf("unexpected list %v", got)
	}
}
