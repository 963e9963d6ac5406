package confloader

import (
	"os"
	"path/filepath"
	"testing"
)

type testConfig struct {
	Storage struct {
		Dir            string `koanf:"dir"`
		RetentionCount int    `koanf:"retention_count"`
		Compression    bool   `koanf:"compression"`
	} `koanf:"storage"`
	Log struct {
		Level string `koanf:"level"`
	} `koanf:"log"`
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memkv.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const sampleConfig = `
storage:
  dir: "/var/lib/memkv"
  retention_count: 3
  compression: true
log:
  level: info
`

func TestLoader_File(t *testing.T) {
	l := NewLoader(WithConfigFile(writeConfig(t, sampleConfig)))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Dir != "/var/lib/memkv" || cfg.Storage.RetentionCount != 3 || !cfg.Storage.Compression {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestLoader_FileErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"missing", filepath.Join(t.TempDir(), "absent.yaml")},
		{"not yaml", writeConfig(t, "storage: [unterminated\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg testConfig
			if err := NewLoader(WithConfigFile(tt.path)).Load(&cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"MEMKV_STORAGE_DIR", "storage.dir"},
		{"MEMKV_STORAGE_RETENTION_COUNT", "storage.retention_count"},
		{"MEMKV_LOG_LEVEL", "log.level"},
		{"MEMKV_DEBUG", "debug"},
	}
	for _, tt := range tests {
		if got := envKey(tt.in, "MEMKV_"); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoader_EnvPrefix(t *testing.T) {
	t.Setenv("MEMKV_STORAGE_RETENTION_COUNT", "9")
	t.Setenv("MYAPP_LOG_LEVEL", "warn")

	var cfg testConfig
	if err := NewLoader().Load(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.RetentionCount != 9 {
		t.Errorf("RetentionCount = %d, want 9", cfg.Storage.RetentionCount)
	}
	if cfg.Log.Level != "" {
		t.Errorf("Level = %q, foreign prefix leaked in", cfg.Log.Level)
	}

	var custom testConfig
	if err := NewLoader(WithEnvPrefix("MYAPP_")).Load(&custom); err != nil {
		t.Fatal(err)
	}
	if custom.Log.Level != "warn" {
		t.Errorf("Level = %q, want warn", custom.Log.Level)
	}
}

func TestLoader_Priority(t *testing.T) {
	t.Setenv("MEMKV_STORAGE_DIR", "/from/env")
	t.Setenv("MEMKV_LOG_LEVEL", "warn")

	l := NewLoader(WithConfigFile(writeConfig(t, sampleConfig)))
	l.Override(map[string]any{"log.level": "debug"})
	l.Override(nil)

	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Dir != "/from/env" {
		t.Errorf("Dir = %q, env should override file", cfg.Storage.Dir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q, override should beat env", cfg.Log.Level)
	}
	if cfg.Storage.RetentionCount != 3 {
		t.Errorf("RetentionCount = %d, want 3 from file", cfg.Storage.RetentionCount)
	}
}

func TestLoader_KeepsDefaults(t *testing.T) {
	l := NewLoader(WithConfigFile(writeConfig(t, "log:\n  level: error\n")))
	var cfg testConfig
	cfg.Storage.Dir = "/default"
	cfg.Storage.RetentionCount = 5
	if err := l.Load(&cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Storage.Dir != "/default" || cfg.Storage.RetentionCount != 5 {
		t.Errorf("defaults lost: %+v", cfg.Storage)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
}

// A second Load sees the file as it is now; keys removed from it do not
// linger from the first read.
func TestLoader_LoadTwice(t *testing.T) {
	path := writeConfig(t, sampleConfig)
	l := NewLoader(WithConfigFile(path))
	var cfg testConfig
	if err := l.Load(&cfg); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("log:\n  level: debug\n"), 0644); err != nil {
		t.Fatal(err)
	}
	var again testConfig
	if err := l.Load(&again); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if again.Log.Level != "debug" {
		t.Errorf("Level = %q, want debug", again.Log.Level)
	}
	if again.Storage.Dir != "" {
		t.Errorf("Dir = %q survived its removal from the file", again.Storage.Dir)
	}
}

func TestUnflatten(t *testing.T) {
	got := unflatten(map[string]any{"log.level": "debug", "storage.dir": "/d", "storage.retention_count": 2, "top": true})
	storage, ok := got["storage"].(map[string]any)
	if !ok || storage["dir"] != "/d" || storage["retention_count"] != 2 {
		t.Errorf("storage = %v", got["storage"])
	}
	if got["top"] != true {
		t.Errorf("top = %v", got["top"])
	}
}
