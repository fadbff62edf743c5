package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("tablet-abc", "/home/inspector/.local/share/qc")
	original.Remote = RemoteConfig{Type: "s3", S3Bucket: "qc-inbox", S3Prefix: "plant-2", S3Region: "eu-west-1"}
	original.Connectivity = ConnectivityConfig{Type: "file", StateFile: "/run/qc/network"}
	original.EnableEncryption()

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.DeviceID != original.DeviceID {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, original.DeviceID)
	}
	if got.Queue != original.Queue {
		t.Errorf("Queue = %+v, want %+v", got.Queue, original.Queue)
	}
	if got.Sync != original.Sync {
		t.Errorf("Sync = %+v, want %+v", got.Sync, original.Sync)
	}
	if got.Remote != original.Remote {
		t.Errorf("Remote = %+v, want %+v", got.Remote, original.Remote)
	}
	if got.Connectivity != original.Connectivity {
		t.Errorf("Connectivity = %+v, want %+v", got.Connectivity, original.Connectivity)
	}
	if got.Encryption != original.Encryption {
		t.Errorf("Encryption = %+v, want %+v", got.Encryption, original.Encryption)
	}
	if got.Log != original.Log {
		t.Errorf("Log = %+v, want %+v", got.Log, original.Log)
	}
}

func TestManager_Read_HandWritten(t *testing.T) {
	src := `
device_id = "tablet-9"
base_dir = "/data/qc"

[queue]
type = "memory"

[sync]
batch_size = 10
retry_interval = "1m"

[remote]
type = "http"
url = "https://qc.example.com"

[connectivity]
type = "static"
state = "online"
`
	got, err := (&Manager{}).Read(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Sync.BatchSizeOrDefault() != 10 {
		t.Errorf("BatchSizeOrDefault() = %d, want 10", got.Sync.BatchSizeOrDefault())
	}
	d, err := got.Sync.RetryIntervalDuration()
	if err != nil {
		t.Fatalf("RetryIntervalDuration() error = %v", err)
	}
	if d != time.Minute {
		t.Errorf("RetryIntervalDuration() = %v, want 1m", d)
	}
	if got.Connectivity.State != "online" {
		t.Errorf("Connectivity.State = %q, want online", got.Connectivity.State)
	}
}

func TestManager_Read_Invalid(t *testing.T) {
	if _, err := (&Manager{}).Read(strings.NewReader("device_id = ")); err == nil {
		t.Error("Read() expected error for malformed TOML")
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("device-1", "/data/qc")

	if cfg.DeviceID != "device-1" {
		t.Errorf("DeviceID = %q, want %q", cfg.DeviceID, "device-1")
	}
	if cfg.LogDir != "/data/qc/log" {
		t.Errorf("LogDir = %q, want %q", cfg.LogDir, "/data/qc/log")
	}
	if cfg.Queue.DataDir != "/data/qc/queue" {
		t.Errorf("Queue.DataDir = %q, want %q", cfg.Queue.DataDir, "/data/qc/queue")
	}
	if cfg.Encryption.Type != "none" {
		t.Errorf("Encryption.Type = %q, want none", cfg.Encryption.Type)
	}

	cfg.EnableEncryption()
	if cfg.Encryption.Type != "age" {
		t.Errorf("Encryption.Type = %q, want age", cfg.Encryption.Type)
	}
	if cfg.Encryption.PublicKeyPath != "/data/qc/keys/qc.pub" {
		t.Errorf("Encryption.PublicKeyPath = %q, want %q", cfg.Encryption.PublicKeyPath, "/data/qc/keys/qc.pub")
	}
	if cfg.Encryption.PrivateKeyPath != "/data/qc/keys/qc.key" {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", cfg.Encryption.PrivateKeyPath, "/data/qc/keys/qc.key")
	}
}

func TestSyncConfig_Durations(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty uses default", value: "", want: DefaultRetryInterval},
		{name: "explicit", value: "45s", want: 45 * time.Second},
		{name: "zero disables", value: "0s", want: 0},
		{name: "negative", value: "-5s", wantErr: true},
		{name: "garbage", value: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SyncConfig{RetryInterval: tt.value}.RetryIntervalDuration()
			if (err != nil) != tt.wantErr {
				t.Fatalf("RetryIntervalDuration() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("RetryIntervalDuration() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := (SyncConfig{}).BatchSizeOrDefault(); got != DefaultBatchSize {
		t.Errorf("BatchSizeOrDefault() = %d, want %d", got, DefaultBatchSize)
	}
	if _, err := (ConnectivityConfig{ProbeInterval: "0s"}).ProbeIntervalDuration(); err == nil {
		t.Error("ProbeIntervalDuration() expected error for zero interval")
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "qc.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "qc.toml")
		cfg := NewConfig("d1", dir)

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		if err := Init(path, cfg); err == nil {
			t.Fatal("second Init() expected error")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "qc.toml")
		cfg := NewConfig("read-test", dir)
		cfg.Queue = QueueConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.DeviceID != "read-test" {
			t.Errorf("DeviceID = %q, want %q", got.DeviceID, "read-test")
		}
		if got.Queue.Type != "memory" {
			t.Errorf("Queue.Type = %q, want memory", got.Queue.Type)
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ReadFromFile("/nonexistent/path/qc.toml"); err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
