package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// --- Configuration & Environment ---

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	Silent       bool

	// AudioDataDir holds the download cache and the local tracks.
	AudioDataDir string
	// SettingsImport points at a legacy settings.json imported on first start.
	SettingsImport  string
	YoutubeProxy    string
	PrefetchTimeout time.Duration
	ConnectTimeout  time.Duration
	// DownloadRate caps new download tasks per second across all servers.
	DownloadRate float64
}

var GlobalConfig *Config

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	dataDir := os.Getenv("AUDIO_DATA_DIR")
	if dataDir == "" {
		dataDir = filepath.Join("data", "audio")
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	prefetch, err := durationEnv("AUDIO_PREFETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	connect, err := durationEnv("AUDIO_CONNECT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}

	downloadRate := 2.0
	if v := os.Getenv("AUDIO_DOWNLOAD_RATE"); v != "" {
		downloadRate, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid AUDIO_DOWNLOAD_RATE: %w", err)
		}
	}

	cfg := &Config{
		Token:           os.Getenv("DISCORD_TOKEN"),
		GuildID:         os.Getenv("GUILD_ID"),
		DatabasePath:    dbPath,
		Silent:          silent,
		AudioDataDir:    dataDir,
		SettingsImport:  os.Getenv("AUDIO_SETTINGS_IMPORT"),
		YoutubeProxy:    os.Getenv("YOUTUBE_PROXY"),
		PrefetchTimeout: prefetch,
		ConnectTimeout:  connect,
		DownloadRate:    downloadRate,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if c.PrefetchTimeout <= 0 || c.ConnectTimeout <= 0 {
		return fmt.Errorf("audio timeouts must be positive")
	}
	if c.DownloadRate <= 0 {
		return fmt.Errorf("AUDIO_DOWNLOAD_RATE must be positive")
	}
	return nil
}

// CacheDir is where downloaded songs are kept.
func (c *Config) CacheDir() string {
	return filepath.Join(c.AudioDataDir, "cache")
}

// LocalTracksDir holds one directory per local playlist.
func (c *Config) LocalTracksDir() string {
	return filepath.Join(c.AudioDataDir, "localtracks")
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "bot"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
