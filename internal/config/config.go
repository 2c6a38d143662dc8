package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const defaultTemperature = 0.1

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port" validate:"min=1,max=65535"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Auth struct {
		APIToken string `yaml:"api_token" validate:"required"`
	} `yaml:"auth"`

	Workers struct {
		Count int `yaml:"count" validate:"min=1"`
	} `yaml:"workers"`

	Storage struct {
		TempDir   string `yaml:"temp_dir" validate:"required"`
		OutputDir string `yaml:"output_dir" validate:"required"`
		Database  string `yaml:"database" validate:"required"`
	} `yaml:"storage"`

	Cache struct {
		Backend string `yaml:"backend" validate:"oneof=file sqlite redis"`
		Redis   struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`

	Fetch struct {
		TimeoutSeconds int `yaml:"timeout_seconds" validate:"min=1"`
	} `yaml:"fetch"`

	Audio struct {
		FFmpegPath string `yaml:"ffmpeg_path"`
		SampleRate int    `yaml:"sample_rate" validate:"min=8000"`
	} `yaml:"audio"`

	Diarization struct {
		URL            string `yaml:"url" validate:"required,url"`
		Token          string `yaml:"token"`
		TimeoutSeconds int    `yaml:"timeout_seconds" validate:"min=1"`
		MinSpeakers    int    `yaml:"min_speakers" validate:"min=0"`
		MaxSpeakers    int    `yaml:"max_speakers" validate:"min=0"`
	} `yaml:"diarization"`

	Transcription struct {
		Provider string `yaml:"provider" validate:"oneof=openai whisper"`
		OpenAI   struct {
			APIKey  string `yaml:"api_key"`
			BaseURL string `yaml:"base_url"`
			Model   string `yaml:"model"`
		} `yaml:"openai"`
		Whisper struct {
			ModelPath string `yaml:"model_path"`
			Threads   int    `yaml:"threads"`
			Device    string `yaml:"device"`
			Language  string `yaml:"language"`
		} `yaml:"whisper"`
	} `yaml:"transcription"`

	Translation struct {
		APIKey      string  `yaml:"api_key"`
		BaseURL     string  `yaml:"base_url"`
		Model       string  `yaml:"model"`
		MaxTokens   int     `yaml:"max_tokens" validate:"min=1"`
		Temperature float32 `yaml:"temperature" validate:"min=0,max=2"`
	} `yaml:"translation"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes" validate:"min=1"`
		MaxAgeHours     int `yaml:"max_age_hours" validate:"min=1"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Limits struct {
		MaxFileSizeMB int `yaml:"max_file_size_mb" validate:"min=1"`
	} `yaml:"limits"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format" validate:"oneof=json console"`
	} `yaml:"logging"`
}

// Load reads the YAML file at path, merges secrets from the environment
// (and a .env file in the working directory, when present) and validates
// the result.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(file)
}

// Parse decodes YAML config bytes, then applies defaults, environment
// overrides and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	// Zero is a meaningful temperature, so its default is seeded before
	// decoding rather than filled in afterwards.
	cfg.Translation.Temperature = defaultTemperature
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8962
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = 4
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "temp"
	}
	if c.Storage.OutputDir == "" {
		c.Storage.OutputDir = "outputs"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "transcripts.db"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "transcript"
	}
	if c.Fetch.TimeoutSeconds == 0 {
		c.Fetch.TimeoutSeconds = 120
	}
	if c.Audio.FFmpegPath == "" {
		c.Audio.FFmpegPath = "ffmpeg"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Diarization.URL == "" {
		c.Diarization.URL = "http://localhost:8388"
	}
	if c.Diarization.TimeoutSeconds == 0 {
		c.Diarization.TimeoutSeconds = 600
	}
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = "openai"
	}
	if c.Transcription.OpenAI.Model == "" {
		c.Transcription.OpenAI.Model = "whisper-1"
	}
	if c.Translation.Model == "" {
		c.Translation.Model = "gpt-4o"
	}
	if c.Translation.MaxTokens == 0 {
		c.Translation.MaxTokens = 4096
	}
	if c.Cleanup.IntervalMinutes == 0 {
		c.Cleanup.IntervalMinutes = 30
	}
	if c.Cleanup.MaxAgeHours == 0 {
		c.Cleanup.MaxAgeHours = 6
	}
	if c.GoogleDrive.FolderName == "" {
		c.GoogleDrive.FolderName = "Call Transcripts"
	}
	if c.Limits.MaxFileSizeMB == 0 {
		c.Limits.MaxFileSizeMB = 200
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// applyEnv lets secrets live outside the config file. Variable names
// follow the deployment's existing .env conventions.
func (c *Config) applyEnv() {
	if v := os.Getenv("API_TOKEN"); v != "" {
		c.Auth.APIToken = v
	}
	if v := firstEnv("TRANSCRIPTION_API", "OPENAI_API_KEY"); v != "" {
		if c.Transcription.OpenAI.APIKey == "" {
			c.Transcription.OpenAI.APIKey = v
		}
		if c.Translation.APIKey == "" {
			c.Translation.APIKey = v
		}
	}
	if v := os.Getenv("USER_AUTH_TOKEN"); v != "" {
		c.Diarization.Token = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
