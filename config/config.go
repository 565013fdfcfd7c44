package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Pipeline struct {
	Name      string `mapstructure:"name" yaml:"name"`
	Version   string `mapstructure:"version" yaml:"version"`
	LogLvl    string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

type Audio struct {
	SampleRate     int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	SegmentSeconds float64 `mapstructure:"segment_seconds" yaml:"segment_seconds"`
	// MinDuration rejects clips shorter than this many seconds. 0 disables the check.
	MinDuration float64 `mapstructure:"min_duration_seconds" yaml:"min_duration_seconds"`
	FFmpeg      string  `mapstructure:"ffmpeg" yaml:"ffmpeg"`
}

type Features struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type Paths struct {
	Models  string `mapstructure:"models" yaml:"models"`
	Uploads string `mapstructure:"uploads" yaml:"uploads"`
	History string `mapstructure:"history" yaml:"history"`
}

type Server struct {
	Addr           string        `mapstructure:"addr" yaml:"addr"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" yaml:"max_upload_bytes"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

type Root struct {
	Pipeline Pipeline `mapstructure:"pipeline" yaml:"pipeline"`
	Audio    Audio    `mapstructure:"audio" yaml:"audio"`
	Features Features `mapstructure:"features" yaml:"features"`
	Paths    Paths    `mapstructure:"paths" yaml:"paths"`
	Server   Server   `mapstructure:"server" yaml:"server"`
}

const envPrefix = "CRY"

// Default returns the configuration used when no file overrides a key.
func Default() *Root {
	return &Root{
		Pipeline: Pipeline{Name: "cry-pipeline", Version: "dev", LogLvl: "info", LogFormat: "text"},
		Audio: Audio{
			SampleRate:     16000,
			SegmentSeconds: 7.0,
			MinDuration:    1.0,
			FFmpeg:         "ffmpeg",
		},
		Features: Features{Workers: 1},
		Paths: Paths{
			Models:  "models",
			Uploads: "uploads",
			History: "history",
		},
		Server: Server{
			Addr:           ":5000",
			MaxUploadBytes: 16 << 20,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   2 * time.Minute,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("pipeline.name", d.Pipeline.Name)
	v.SetDefault("pipeline.version", d.Pipeline.Version)
	v.SetDefault("pipeline.log_level", d.Pipeline.LogLvl)
	v.SetDefault("pipeline.log_format", d.Pipeline.LogFormat)
	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.segment_seconds", d.Audio.SegmentSeconds)
	v.SetDefault("audio.min_duration_seconds", d.Audio.MinDuration)
	v.SetDefault("audio.ffmpeg", d.Audio.FFmpeg)
	v.SetDefault("features.workers", d.Features.Workers)
	v.SetDefault("paths.models", d.Paths.Models)
	v.SetDefault("paths.uploads", d.Paths.Uploads)
	v.SetDefault("paths.history", d.Paths.History)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.max_upload_bytes", d.Server.MaxUploadBytes)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
}

// candidates lists the config files tried when no explicit path is given.
func candidates() []string {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return []string{
		filepath.Join("config", env, "config.yaml"),
		filepath.Join("src", "shared", "config.yaml"),
	}
}

// Load reads configuration from path, or from the first existing candidate
// when path is empty. Missing candidate files are not an error: defaults and
// CRY_* environment variables still apply.
func Load(path string) (*Root, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := strings.TrimSpace(path)
	if file == "" {
		for _, p := range candidates() {
			if _, err := os.Stat(p); err == nil {
				file = p
				break
			}
		}
	}
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Root
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Root) Validate() error {
	var errs []error
	if c.Audio.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate))
	}
	if c.Audio.SegmentSeconds <= 0 {
		errs = append(errs, fmt.Errorf("audio.segment_seconds must be positive, got %g", c.Audio.SegmentSeconds))
	}
	if c.Audio.MinDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.min_duration_seconds must not be negative, got %g", c.Audio.MinDuration))
	}
	if c.Features.Workers < 1 {
		errs = append(errs, fmt.Errorf("features.workers must be at least 1, got %d", c.Features.Workers))
	}
	if strings.TrimSpace(c.Paths.Models) == "" {
		errs = append(errs, errors.New("paths.models is required"))
	}
	return errors.Join(errs...)
}
