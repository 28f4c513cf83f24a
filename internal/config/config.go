// Package config loads server settings from defaults, an optional YAML file
// and TIMECARD_* environment variables, in that order of precedence.
package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	EnvPrefix   = "TIMECARD_"
	defaultFile = "timecard.yaml"
)

type Config struct {
	Server struct {
		Addr              string        `json:"addr" yaml:"addr"`
		ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
		ShutdownTimeout   time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
	} `json:"server" yaml:"server"`

	Workbook struct {
		Path string `json:"path" yaml:"path"`
	} `json:"workbook" yaml:"workbook"`

	Session struct {
		TTL    time.Duration `json:"ttl" yaml:"ttl"`
		Secret string        `json:"secret" yaml:"secret"`
	} `json:"session" yaml:"session"`

	Log Log `json:"log" yaml:"log"`

	CORS struct {
		AllowedOrigins []string `json:"allowedOrigins" yaml:"allowedOrigins"`
	} `json:"cors" yaml:"cors"`

	// Auth.ManagerRoles, when set, limits getAll, approve and update to
	// sessions whose role is listed.
	Auth struct {
		ManagerRoles []string `json:"managerRoles" yaml:"managerRoles"`
	} `json:"auth" yaml:"auth"`

	Export struct {
		Enabled     bool   `json:"enabled" yaml:"enabled"`
		CompanyName string `json:"companyName" yaml:"companyName"`
	} `json:"export" yaml:"export"`

	Watch struct {
		Enabled bool `json:"enabled" yaml:"enabled"`
	} `json:"watch" yaml:"watch"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.ReadHeaderTimeout = 10 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Workbook.Path = filepath.Join("data", "timecards.xlsx")
	cfg.Session.TTL = 8 * time.Hour
	cfg.Log.Level = "info"
	cfg.CORS.AllowedOrigins = []string{"*"}
	cfg.Export.Enabled = true
	cfg.Watch.Enabled = true
	return cfg
}

// Load reads path if given, otherwise timecard.yaml in the working directory
// or ./config when one exists. An explicitly named file must exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	k := koanf.New(".")

	configFile, err := locate(path)
	if err != nil {
		return nil, err
	}
	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "read config %s", configFile)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return envKey(strings.TrimPrefix(key, EnvPrefix)), value
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables")
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			ZeroFields:       true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return errors.New("server.addr is required")
	}
	if strings.TrimSpace(c.Workbook.Path) == "" {
		return errors.New("workbook.path is required")
	}
	if c.Session.TTL <= 0 {
		return errors.Errorf("session.ttl must be positive, got %s", c.Session.TTL)
	}
	return nil
}

func locate(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", errors.Wrapf(err, "config file %s", path)
		}
		return path, nil
	}
	for _, candidate := range []string{defaultFile, filepath.Join("config", defaultFile)} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// envKeys maps each config key with case and underscores removed
// (cors.allowedorigins) to the spelling the YAML file uses
// (cors.allowedOrigins), so env values and file values land on one key.
var envKeys = collectKeys(reflect.TypeOf(Config{}))

func collectKeys(t reflect.Type) map[string]string {
	keys := make(map[string]string)
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			key := yamlName(section) + "." + yamlName(section.Type.Field(j))
			keys[flatten(key)] = key
		}
	}
	return keys
}

func yamlName(field reflect.StructField) string {
	name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
	return name
}

func flatten(key string) string {
	return strings.ToLower(strings.ReplaceAll(key, "_", ""))
}

// envKey turns CORS_ALLOWED_ORIGINS or CORS_ALLOWEDORIGINS into
// cors.allowedOrigins. The first underscore ends the section name.
func envKey(raw string) string {
	section, field, _ := strings.Cut(raw, "_")
	flat := flatten(section) + "." + flatten(field)
	if key, ok := envKeys[flat]; ok {
		return key
	}
	return flat
}
