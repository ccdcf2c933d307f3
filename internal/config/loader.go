package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables overriding file values:
// FTPCLIENT_FTP_PASSWORD overrides ftp.password.
const EnvPrefix = "FTPCLIENT"

// DefaultConfigPaths returns the directories searched for ftpclient.yaml.
func DefaultConfigPaths() []string {
	paths := []string{".", "./configs"}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "ftpclient"))
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".ftpclient"))
	}
	return paths
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys must be known for environment overrides to reach Unmarshal.
	v.SetDefault("tests.ftp", false)
	v.SetDefault("tests.sftp", false)
	v.SetDefault("tests.http_proxy", false)
	for _, k := range []string{"trace_dir", "ssl_cert_file", "ssl_key_file", "ssl_key_pwd", "known_hosts"} {
		v.SetDefault("local."+k, "")
	}
	for _, k := range []string{"host", "host_invalid", "user_pwd"} {
		v.SetDefault("http_proxy."+k, "")
	}
	for name, d := range map[string]struct {
		protocol string
		port     int
	}{"ftp": {"ftp", 21}, "sftp": {"sftp", 22}} {
		v.SetDefault(name+".protocol", d.protocol)
		v.SetDefault(name+".port", d.port)
		v.SetDefault(name+".insecure", false)
		for _, k := range []string{"host", "username", "password", "remote_file", "remote_upload_folder", "remote_download_folder"} {
			v.SetDefault(name+"."+k, "")
		}
	}
	return v
}

// Load reads and validates a configuration file. If path is empty, the
// default locations are searched for ftpclient.yaml.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ftpclient")
		v.SetConfigType("yaml")
		for _, p := range DefaultConfigPaths() {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if errors.As(err, &nf) || errors.Is(err, os.ErrNotExist) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return decode(v)
}

// LoadFromString parses a YAML configuration.
func LoadFromString(yamlContent string) (*Config, error) {
	v := newViper()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader(yamlContent)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}
	cfg.FTP.normalize()
	cfg.SFTP.normalize()
	cfg.Local.TraceDir = ExpandPath(cfg.Local.TraceDir)
	cfg.Local.SSLCertFile = ExpandPath(cfg.Local.SSLCertFile)
	cfg.Local.SSLKeyFile = ExpandPath(cfg.Local.SSLKeyFile)
	cfg.Local.KnownHosts = ExpandPath(cfg.Local.KnownHosts)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
