package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	Spotify SpotifyConfig
	Picker  PickerConfig
	Store   StoreConfig
	Log     LogConfig
}

type SpotifyConfig struct {
	ClientID        string
	ClientSecret    string
	CredentialsPath string
	RedirectURL     string
	TokenPath       string
	Device          string
}

type PickerConfig struct {
	MaxRetries  int
	CatalogPath string
}

type StoreConfig struct {
	HistoryPath string
}

type LogConfig struct {
	Level  string
	Format string
}

func DefaultConfig() *Config {
	state := defaultStateDir()
	return &Config{
		Spotify: SpotifyConfig{
			CredentialsPath: filepath.Join(homeDir(), ".tokens", "spotify_api.tok"),
			RedirectURL:     "http://127.0.0.1:8000/callback",
			TokenPath:       filepath.Join(state, "token.json"),
		},
		Picker: PickerConfig{
			MaxRetries: 5,
		},
		Store: StoreConfig{
			HistoryPath: filepath.Join(state, "history.db"),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks the parts of the configuration every command depends on.
// Credentials are checked separately because read-only commands (genres,
// history) work without them.
func (c *Config) Validate() error {
	if c.Picker.MaxRetries < 1 {
		return fmt.Errorf("max-retries must be at least 1, got %d", c.Picker.MaxRetries)
	}
	if c.Spotify.RedirectURL == "" {
		return fmt.Errorf("redirect URL must not be empty")
	}
	if c.Spotify.TokenPath == "" {
		return fmt.Errorf("token path must not be empty")
	}
	return nil
}

// ResolveCredentials fills ClientID and ClientSecret from the credentials
// file unless both are already set through flags or environment variables.
// The file holds the client id on the first line and the client secret on
// the second, the same two-line format the Spotify developer dashboard
// copy-paste produces.
func (c *Config) ResolveCredentials() error {
	if c.Spotify.ClientID != "" && c.Spotify.ClientSecret != "" {
		return nil
	}
	id, secret, err := LoadCredentialsFile(c.Spotify.CredentialsPath)
	if err != nil {
		return err
	}
	if c.Spotify.ClientID == "" {
		c.Spotify.ClientID = id
	}
	if c.Spotify.ClientSecret == "" {
		c.Spotify.ClientSecret = secret
	}
	return nil
}

// LoadCredentialsFile reads a two-line credentials file: client id on line
// one, client secret on line two. Surrounding whitespace is stripped.
func LoadCredentialsFile(path string) (string, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file %s: %w", path, err)
	}
	lines := strings.Split(string(data), "\n")
	var fields []string
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	if len(fields) < 2 {
		return "", "", fmt.Errorf("credentials file %s: expected client id and secret on separate lines", path)
	}
	return fields[0], fields[1], nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func defaultStateDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "heysiwi")
}
