// Package main provides the heysiwi CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"heysiwi/internal/action"
	"heysiwi/internal/core"
	"heysiwi/internal/genre"
	"heysiwi/internal/picker"
	"heysiwi/internal/spotify"
	"heysiwi/internal/store"
	"heysiwi/pkg/printer"
)

var (
	cfgFile string
	config  *core.Config
	logger  *zap.Logger
	out     = printer.New(os.Stdout)
)

var rootCmd = &cobra.Command{
	Use:   "heysiwi",
	Short: "heysiwi - Spotify playback from the terminal",
	Long: `heysiwi plays Spotify from the terminal: point it at a playlist or a few
tracks, or ask it to surprise you with a random track discovered through
the genre catalog.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var playlistCmd = &cobra.Command{
	Use:   "playlist <id|uri|link>",
	Short: "Play a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, client *spotify.Client) error {
			history, err := openHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			act := action.NewPlayPlaylistAction(client, client, history, out, logger.Named("action"), args[0])
			return act.Execute(ctx)
		})
	},
}

var songsCmd = &cobra.Command{
	Use:   "songs <id|uri|link>...",
	Short: "Play one or more tracks, in order",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, client *spotify.Client) error {
			history, err := openHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			act := action.NewPlaySongsAction(client, client, history, out, logger.Named("action"), args)
			return act.Execute(ctx)
		})
	},
}

var surpriseCmd = &cobra.Command{
	Use:   "surprise",
	Short: "Discover and play a random track",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, client *spotify.Client) error {
			history, err := openHistory()
			if err != nil {
				return err
			}
			defer history.Close()

			recent := store.NewRecentIndex(10000, 0.001)
			trackIDs, err := history.TrackIDs(ctx)
			if err != nil {
				return err
			}
			recent.Load(trackIDs)

			genres := action.NewGenreRecorder(genre.NewSource(config.Picker.CatalogPath, nil))
			selector := picker.NewSelector(genres, client, nil, config.Picker.MaxRetries, logger.Named("picker"))

			out.Infof("🔎 Looking for a random track...")
			act := action.NewPlayRandomAction(selector, client, history, recent, genres, out, logger.Named("action"))
			return act.Execute(ctx)
		})
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available Spotify Connect devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, client *spotify.Client) error {
			devices, err := client.Devices(ctx)
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				out.Infof("🔇 No Spotify Connect devices available right now. Open Spotify somewhere first.")
				return nil
			}

			renderDevices(devices)
			return nil
		})
	},
}

var genresCmd = &cobra.Command{
	Use:   "genres",
	Short: "Show the genre catalog used by surprise",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		labels, err := genre.NewSource(config.Picker.CatalogPath, nil).Labels()
		if err != nil {
			return err
		}

		out.Infof("🎼 %d genres in the catalog:", len(labels))
		for _, label := range labels {
			out.Plainf("  %s", label)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently played tracks and playlists",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, err := cmd.Flags().GetInt("limit")
		if err != nil {
			return err
		}

		history, err := openHistory()
		if err != nil {
			return err
		}
		defer history.Close()

		records, err := history.Recent(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			out.Infof("📭 Nothing on record yet. Try `heysiwi surprise`.")
			return nil
		}

		renderHistory(records)
		return nil
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if msg := action.Describe(err); msg != "" {
			printer.New(os.Stderr).Failf("%s", msg)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, console)")
	rootCmd.PersistentFlags().String("device", "", "Spotify Connect device to play on (default: the active one)")
	rootCmd.PersistentFlags().String("spotify-client-id", "", "Spotify client ID")
	rootCmd.PersistentFlags().String("spotify-client-secret", "", "Spotify client secret")
	rootCmd.PersistentFlags().String("spotify-creds-path", "", "two-line credentials file (default ~/.tokens/spotify_api.tok)")
	rootCmd.PersistentFlags().String("spotify-redirect-url", "", "OAuth callback URL registered with the Spotify app")
	rootCmd.PersistentFlags().String("spotify-token-path", "", "OAuth token cache path")
	rootCmd.PersistentFlags().Int("max-retries", picker.DefaultMaxRetries, "selection attempts before surprise gives up")
	rootCmd.PersistentFlags().String("genre-file", "", "genre catalog file (default: built-in catalog)")
	rootCmd.PersistentFlags().String("history-path", "", "play history database path")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bind flags: %v\n", err)
		os.Exit(1)
	}

	historyCmd.Flags().IntP("limit", "n", store.DefaultRecentLimit, "number of plays to show")

	rootCmd.AddCommand(playlistCmd, songsCmd, surpriseCmd, devicesCmd, genresCmd, historyCmd)
}

func initConfig() {
	envFile := ".env"
	if cfgFile != "" {
		envFile = cfgFile
	}

	if err := gotenv.Load(envFile); err != nil {
		// A missing .env is fine, anything else deserves a note.
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error loading .env file: %v\n", err)
		}
	}

	viper.SetEnvPrefix("HEYSIWI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	config = buildConfig()
	logger = buildLogger(&config.Log)
}

func buildConfig() *core.Config {
	cfg := core.DefaultConfig()

	configureSpotify(cfg)
	configurePicker(cfg)
	configureStore(cfg)
	configureLog(cfg)

	return cfg
}

func configureSpotify(cfg *core.Config) {
	if v := viper.GetString("spotify-client-id"); v != "" {
		cfg.Spotify.ClientID = v
	}
	if v := viper.GetString("spotify-client-secret"); v != "" {
		cfg.Spotify.ClientSecret = v
	}
	if v := viper.GetString("spotify-creds-path"); v != "" {
		cfg.Spotify.CredentialsPath = v
	}
	if v := viper.GetString("spotify-redirect-url"); v != "" {
		cfg.Spotify.RedirectURL = v
	}
	if v := viper.GetString("spotify-token-path"); v != "" {
		cfg.Spotify.TokenPath = v
	}
	cfg.Spotify.Device = viper.GetString("device")
}

func configurePicker(cfg *core.Config) {
	if v := viper.GetInt("max-retries"); v > 0 {
		cfg.Picker.MaxRetries = v
	}
	if v := viper.GetString("genre-file"); v != "" {
		cfg.Picker.CatalogPath = v
	}
}

func configureStore(cfg *core.Config) {
	if v := viper.GetString("history-path"); v != "" {
		cfg.Store.HistoryPath = v
	}
}

func configureLog(cfg *core.Config) {
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
}

func buildLogger(cfg *core.LogConfig) *zap.Logger {
	var zapLevel zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	logCfg := zap.NewProductionConfig()
	if strings.EqualFold(cfg.Format, "console") {
		logCfg = zap.NewDevelopmentConfig()
	}
	logCfg.Level = zap.NewAtomicLevelAt(zapLevel)

	builtLogger, err := logCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("Failed to build logger: %v", err))
	}

	return builtLogger
}

// withSession validates the configuration, authenticates against Spotify and
// hands the ready client to fn.
func withSession(ctx context.Context, fn func(ctx context.Context, client *spotify.Client) error) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if err := config.ResolveCredentials(); err != nil {
		return err
	}

	session, err := spotify.NewAuthenticator(&config.Spotify, logger.Named("auth")).Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("failed to authenticate with Spotify: %w", err)
	}

	client := spotify.NewClient(session, config.Spotify.Device, logger.Named("spotify"))
	return fn(ctx, client)
}

func openHistory() (*store.History, error) {
	history, err := store.OpenHistory(config.Store.HistoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open play history: %w", err)
	}
	return history, nil
}

func renderDevices(devices []core.Device) {
	t := table.NewWriter()
	t.SetOutputMirror(out.Writer())
	t.AppendHeader(table.Row{"#", "Name", "Type", "Status", "Volume", "Device ID"})

	for i, device := range devices {
		status := "Inactive"
		if device.Active {
			status = color.GreenString("● Active")
		}

		t.AppendRow(table.Row{
			i + 1,
			color.New(color.Bold).Sprint(device.Name),
			device.Type,
			status,
			fmt.Sprintf("%d%%", device.Volume),
			color.HiBlackString(device.ID),
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderHistory(records []store.PlayRecord) {
	t := table.NewWriter()
	t.SetOutputMirror(out.Writer())
	t.AppendHeader(table.Row{"When", "Title", "Artist", "Source", "Genre"})

	for _, record := range records {
		t.AppendRow(table.Row{
			record.PlayedAt.Local().Format("Jan 02 15:04"),
			color.New(color.Bold).Sprint(record.Title),
			record.Artist,
			record.Source,
			record.Genre,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
