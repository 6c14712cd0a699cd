package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/issacpacheco/chat-stream-gemini/internal/chat"
	"github.com/issacpacheco/chat-stream-gemini/internal/config"
	"github.com/issacpacheco/chat-stream-gemini/internal/event"
	"github.com/issacpacheco/chat-stream-gemini/internal/logging"
	"github.com/issacpacheco/chat-stream-gemini/internal/persona"
	"github.com/issacpacheco/chat-stream-gemini/internal/provider"
	"github.com/issacpacheco/chat-stream-gemini/internal/registry"
	"github.com/issacpacheco/chat-stream-gemini/internal/relay"
	"github.com/issacpacheco/chat-stream-gemini/internal/server"
	"github.com/issacpacheco/chat-stream-gemini/pkg/types"
)

const shutdownTimeout = 30 * time.Second

var (
	servePort     int
	serveHostname string
	serveDir      string
	serveEnvFiles []string
	servePersona  string
	serveModel    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat relay server",
	Long: `Start the relay. Clients connect to /ws/chat/{clientID} and each text
message they send is answered with a streamed reply.

The Gemini API key is read from GEMINI_API_KEY or GOOGLE_API_KEY, which
may be set in a .env file.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", config.DefaultPort, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "0.0.0.0", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Directory to read chatrelay.json from")
	serveCmd.Flags().StringSliceVar(&serveEnvFiles, "env-file", []string{".env"}, "Environment files to load")
	serveCmd.Flags().StringVar(&servePersona, "persona", "", "Persona file (YAML or plain-text directive)")
	serveCmd.Flags().StringVarP(&serveModel, "model", "m", "", "Model as provider/model")
}

// applyServeFlags lets explicit flags override the loaded configuration.
func applyServeFlags(cmd *cobra.Command, cfg *types.Config) {
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port = servePort
	}
	if flags.Changed("hostname") {
		cfg.Server.Hostname = serveHostname
	}
	if flags.Changed("persona") {
		cfg.Persona.File = servePersona
	}
	if flags.Changed("model") {
		cfg.Model = serveModel
	}
}

func registryOptions(cfg types.RegistryConfig, bus *event.Bus) ([]registry.Option, error) {
	opts := []registry.Option{registry.WithBus(bus)}
	if cfg.MaxEntries > 0 {
		opts = append(opts, registry.WithMaxEntries(cfg.MaxEntries))
	}
	ttl, err := config.Duration(cfg.IdleTTL, 0)
	if err != nil {
		return nil, err
	}
	interval, err := config.Duration(cfg.SweepInterval, time.Minute)
	if err != nil {
		return nil, err
	}
	if ttl > 0 {
		opts = append(opts, registry.WithIdleTTL(ttl, interval))
	}
	return opts, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	if err := config.LoadEnv(serveEnvFiles...); err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	applyServeFlags(cmd, appConfig)

	logCloser, err := setupLogging(cmd, appConfig.Log, false)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	logging.Info().
		Str("version", Version).
		Str("directory", workDir).
		Str("model", appConfig.Model).
		Msg("starting chatrelay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("some providers failed to initialize")
	}
	collab := chat.Resolve(providerReg, appConfig.Model)

	personas, err := persona.FromConfig(appConfig.Persona)
	if err != nil {
		return err
	}
	logging.Info().Str("persona", personas.Current().Name).Msg("persona loaded")
	if appConfig.Persona.Watch {
		watcher, err := persona.NewWatcher(personas)
		if err != nil {
			return err
		}
		if watcher != nil {
			watcher.Start()
			defer watcher.Stop()
		}
	}

	bus := event.NewBus()
	defer bus.Close()

	regOpts, err := registryOptions(appConfig.Registry, bus)
	if err != nil {
		return err
	}
	reg := registry.New(collab, personas.SessionConfig, regOpts...)
	reg.StartEviction(ctx)

	serverConfig, err := server.FromConfig(appConfig.Server)
	if err != nil {
		return err
	}
	rl := relay.New(reg,
		relay.WithBus(bus),
		relay.WithInboundQueue(appConfig.Server.InboundQueue),
	)
	srv := server.New(serverConfig, reg, rl, bus)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}
	logging.Info().Msg("server stopped")
	return nil
}
