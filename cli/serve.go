package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"penguinlab/config"
	phttp "penguinlab/http"
	"penguinlab/ml"
	"penguinlab/monitoring"
)

func newServeCommand(configPath func() string) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the prediction API and live prediction stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			defer rt.close()
			cfg := rt.config
			if cmd.Flags().Changed("port") {
				cfg.Http.Port = port
			}

			store, err := rt.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			cache, err := ml.NewModelCache(cfg.Model.CacheSize)
			if err != nil {
				return err
			}

			hub := monitoring.NewHub(rt.logger)
			go hub.Run()
			defer hub.Stop()

			api := phttp.NewAPI(phttp.Dependencies{
				Logger:    rt.logger,
				Predictor: ml.NewPredictor(rt.logger, cache),
				Store:     store,
				Hub:       hub,
				Stats:     monitoring.NewStats(),
				Settings:  settingsFrom(cfg, rt),
			})
			server := phttp.NewServer(phttp.ServerConfig{
				Port:           cfg.Http.Port,
				Timeout:        cfg.Http.Timeout,
				AllowedOrigins: cfg.Http.AllowedOrigins,
				MaxBodyBytes:   cfg.Http.MaxBodyBytes,
			}, api)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if _, err := os.Stat(rt.configPath); err == nil {
				err := config.Watch(ctx, rt.configPath, rt.logger, func(next *config.Config) {
					api.Update(settingsFrom(next, rt))
					if cache != nil {
						cache.Purge()
					}
				})
				if err != nil {
					rt.logger.Warn("config watch disabled", zap.Error(err))
				}
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			rt.logger.Info("shutting down")
			return server.Stop()
		},
	}
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides http.port)")
	return cmd
}

// settingsFrom derives the reloadable API settings from a config. Only the HTTP
// listener settings need a restart.
func settingsFrom(cfg *config.Config, rt *runtime) phttp.Settings {
	return phttp.Settings{
		Source:   newSource(cfg, rt.logger),
		Defaults: cfg.Model.Defaults,
		Advanced: cfg.Model.Advanced,
	}
}
