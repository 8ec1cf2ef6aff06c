package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/ringi/pkg/cli/config"
	httpctrl "github.com/secmon-lab/ringi/pkg/controller/http"
	"github.com/secmon-lab/ringi/pkg/service/directory"
	"github.com/secmon-lab/ringi/pkg/service/transport"
	"github.com/secmon-lab/ringi/pkg/service/worker"
	"github.com/secmon-lab/ringi/pkg/usecase"
	"github.com/secmon-lab/ringi/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var addr string
	var rescanInterval time.Duration
	var heartbeat time.Duration
	var appCfg config.AppConfig
	var repoCfg config.Repository
	var slackCfg config.Slack
	var notifyCfg config.Notify
	var archiveCfg config.Archive

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("RINGI_ADDR"),
			Destination: &addr,
		},
		&cli.DurationFlag{
			Name:        "rescan-interval",
			Usage:       "Interval of re-creating deadline timers from the repository (0 to disable)",
			Value:       worker.DefaultRescanInterval,
			Sources:     cli.EnvVars("RINGI_RESCAN_INTERVAL"),
			Destination: &rescanInterval,
		},
		&cli.DurationFlag{
			Name:        "stream-heartbeat",
			Usage:       "Ping interval of notification streams",
			Value:       httpctrl.DefaultHeartbeat,
			Sources:     cli.EnvVars("RINGI_STREAM_HEARTBEAT"),
			Destination: &heartbeat,
		},
	}

	// Add shared config flags
	flags = append(flags, appCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, notifyCfg.Flags()...)
	flags = append(flags, archiveCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("Serve configuration",
				"slack", slackCfg,
				"notify", notifyCfg,
			)

			org, err := appCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to load organization")
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			slackSvc, err := slackCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "failed to configure slack")
			}

			var dirOpts []directory.Option
			if slackSvc != nil {
				dirOpts = append(dirOpts, directory.WithSlack(slackSvc))
			}
			dir, err := org.Directory(dirOpts...)
			if err != nil {
				return goerr.Wrap(err, "failed to build directory")
			}

			hub := transport.NewHub()
			transports, err := notifyCfg.Configure(hub, slackSvc)
			if err != nil {
				return goerr.Wrap(err, "failed to configure notification channels")
			}

			scheduler := worker.NewEscalationScheduler(repo, worker.WithRescanInterval(rescanInterval))

			ucOpts := []usecase.Option{
				usecase.WithDirectory(dir),
				usecase.WithTransports(transports...),
				usecase.WithScheduler(scheduler),
				usecase.WithGoverningDepartment(org.GoverningDepartment),
			}

			archiver, err := archiveCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to configure archive")
			}
			if archiver != nil {
				defer func() {
					if err := archiver.Close(); err != nil {
						logging.Default().Error("failed to close archive", "error", err.Error())
					}
				}()
				ucOpts = append(ucOpts, usecase.WithArchiver(archiver))
			}

			uc := usecase.New(repo, ucOpts...)

			if err := scheduler.Start(ctx, uc.Workflow); err != nil {
				return goerr.Wrap(err, "failed to start escalation scheduler")
			}
			defer scheduler.Stop()

			httpOpts := []httpctrl.Options{
				httpctrl.WithHub(hub),
				httpctrl.WithHeartbeat(heartbeat),
			}
			if slackCfg.IsInteractionConfigured() {
				handler := httpctrl.NewSlackInteractionHandler(uc.Notification, dir, slackSvc, notifyCfg.BaseURL())
				httpOpts = append(httpOpts, httpctrl.WithSlackInteraction(handler, slackCfg.SigningSecret()))
				logging.Default().Info("Slack interaction handler enabled")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(uc, httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			select {
			case err := <-errCh:
				return err
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)

				// No deadline fires while requests drain
				scheduler.Stop()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return goerr.Wrap(err, "failed to shutdown server gracefully")
				}
				if err := uc.Wait(shutdownCtx); err != nil {
					logging.Default().Warn("pending deliveries were abandoned", "error", err)
				}

				logging.Default().Info("Server shutdown completed")
				return nil
			}
		},
	}
}
