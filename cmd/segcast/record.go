package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/relaywave/segcast/internal/config"
	"github.com/relaywave/segcast/internal/credentials"
	"github.com/relaywave/segcast/internal/health"
	"github.com/relaywave/segcast/internal/metrics"
	"github.com/relaywave/segcast/internal/recorder"
	"github.com/relaywave/segcast/internal/safeurl"
	"github.com/relaywave/segcast/internal/sftpexport"
	"github.com/relaywave/segcast/internal/showmutex"
)

// exportSweepInterval is how often export_to_remote_periodically checks
// for unexported sections, independent of any session's own record loop.
const exportSweepInterval = 10 * time.Minute

func runRecord(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("record", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to record TOML config")
	port := fs.Int("port", 0, "override api_port from config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configPath == "" {
		return fmt.Errorf("record: --config is required")
	}

	cfg, err := config.LoadRecordConfig(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.APIPort = *port
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("record: create output_dir %s: %w", cfg.OutputDir, err)
	}

	var exporter *sftpexport.Exporter
	if cfg.ExportToSFTP {
		exporter, err = buildExporter(cfg)
		if err != nil {
			return err
		}
	}

	sessions := make([]*recorder.Session, 0, len(cfg.Sessions))
	for _, sess := range cfg.Sessions {
		if !safeurl.IsHTTPOrHTTPS(sess.URL) {
			return fmt.Errorf("record: session %q: url %q is not http(s)", sess.Name, sess.URL)
		}

		rc, err := sessionToRecorderConfig(sess, cfg.OutputDir)
		if err != nil {
			return err
		}

		if err := health.CheckStreamReachable(ctx, rc.URL); err != nil {
			slog.Warn("stream not reachable at startup, will retry via the record loop", "show", rc.Name, "error", err)
		}

		session, err := recorder.NewSession(rc)
		if err != nil {
			return fmt.Errorf("record: session %q: %w", sess.Name, err)
		}
		sessions = append(sessions, session)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", health.Handler())
	mux.Handle("GET /metrics", metrics.Handler())
	apiServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.APIPort), Handler: mux}
	go func() {
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("record api server failed", "error", err)
		}
	}()

	var wg sync.WaitGroup
	errCh := make(chan error, len(sessions))
	for i, session := range sessions {
		wg.Add(1)
		go func(session *recorder.Session, sess config.Session) {
			defer wg.Done()
			defer session.Close()
			if exporter != nil && cfg.ExportToRemotePeriodically {
				go runPeriodicExport(ctx, exporter, session, sess)
			}
			if err := session.Run(ctx); err != nil && ctx.Err() == nil {
				errCh <- fmt.Errorf("record: session %q: %w", sess.Name, err)
			}
		}(session, cfg.Sessions[i])
	}

	wg.Wait()
	apiServer.Shutdown(context.Background())
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func sessionToRecorderConfig(sess config.Session, outputDir string) (recorder.Config, error) {
	start, err := recorder.ParseTime(sess.Schedule.RecordStart)
	if err != nil {
		return recorder.Config{}, fmt.Errorf("record: session %q: %w", sess.Name, err)
	}
	end, err := recorder.ParseTime(sess.Schedule.RecordEnd)
	if err != nil {
		return recorder.Config{}, fmt.Errorf("record: session %q: %w", sess.Name, err)
	}
	return recorder.Config{
		Name:           sess.Name,
		URL:            sess.URL,
		WindowStart:    start,
		WindowEnd:      end,
		AudioFormat:    sess.AudioFormat,
		Bitrate:        int64(sess.Bitrate),
		SplitInterval:  sess.SplitInterval,
		RetentionHours: sess.RetentionHours,
		OutputDir:      outputDir,
	}, nil
}

func buildExporter(cfg *config.RecordConfig) (*sftpexport.Exporter, error) {
	creds, err := credentials.Load()
	if err != nil {
		return nil, fmt.Errorf("record: load credentials: %w", err)
	}
	password, err := creds.Password(credentials.KindSFTP, cfg.SFTP.CredentialProfile)
	if err != nil {
		return nil, fmt.Errorf("record: sftp credential profile %q: %w", cfg.SFTP.CredentialProfile, err)
	}
	exporterCfg := sftpexport.Config{
		Host:      cfg.SFTP.Host,
		Port:      cfg.SFTP.Port,
		Username:  cfg.SFTP.Username,
		Password:  password,
		RemoteDir: cfg.SFTP.RemoteDir,
	}
	return sftpexport.New(exporterCfg, showmutex.New(), cfg.OutputDir), nil
}

// runPeriodicExport sweeps session's unexported sections to the remote
// SFTP target every exportSweepInterval, for export_to_remote_periodically
// mode. The section currently being recorded is never a candidate here
// (SweepUnexported only sees sections already closed out by the recorder).
func runPeriodicExport(ctx context.Context, exporter *sftpexport.Exporter, session *recorder.Session, sess config.Session) {
	ticker := time.NewTicker(exportSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := exporter.SweepUnexported(ctx, session.DB(), sess.Name, 0, sess.AudioFormat)
			if err != nil {
				slog.Error("periodic export sweep failed", "show", sess.Name, "error", err)
				continue
			}
			if n > 0 {
				slog.Info("periodic export sweep complete", "show", sess.Name, "sections_exported", n)
			}
		}
	}
}
