package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fxperp/fxperpd/internal/config"
	"github.com/fxperp/fxperpd/internal/core/book"
	"github.com/fxperp/fxperpd/internal/core/engine"
	"github.com/fxperp/fxperpd/internal/core/oracle"
	"github.com/fxperp/fxperpd/internal/server/api/jsonrpc"
	"github.com/fxperp/fxperpd/internal/storage/relationaldb/postgres"
	"github.com/fxperp/fxperpd/internal/storage/snapshot"
)

const snapshotsKept = 16

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the fxperpd daemon",
	Long: `Start the fxperpd daemon: the protocol engine behind a JSON-RPC API,
a websocket fill feed, periodic state snapshots and optional postgres
fill history.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, args)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel)

	params, err := cfg.EngineParams()
	if err != nil {
		return err
	}

	orc := oracle.New(cfg.Oracle.StalenessWindow)
	feeds := registerFeeds(orc, cfg)

	eng, err := engine.New(orc, params)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)

	var store *snapshot.Store
	if cfg.Storage.Path != "" {
		store, err = snapshot.Open(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		if err := restoreLatest(eng, store, log); err != nil {
			return err
		}
		group.Go(func() error {
			return snapshotLoop(ctx, eng, store, cfg.Storage.SnapshotInterval, log)
		})
	}

	feed := jsonrpc.NewFeed(log)
	recorders := book.MultiRecorder{feed}
	if cfg.History.DSN != "" {
		db, err := postgres.Open(ctx, cfg.History.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		recorder := postgres.NewRecorder(db, log)
		recorders = append(recorders, recorder)
		eng.SetEpochRecorder(recorder)
		group.Go(func() error {
			if err := recorder.Run(ctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	eng.SetRecorder(recorders)

	handler := jsonrpc.NewHandler(eng)
	for key, src := range feeds {
		handler.RegisterFeed(key, src)
	}
	rpcServer := jsonrpc.NewServer(handler, time.Duration(cfg.Server.RequestTimeout)*time.Second, log)

	mux := http.NewServeMux()
	mux.Handle("/", rpcServer)
	mux.Handle("/rpc", rpcServer)
	mux.Handle("/ws", feed)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok","service":"fxperpd"}`))
	})

	httpServer := &http.Server{Addr: cfg.Server.ListenAddr, Handler: mux}
	group.Go(func() error {
		log.Info().Str("addr", cfg.Server.ListenAddr).Msg("serving JSON-RPC")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		feed.CloseAll()
		return httpServer.Shutdown(shutdownCtx)
	})

	if !quiet {
		fmt.Printf("fxperpd listening on %s (markets: %v)\n", cfg.Server.ListenAddr, eng.MarketNames())
	}

	err = group.Wait()
	if store != nil {
		if _, saveErr := store.Save(eng.ExportState()); saveErr != nil {
			log.Error().Err(saveErr).Msg("final snapshot failed")
		}
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}

// registerFeeds creates one settable source per oracle key named in the
// market set.
func registerFeeds(orc *oracle.Oracle, cfg *config.Config) map[string]*oracle.SettableSource {
	feeds := make(map[string]*oracle.SettableSource)
	register := func(key string) {
		if _, dup := feeds[key]; dup {
			return
		}
		src := oracle.NewSettableSource()
		// Keys come from validated config; duplicates are filtered above.
		_ = orc.RegisterSource(key, src)
		feeds[key] = src
	}
	for _, m := range cfg.Markets {
		register(m.CollateralOracleKey)
		register(m.PegKey)
	}
	return feeds
}

func restoreLatest(eng *engine.Engine, store *snapshot.Store, log zerolog.Logger) error {
	st, seq, err := store.Latest()
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		log.Info().Msg("no snapshot found, starting fresh")
		return nil
	}
	if err != nil {
		return err
	}
	if err := eng.ImportState(st); err != nil {
		return fmt.Errorf("failed to restore snapshot %d: %w", seq, err)
	}
	log.Info().Uint64("seq", seq).Int64("taken_at", st.TakenAt).Msg("state restored from snapshot")
	return nil
}

func snapshotLoop(ctx context.Context, eng *engine.Engine, store *snapshot.Store, interval int64, log zerolog.Logger) error {
	ticker := time.NewTicker(time.Duration(interval) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			seq, err := store.Save(eng.ExportState())
			if err != nil {
				log.Error().Err(err).Msg("snapshot failed")
				continue
			}
			log.Debug().Uint64("seq", seq).Msg("snapshot saved")
			if err := store.Prune(snapshotsKept); err != nil {
				log.Warn().Err(err).Msg("snapshot prune failed")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
