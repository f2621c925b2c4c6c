package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"shotlog/pkg/config"
	"shotlog/pkg/ingest"
	"shotlog/pkg/ocr"
	"shotlog/pkg/readout"
	"shotlog/pkg/store"
	"shotlog/process/importer"
	"shotlog/process/report"
	"shotlog/process/sanitize"
)

// app is the wiring shared by the commands.
type app struct {
	v      *viper.Viper
	file   string
	cfg    *config.Config
	log    *slog.Logger
	db     *gorm.DB
	repo   *store.GormRepository
	media  *store.Media
	ingest *ingest.Service
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}
	root := &cobra.Command{
		Use:          "shotlog",
		Short:        "Golf shot logging from launch monitor photos",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.loadConfig()
		},
	}
	root.PersistentFlags().StringVar(&a.file, "config", "", "config file (default ./shotlog.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "text", "log format (text, json)")
	_ = a.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = a.v.BindPFlag("log.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(a.serveCmd(), a.migrateCmd(), a.extractCmd(), a.importCmd(), a.reportCmd(), a.pruneCmd())
	return root
}

func (a *app) loadConfig() error {
	cfg, err := config.Load(a.v, a.file)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = cfg.Log.Logger()
	slog.SetDefault(a.log)
	return nil
}

func (a *app) engineConfig() ocr.EngineConfig {
	ec := ocr.DefaultEngineConfig()
	if a.cfg.OCR.Language != "" {
		ec.Language = a.cfg.OCR.Language
	}
	ec.TessdataPrefix = a.cfg.OCR.TessdataPrefix
	ec.Timeout = a.cfg.OCR.Timeout
	return ec
}

func (a *app) pipeline() *ocr.Pipeline {
	return ocr.NewPipeline(ocr.NewTesseract(a.engineConfig()), a.log)
}

// open connects the database and builds the ingestion service.
func (a *app) open() error {
	db, err := initDB(a.cfg.Database, a.log, a.cfg.Database.AutoMigrate)
	if err != nil {
		return err
	}
	if err := ensureMediaRoot(a.cfg.Media.Root); err != nil {
		closeDB(db)
		return err
	}
	a.db = db
	a.repo = store.NewGormRepository(db)
	a.media = store.NewMedia(a.cfg.Media.Root)
	a.ingest = ingest.NewService(a.repo, a.media, a.pipeline(), a.log)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		closeDB(a.db)
	}
}

func (a *app) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(a.log), requestMetrics())
	r.MaxMultipartMemory = a.cfg.Server.MaxUploadBytes()
	setupRoutes(r, &server{
		repo:        a.repo,
		media:       a.media,
		ingest:      a.ingest,
		mediaPrefix: a.cfg.Media.URLPrefix,
		maxUpload:   a.cfg.Server.MaxUploadBytes(),
		log:         a.log,
	})
	return r
}

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()
			gin.SetMode(gin.ReleaseMode)

			srv := &http.Server{
				Addr:              a.cfg.Server.Addr,
				Handler:           a.router(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			a.log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().String("addr", ":8081", "listen address")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := initDB(a.cfg.Database, a.log, true)
			if err != nil {
				return err
			}
			defer closeDB(db)
			fmt.Fprintln(cmd.OutOrStdout(), "migration completed")
			return nil
		},
	}
}

func (a *app) extractCmd() *cobra.Command {
	var (
		display string
		saveTo  string
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "extract <image>",
		Short: "Run OCR on one photo and print what was read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readout.ParseDisplay(display)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if saveTo != "" {
				if err := savePreprocessed(data, saveTo); err != nil {
					return err
				}
				a.log.Info("saved preprocessed image", "path", saveTo)
			}
			res, err := a.pipeline().Run(cmd.Context(), data, d)
			if err != nil {
				return err
			}
			return printResult(cmd, res, asJSON)
		},
	}
	cmd.Flags().StringVar(&display, "display", "oled", "display type (oled, ipad)")
	cmd.Flags().StringVar(&saveTo, "save-preprocessed", "", "write the image passed to the OCR engine to this path")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func savePreprocessed(data []byte, path string) error {
	img, err := ocr.Preprocess(data)
	if err != nil {
		return err
	}
	decoded, err := imaging.Decode(bytes.NewReader(img.PNG))
	if err != nil {
		return err
	}
	return imaging.Save(decoded, path)
}

func printResult(cmd *cobra.Command, res *readout.Result, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"display":    res.Display,
			"raw_text":   res.RawText,
			"numbers":    res.Numbers,
			"data":       res.Data(),
			"confidence": res.Confidence,
		})
	}
	fmt.Fprintf(out, "display:    %s\n", res.Display)
	fmt.Fprintf(out, "raw text:   %q\n", res.RawText)
	fmt.Fprintf(out, "numbers:    %v\n", res.Numbers)
	fmt.Fprintf(out, "confidence: %.2f\n", res.Confidence)
	for _, f := range res.Display.Layout() {
		if v := res.Metrics.Get(f); v != nil {
			fmt.Fprintf(out, "  %-16s %g\n", f, *v)
		} else {
			fmt.Fprintf(out, "  %-16s -\n", f)
		}
	}
	return nil
}

func (a *app) importCmd() *cobra.Command {
	var (
		display string
		session uint
		watch   bool
	)
	cmd := &cobra.Command{
		Use:   "import <dir>",
		Short: "Ingest every photo in a folder, moving them to processed/",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := readout.ParseDisplay(display)
			if err != nil {
				return err
			}
			if err := a.open(); err != nil {
				return err
			}
			defer a.close()

			opts := importer.Options{
				Display:  d,
				Workers:  a.cfg.Import.Workers,
				Debounce: a.cfg.Import.Debounce,
			}
			if session != 0 {
				opts.SessionRef = &session
			}
			im := importer.New(a.ingest, opts, a.log)
			if watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				err = im.Watch(ctx, args[0])
			} else {
				_, err = im.ImportDir(cmd.Context(), args[0])
			}
			sum := im.Summary()
			fmt.Fprintf(cmd.OutOrStdout(), "processed %d, failed %d, skipped %d\n", sum.Processed, sum.Failed, sum.Skipped)
			return err
		},
	}
	cmd.Flags().StringVar(&display, "display", "oled", "display type (oled, ipad)")
	cmd.Flags().UintVar(&session, "session", 0, "add shots to this session id")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep watching the folder for new photos")
	cmd.Flags().Int("workers", 2, "concurrent imports")
	_ = a.v.BindPFlag("import.workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "report <session-id>",
		Short: "Summarize the shots of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid session id %q", args[0])
			}
			db, err := initDB(a.cfg.Database, a.log, false)
			if err != nil {
				return err
			}
			defer closeDB(db)
			rep, err := report.Build(cmd.Context(), store.NewGormRepository(db), uint(id))
			if err != nil {
				return err
			}
			return report.Write(cmd.OutOrStdout(), rep, list)
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list every shot")
	return cmd
}

func (a *app) pruneCmd() *cobra.Command {
	var (
		dryRun bool
		yes    bool
		minAge time.Duration
	)
	cmd := &cobra.Command{
		Use:   "prune-media",
		Short: "Find and delete stored images no shot references",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := initDB(a.cfg.Database, a.log, false)
			if err != nil {
				return err
			}
			defer closeDB(db)
			out := cmd.OutOrStdout()
			opts := sanitize.Options{Apply: !dryRun && yes, MinAge: minAge}
			res, err := sanitize.PruneMedia(cmd.Context(), store.NewGormRepository(db), store.NewMedia(a.cfg.Media.Root), opts, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "scanned %d files, %d orphaned, %d too recent to judge\n", res.Scanned, len(res.Orphans), res.Recent)
			for _, o := range res.Orphans {
				fmt.Fprintf(out, " - %s\n", o)
			}
			switch {
			case dryRun:
				fmt.Fprintln(out, "dry-run enabled; no changes made. Use --dry-run=false --yes to delete.")
			case !yes:
				fmt.Fprintln(out, "Destructive operation. Pass --yes to confirm. Aborting.")
			default:
				fmt.Fprintf(out, "removed %d files\n", res.Removed)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "only report orphaned files")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	cmd.Flags().DurationVar(&minAge, "min-age", sanitize.DefaultMinAge, "leave unreferenced files younger than this alone")
	return cmd
}
