// agoractl is the operator CLI: migrations, search reindexing, and the bulk
// opinion operations (import, merge, split, answer publication).
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"agora/core/internal/attachments"
	"agora/core/internal/config"
	"agora/core/internal/lifecycle"
	"agora/core/internal/notify"
	"agora/core/internal/scoring"
	"agora/core/internal/search"
	"agora/core/internal/store"
	"agora/core/internal/transfer"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "agoractl",
		Short:         "Operate an agora deployment",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")

	root.AddCommand(
		migrateCmd(),
		reindexCmd(),
		importCmd(),
		mergeCmd(),
		splitCmd(),
		publishAnswersCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env holds everything a command may need. Close tears down in reverse
// order of construction.
type env struct {
	cfg    config.Config
	log    *zap.SugaredLogger
	store  *store.PostgresStore
	search *search.Service

	meili  *search.Meili
	notify *notify.Redis
	scores *scoring.Redis

	closers []func()
}

func newEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	var logger *zap.Logger
	if cfg.LogMode == "prod" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log := logger.Sugar()

	e := &env{cfg: cfg, log: log}
	e.closers = append(e.closers, func() { _ = logger.Sync() })

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.closers = append(e.closers, func() { _ = db.Close() })
	e.store = store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		e.meili = search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey, log)
		e.closers = append(e.closers, e.meili.Close)
	}
	e.search = search.NewService(e.meili, pgfts, log)
	return e, nil
}

// connectRedis wires the notifier and score keeper; commands that only touch
// the database skip it.
func (e *env) connectRedis(ctx context.Context) error {
	n, err := notify.NewRedis(ctx, e.cfg.RedisURL)
	if err != nil {
		return err
	}
	e.notify = n
	e.closers = append(e.closers, func() { _ = n.Close() })

	s, err := scoring.NewRedis(ctx, e.cfg.RedisURL)
	if err != nil {
		return err
	}
	e.scores = s
	e.closers = append(e.closers, func() { _ = s.Close() })
	return nil
}

// attachmentCopier returns the object-store copier, or shared keys when no
// credentials are configured.
func (e *env) attachmentCopier(ctx context.Context) (transferCopier, error) {
	if e.cfg.MinioAccessKey == "" {
		return attachments.SharedKeys{}, nil
	}
	return attachments.New(ctx, attachments.Config{
		Endpoint:  e.cfg.MinioEndpoint,
		AccessKey: e.cfg.MinioAccessKey,
		SecretKey: e.cfg.MinioSecretKey,
		Bucket:    e.cfg.MinioBucket,
		UseSSL:    e.cfg.MinioUseSSL,
	}, e.log)
}

type transferCopier interface {
	Copy(ctx context.Context, objectKey string) (string, error)
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := store.ApplyMigrations(ctx, e.store.DB(), e.cfg.MigrationsDir); err != nil {
				return err
			}
			e.log.Infow("migrations applied", "dir", e.cfg.MigrationsDir)
			return nil
		},
	}
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the search index from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			e.search.ReindexAllFromPG(ctx)
			return nil
		},
	}
}

func importCmd() *cobra.Command {
	var (
		source      string
		target      string
		states      []string
		keepAuthors bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy published opinions from one component into another",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			parsed := make([]lifecycle.State, 0, len(states))
			for _, s := range states {
				state, err := lifecycle.Parse(s)
				if err != nil {
					return err
				}
				parsed = append(parsed, state)
			}

			copier, err := e.attachmentCopier(ctx)
			if err != nil {
				return err
			}
			svc := transfer.New(e.store, copier, e.search, e.log)
			ids, failed, err := svc.Import(ctx, transfer.ImportInput{
				SourceComponentID: source,
				TargetComponentID: target,
				States:            parsed,
				KeepAuthors:       keepAuthors,
			})
			if err != nil {
				return err
			}
			for _, item := range failed {
				e.log.Warnw("opinion not imported", "opinion", item.OpinionID, "error", item.Err)
			}
			e.log.Infow("import finished", "copied", len(ids), "failed", len(failed))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source component id")
	cmd.Flags().StringVar(&target, "target", "", "target component id")
	cmd.Flags().StringSliceVar(&states, "states", nil, "public states to import (default: all)")
	cmd.Flags().BoolVar(&keepAuthors, "keep-authors", false, "keep original coauthors instead of the official identity")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func mergeCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "merge <opinion-id>...",
		Short: "Merge two or more opinions into one",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			copier, err := e.attachmentCopier(ctx)
			if err != nil {
				return err
			}
			svc := transfer.New(e.store, copier, e.search, e.log)
			id, err := svc.Merge(ctx, args, target)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "target component id")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func splitCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "split <opinion-id>...",
		Short: "Split opinions into copies in a component",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()

			copier, err := e.attachmentCopier(ctx)
			if err != nil {
				return err
			}
			svc := transfer.New(e.store, copier, e.search, e.log)
			ids, err := svc.Split(ctx, args, target)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "target component id")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func publishAnswersCmd() *cobra.Command {
	var component string
	cmd := &cobra.Command{
		Use:   "publish-answers [opinion-id]...",
		Short: "Fire the answer reveal gate for staged answers",
		Long: `Reveal staged answers. Pass opinion ids to publish specific answers, or
--component to publish every staged answer of a component.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := newEnv(ctx)
			if err != nil {
				return err
			}
			defer e.Close()
			if err := e.connectRedis(ctx); err != nil {
				return err
			}

			ids := args
			if component != "" {
				staged, err := e.store.ListUnpublishedAnswers(ctx, component)
				if err != nil {
					return err
				}
				ids = append(ids, staged...)
			}
			if len(ids) == 0 {
				return fmt.Errorf("nothing to publish: pass opinion ids or --component")
			}

			svc := lifecycle.New(e.store, e.notify, e.scores, e.search, e.log)
			failures := svc.PublishAnswersBulk(ctx, ids)
			for _, item := range failures {
				e.log.Warnw("answer not published", "opinion", item.OpinionID, "error", item.Err)
			}
			e.log.Infow("answer publication finished", "published", len(ids)-len(failures), "failed", len(failures))
			return nil
		},
	}
	cmd.Flags().StringVar(&component, "component", "", "publish every staged answer of this component")
	return cmd
}
