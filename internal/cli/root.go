package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tkc/ttrak/internal/config"
	"github.com/tkc/ttrak/internal/store"
	"github.com/tkc/ttrak/internal/syncer"
	"github.com/tkc/ttrak/internal/tasklist"
	"github.com/tkc/ttrak/internal/view"
)

var verbose bool

// rootCmd はルートコマンド
var rootCmd = &cobra.Command{
	Use:   "ttrak",
	Short: "Terminal task tracker for local, GitHub and Linear tasks",
	Long: `ttrak keeps local tasks together with issues synced from GitHub and Linear
in one filterable list.

Configuration and data live in ~/.config/ttrak (override with TTRAK_HOME).
GITHUB_TOKEN and LINEAR_API_KEY fill in credentials missing from the config.
Press S inside the list to set up integrations, ? for all commands.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
}

// Execute はCLIを実行する
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to ttrak.log")
}

// run は起動シーケンス。設定とデータを読み、必要なら同期してから一覧を表示する
func run(ctx context.Context) error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	logger := newLogger(dir, verbose)
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadWithPrecedence(dir, logger)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fs := store.NewFileStore(dir, logger)
	col, err := fs.Load()
	if err != nil {
		return err
	}

	a := &app{
		dir:       dir,
		cfg:       cfg,
		tasks:     tasklist.NewService(col, fs, logger),
		scheduler: syncer.NewScheduler(),
		checker:   remoteChecker{},
		fetchers:  buildFetchers,
		notify:    sendNotification,
		logger:    logger,
	}

	var message string
	if a.scheduler.IsSyncDue(cfg) {
		fmt.Println("Syncing...")
		message, err = a.sync(ctx, false)
		if err != nil {
			return err
		}
	}

	logger.Info("starting view", zap.Int("tasks", len(a.tasks.Tasks())))
	v := view.New(a.tasks, a, view.Options{
		In:          os.Stdin,
		Out:         os.Stdout,
		DefaultView: cfg.DefaultView,
		Message:     message,
	}, logger)
	return v.Run(ctx)
}
