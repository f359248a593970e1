package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/treestore/internal/config"
	"github.com/systemshift/treestore/internal/logging"
	"github.com/systemshift/treestore/internal/mount"
	"github.com/systemshift/treestore/internal/store"
	"github.com/systemshift/treestore/internal/treesum"
)

// app holds state shared by all subcommands.
type app struct {
	configPath string
	root       string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	cmd := &cobra.Command{
		Use:   "treestore",
		Short: "Content-addressed store for directory trees",
		Long: `treestore keeps directory trees under the digest of their contents and
names them with references. Trees are built in private working copies,
committed atomically and read back through read-only mounts.

Layout of a store root:
  objects/<digest>/    committed trees
  refs/<id>            symlink to ../objects/<digest>
  tmp-*/               working directories of running operations`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.logger.Sync()
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/treestore/config.yaml)")
	flags.StringVar(&a.root, "root", "", "store root directory")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")

	cmd.AddCommand(
		newContainsCmd(a),
		newResolveCmd(a),
		newRefsCmd(a),
		newObjectsCmd(a),
		newLogCmd(a),
		newCommitCmd(a),
		newDeriveCmd(a),
		newExecCmd(a),
		newDigestCmd(a),
		newVerifyCmd(a),
	)
	return cmd
}

// setup loads configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	cfg, err := config.Load(a.configPath, config.FlagBindings{
		"store.root":    flags.Lookup("root"),
		"logging.level": flags.Lookup("log-level"),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	return a.setupLogger(cfg.Logging)
}

// setupStoreless builds the logger for commands that never open a store
// and so need no store root.
func (a *app) setupStoreless(cmd *cobra.Command, args []string) error {
	cfg := config.GetDefaultConfig("")
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	return a.setupLogger(cfg.Logging)
}

func (a *app) setupLogger(cfg config.LoggingConfig) error {
	logger, err := logging.New(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	a.logger = logger
	return nil
}

// openStore opens the configured store with the configured mount backend.
func (a *app) openStore() (*store.Store, error) {
	code, err := treesum.CodeByName(a.cfg.Store.Hash)
	if err != nil {
		return nil, err
	}
	mounter, err := mount.ByName(a.cfg.Mount.Backend, mount.FuseOptions{
		AllowOther: a.cfg.Mount.AllowOther,
		Debug:      a.cfg.Mount.Debug,
	})
	if err != nil {
		return nil, err
	}
	s, err := store.Open(a.cfg.Store.Root,
		store.WithHash(code),
		store.WithMounter(mounter),
		store.WithLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return s, nil
}
