package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/systemshift/treestore/internal/clone"
)

func newCommitCmd(a *app) *cobra.Command {
	var from, base string
	cmd := &cobra.Command{
		Use:   "commit ID --from DIR [--base BASE]",
		Short: "Store a copy of DIR under reference ID",
		Long: `Copy DIR into a new tree and commit it under ID. With --base the tree
starts as a copy of BASE and DIR is merged over it: directories are
merged and other entries replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			copier := &clone.Copier{Merge: base != ""}
			d, err := s.New(args[0], base, func(tree string) error {
				return copier.CopyTree(from, tree)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "directory to copy in")
	cmd.Flags().StringVar(&base, "base", "", "reference to start from")
	cmd.MarkFlagRequired("from")
	return cmd
}

func newDeriveCmd(a *app) *cobra.Command {
	var base string
	cmd := &cobra.Command{
		Use:   "derive ID [--base BASE] -- CMD [ARG...]",
		Short: "Run CMD inside a new tree and commit it if CMD succeeds",
		Long: `Start a tree for ID (empty, or a copy of BASE), run CMD with the tree
as its working directory and commit the result if CMD exits 0. The tree
path is also exported as TREESTORE_TREE. On failure nothing is
committed and CMD's exit status is returned.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			id, argv := args[0], args[1:]
			d, err := s.New(id, base, func(tree string) error {
				return runIn(cmd.Context(), tree, "TREESTORE_TREE", argv)
			})
			if err != nil {
				return err
			}
			a.logger.Info("derived", zap.String("ref", id), zap.String("digest", d.String()))
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().StringVar(&base, "base", "", "reference to start from")
	return cmd
}

func newExecCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "exec ID -- CMD [ARG...]",
		Short: "Run CMD in a read-only view of reference ID",
		Long: `Mount the tree ID refers to read-only, run CMD with the view as its
working directory and release the view afterwards. The view path is
also exported as TREESTORE_VIEW. An empty ID ("") gives CMD an empty
directory.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			return s.Get(args[0], func(path string) error {
				return runIn(cmd.Context(), path, "TREESTORE_VIEW", args[1:])
			})
		},
	}
}

// runIn runs argv with dir as working directory and exported as envVar.
// A non-zero exit is returned as an exitError with the same status.
func runIn(ctx context.Context, dir, envVar string, argv []string) error {
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = dir
	c.Env = append(os.Environ(), envVar+"="+dir)
	c.Stdin = os.Stdin
	c.Stdout = os.Stdout
	c.Stderr = os.Stderr

	err := c.Run()
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		code := ee.ExitCode()
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			code = 128 + int(ws.Signal())
		}
		return &exitError{code: code, err: fmt.Errorf("%s: %w", argv[0], err)}
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
	return nil
}
