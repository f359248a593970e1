package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newContainsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contains ID",
		Short: "Exit 0 if reference ID exists, 1 otherwise",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			if !s.Contains(args[0]) {
				return &exitError{code: 1}
			}
			return nil
		},
	}
}

func newResolveCmd(a *app) *cobra.Command {
	var (
		showPath bool
		showCID  bool
	)
	cmd := &cobra.Command{
		Use:   "resolve ID",
		Short: "Print the digest reference ID points at",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			d, err := s.Resolve(args[0])
			if err != nil {
				return err
			}
			switch {
			case showPath:
				fmt.Fprintln(cmd.OutOrStdout(), s.ObjectPath(d))
			case showCID:
				c, err := d.Multibase()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c)
			default:
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showPath, "path", false, "print the object directory instead")
	cmd.Flags().BoolVar(&showCID, "cid", false, "print the digest as a base32 CIDv1")
	cmd.MarkFlagsMutuallyExclusive("path", "cid")
	return cmd
}

func newRefsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refs",
		Short: "List references and their digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			ids, err := s.Refs()
			if err != nil {
				return err
			}
			for _, id := range ids {
				d, err := s.Resolve(id)
				if err != nil {
					// Replaced or removed since listing.
					a.logger.Sugar().Debugf("skip ref %s: %v", id, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", id, d)
			}
			return nil
		},
	}
}

func newObjectsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "objects",
		Short: "List stored object digests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			objects, err := s.Objects()
			if err != nil {
				return err
			}
			for _, d := range objects {
				fmt.Fprintln(cmd.OutOrStdout(), d.Hex())
			}
			return nil
		},
	}
}

func newLogCmd(a *app) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent reference updates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			entries, err := s.History(n)
			if err != nil {
				return err
			}
			for _, e := range entries {
				prev := e.Prev
				if prev == "" {
					prev = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n",
					e.Timestamp.Local().Format(time.RFC3339), e.Ref, e.Digest, prev)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&n, "number", "n", 20, "number of entries, 0 for all")
	return cmd
}
