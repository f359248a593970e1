package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemshift/treestore/internal/config"
	"github.com/systemshift/treestore/internal/treesum"
)

func newDigestCmd(a *app) *cobra.Command {
	var (
		hash    string
		showCID bool
	)
	cmd := &cobra.Command{
		Use:   "digest DIR",
		Short: "Print the tree digest of DIR without storing it",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: a.setupStoreless,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := treesum.CodeByName(hash)
			if err != nil {
				return err
			}
			d, err := treesum.Sum(args[0], code)
			if err != nil {
				return err
			}
			if showCID {
				c, err := d.Multibase()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), c)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
	cmd.Flags().StringVar(&hash, "hash", config.DefaultHash, "hash function: sha2-256|sha2-512|blake3")
	cmd.Flags().BoolVar(&showCID, "cid", false, "print the digest as a base32 CIDv1")
	return cmd
}
