package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/systemshift/treestore/internal/treesum"
)

func newVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify FILE ALGO:HEX",
		Short: "Exit 0 if FILE matches the checksum, 1 otherwise",
		Long: `Check FILE against a checksum written as "<algorithm>:<hex>", where
algorithm is md5, sha1, sha256, sha384 or sha512.`,
		Args:              cobra.ExactArgs(2),
		PersistentPreRunE: a.setupStoreless,
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := treesum.VerifyFile(args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return &exitError{code: 1, err: fmt.Errorf("%s: checksum mismatch", args[0])}
			}
			return nil
		},
	}
}
