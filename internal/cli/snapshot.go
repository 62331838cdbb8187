package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tradelab/draudit/pkg/color"
	"github.com/tradelab/draudit/pkg/jsonutil"
)

func (a *app) snapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot <command>",
		Short: "Store and read content-addressed input snapshots",
	}
	cmd.AddCommand(a.snapshotPutCmd(), a.snapshotGetCmd(), a.snapshotLsCmd())
	return cmd
}

func (a *app) snapshotPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put [file|-]",
		Short: "Canonicalize and store a JSON snapshot",
		Long: `Canonicalize a JSON snapshot and store it under its SHA-256 content hash.

A top-level "content_hash" member is stripped before hashing. Storing the
same content twice is a no-op that returns the same hash.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readJSON(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			r, err := a.openRun()
			if err != nil {
				return err
			}
			defer r.Close()
			store, err := r.Store()
			if err != nil {
				return err
			}
			h, err := store.Put(cmd.Context(), payload)
			if err != nil {
				return fmt.Errorf("snapshot put: %w", err)
			}
			if a.jsonOutput {
				return outputJSON(cmd.OutOrStdout(), map[string]any{"content_hash": h})
			}
			fmt.Fprintln(cmd.OutOrStdout(), color.Hash(string(h)))
			return nil
		},
	}
}

func (a *app) snapshotGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <hash>",
		Short: "Print a stored snapshot after verifying its hash",
		Long: `Print a stored snapshot in canonical form.

The content is re-hashed on read; a snapshot whose bytes no longer match its
address is refused. A unique hash prefix of at least 4 characters is accepted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer r.Close()
			h, err := resolveHash(cmd.Context(), store, args[0])
			if err != nil {
				return err
			}
			v, err := store.Get(cmd.Context(), h)
			if err != nil {
				return fmt.Errorf("snapshot get: %w", err)
			}
			data, err := jsonutil.Canonicalize(v)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func (a *app) snapshotLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List stored snapshot hashes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, store, err := a.openStore()
			if err != nil {
				return err
			}
			defer r.Close()
			hashes, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if a.jsonOutput {
				out := make([]string, len(hashes))
				for i, h := range hashes {
					out[i] = string(h)
				}
				return outputJSON(cmd.OutOrStdout(), out)
			}
			for _, h := range hashes {
				fmt.Fprintln(cmd.OutOrStdout(), color.Hash(string(h)))
			}
			return nil
		},
	}
}
