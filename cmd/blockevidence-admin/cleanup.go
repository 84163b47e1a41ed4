package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bigkaa/blockevidence/internal/filestore"
	"github.com/bigkaa/blockevidence/internal/seed"
	"github.com/bigkaa/blockevidence/internal/service"
)

var keepCase string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Удалить улики вне указанного дела вместе с файлами",
	RunE: withApp(true, func(cmd *cobra.Command, a *app) error {
		files, err := filestore.New(a.cfg.DataDir, a.cfg.MaxUploadSize)
		if err != nil {
			return err
		}

		store := service.NewStore(a.pool)
		res, err := seed.New(store, files, service.NewAuthService(store, nil, a.logger), a.logger).
			Cleanup(cmd.Context(), keepCase)
		if err != nil {
			return err
		}

		_, err = fmt.Fprintf(cmd.OutOrStdout(), "kept case %q (%s): deleted %d evidence, removed %d files (%d failed)\n",
			keepCase, res.CaseID, res.EvidenceDeleted, res.FilesRemoved, res.FilesRemoveFails)
		return err
	}),
}

func init() {
	cleanupCmd.Flags().StringVar(&keepCase, "keep-case", "The Midnight Heist", "название дела, улики которого сохраняются")
	rootCmd.AddCommand(cleanupCmd)
}
