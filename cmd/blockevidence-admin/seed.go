package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bigkaa/blockevidence/internal/filestore"
	"github.com/bigkaa/blockevidence/internal/seed"
	"github.com/bigkaa/blockevidence/internal/service"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Загрузить демонстрационные учётные записи, дело и улики",
	RunE: withApp(true, func(cmd *cobra.Command, a *app) error {
		demo, err := seed.LoadDemo()
		if err != nil {
			return err
		}
		files, err := filestore.New(a.cfg.DataDir, a.cfg.MaxUploadSize)
		if err != nil {
			return err
		}

		store := service.NewStore(a.pool)
		hasher := service.NewAuthService(store, nil, a.logger)
		res, err := seed.New(store, files, hasher, a.logger).Seed(cmd.Context(), demo)
		if err != nil {
			return err
		}
		return printCredentials(cmd.OutOrStdout(), demo, res)
	}),
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// printCredentials выводит демонстрационные учётные данные.
// Секреты crime box показываются только при его создании.
func printCredentials(w io.Writer, d *seed.Data, res *seed.Result) error {
	var b strings.Builder
	b.WriteString("BLOCKEVIDENCE DEMO CREDENTIALS\n\n")
	for i, u := range d.Users {
		fmt.Fprintf(&b, "%d. %s (%s)\n   username: %s\n   password: %s\n", i+1, u.FullName, u.Role, u.Username, seed.DemoPassword)
	}
	fmt.Fprintf(&b, "\nCase: %s (%s)\n", d.Case.Title, res.CaseID)
	if res.CrimeBox != nil {
		fmt.Fprintf(&b, "Crime box: %s\n   public key:  %s\n   private key: %s\n",
			res.CrimeBox.Name, res.CrimeBox.PublicKey, res.CrimeBox.PrivateKey)
	} else {
		b.WriteString("Case already existed: crime box and evidence were not recreated\n")
	}
	fmt.Fprintf(&b, "Evidence created: %d\n", res.Evidence)

	_, err := io.WriteString(w, b.String())
	return err
}
