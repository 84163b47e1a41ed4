package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bigkaa/blockevidence/internal/config"
	"github.com/bigkaa/blockevidence/internal/database"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:          "blockevidence-admin",
	Short:        "Служебные команды BlockEvidence",
	Long:         "Миграции схемы, демонстрационные данные и очистка улик. Параметры подключения берутся из переменных BE_*.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "файл с переменными окружения (необязателен)")
}

// app — общие зависимости команд.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
}

// withApp загружает конфигурацию, подключается к PostgreSQL и вызывает run.
// needPool=false — команда работает без пула (миграции).
func withApp(needPool bool, run func(cmd *cobra.Command, a *app) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("чтение %s: %w", envFile, err)
		}

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("загрузка конфигурации: %w", err)
		}
		logger := config.SetupLogger(cfg).With(slog.String("command", cmd.CommandPath()))

		a := &app{cfg: cfg, logger: logger}
		if needPool {
			pool, err := database.Connect(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("подключение к PostgreSQL: %w", err)
			}
			defer pool.Close()
			a.pool = pool
		}

		if err := run(cmd, a); err != nil {
			logger.Error("Команда завершилась с ошибкой", slog.String("error", err.Error()))
			return err
		}
		return nil
	}
}
