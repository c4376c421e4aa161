package main

import (
	"encoding/json"
	"fmt"
	"os"

	"monetcore/internal/config"
	"monetcore/internal/infrastructure/database"
	"monetcore/internal/logger"
	"monetcore/internal/service"
	"monetcore/pkg/idgen"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var Version = "dev"

var configPath string

// app 运维命令共用的依赖
type app struct {
	cfg  *config.Config
	db   *gorm.DB
	svcs *service.Services
	log  zerolog.Logger
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "monetcore 运维工具：退款、调账、兑换码、推广员、outbox",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "配置文件路径")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(refundCmd())
	rootCmd.AddCommand(grantCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(codesCmd())
	rootCmd.AddCommand(affiliateCmd())
	rootCmd.AddCommand(payoutCmd())
	rootCmd.AddCommand(outboxCmd())
	rootCmd.AddCommand(signWebhookCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap 连接数据库并组装服务；CLI 不启用 Redis 和 Kafka
func bootstrap() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log := logger.New(cfg, "ledgerctl")

	// worker id 与 API(1)、worker(2) 错开
	if err := idgen.Init(3); err != nil {
		return nil, err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:  cfg,
		db:   db,
		svcs: service.New(db, nil, cfg, log),
		log:  log,
	}, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "自动迁移表结构",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// Open 内部已执行 AutoMigrate
			if _, err := database.Open(&cfg.Database); err != nil {
				return err
			}
			fmt.Println("迁移完成")
			return nil
		},
	}
}
