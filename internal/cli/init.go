package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"relink/internal/config"
	"relink/internal/storage"
)

// InitOptions init 命令选项
type InitOptions struct {
	Force bool
}

// NewInitCmd 创建 init 命令
func NewInitCmd() *cobra.Command {
	opts := &InitOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration and create the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx := GetCLIContext(cmd)
			if cliCtx == nil {
				return fmt.Errorf("CLI context not initialized")
			}
			if err := RunInit(cliCtx.ConfigPath, cliCtx.StoragePath, opts); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\nCreated %s\n", cliCtx.ConfigPath, cliCtx.StoragePath)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&opts.Force, "force", "f", false, "overwrite existing configuration")
	return cmd
}

// RunInit 写入默认配置并初始化数据库。配置需已通过 config.Load 加载。
func RunInit(configPath, dataPath string, opts *InitOptions) error {
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return fmt.Errorf("configuration already exists at %s (use --force to overwrite)", configPath)
	}

	if err := config.Save(); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	db, err := storage.Open(dataPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	return db.Close()
}
