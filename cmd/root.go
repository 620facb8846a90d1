/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"
	"os"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/api"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/container"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "farm-trace",
	Short: "Harvest card traceability server",
	Long: `Farm Trace issues QR-coded harvest cards for Kerala farm produce and
verifies them when scanned. It provides a REST API for creating, listing,
verifying and exporting harvest cards, plus maintenance commands.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// 全局配置标志
	rootCmd.PersistentFlags().String("config", "", "Config file path (default: search in current directory, ./config, or $HOME/.farm-trace)")
}

// GetRootCmd 返回根命令（用于测试）
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// LoadConfig 加载配置
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// setup 加载配置、日志和依赖容器
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, *container.Container, error) {
	cfg, err := LoadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, err := api.NewLoggerFromConfig(&cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	api.SetLogger(logger)

	ctr, err := container.NewContainer(cfg, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize container: %w", err)
	}
	return cfg, logger, ctr, nil
}
