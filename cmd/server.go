/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/api"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/config"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/metrics"
	"github.com/Darshan399-cloud/Kerala-Farm-Assistant/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// metricsInterval 数据库指标采集间隔
const metricsInterval = 30 * time.Second

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Farm Trace API server.
The server will listen on the configured host and port,
and provide REST API interfaces for harvest card creation and verification.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置和依赖
		cfg, logger, ctr, err := setup(cmd)
		if err != nil {
			return err
		}
		defer ctr.Close()

		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}

		// 2. 初始化追踪
		if err := api.InitTracing(api.ServiceName, cfg.Tracing); err != nil {
			logger.WithError(err).Warn("Tracing disabled")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// 3. 启动后台任务
		ctr.RedeliverPending(ctx)

		collector := metrics.NewCollector(ctr.DB(), metricsInterval)
		collector.Start()
		defer collector.Stop()

		retention := service.NewRetentionScheduler(ctr.TraceabilityService(), &service.RetentionScheduleConfig{
			RetentionDays: cfg.Retention.Days,
		}, logger)
		retention.Start(ctx)
		defer retention.Stop()

		// 配置文件变更时调整日志级别
		if configPath, _ := cmd.Flags().GetString("config"); configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath, logger)
			watcher.OnConfigChange(func(newCfg *config.Config) {
				logger.SetLevel(api.ParseLevel(newCfg.Log.Level))
			})
			if err := watcher.Start(); err != nil {
				logger.WithError(err).Warn("Config watcher disabled")
			} else {
				defer watcher.Stop()
			}
		}

		// 4. 设置路由
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}
		router := api.SetupRoutes(cfg, api.Dependencies{
			DB:           ctr.DB(),
			Redis:        ctr.Redis(),
			Traceability: ctr.TraceabilityService(),
			AuditLog:     ctr.AuditLogService(),
			Logger:       logger,
		})

		// 5. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.WithField("addr", addr).Info("Server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		// 等待中断信号
		select {
		case <-ctx.Done():
		case err := <-errCh:
			return fmt.Errorf("failed to start server: %w", err)
		}

		logger.Info("Shutting down server...")

		// 优雅关闭
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server forced to shutdown")
		}
		if err := api.ShutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush traces")
		}

		logger.Info("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
