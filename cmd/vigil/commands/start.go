package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/vigil/internal/api"
	"github.com/wonny/vigil/internal/api/handlers"
	"github.com/wonny/vigil/internal/scheduler"
	"github.com/wonny/vigil/internal/scheduler/jobs"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "모니터링 데몬 시작",
	Long: `스케줄러와 API 서버를 시작합니다.

이 명령어는:
- 활성화된 종목마다 주기 작업 등록
- 종목 테이블 변경 동기화 (5분마다)
- 실행 기록 보존 기간 정리 (매일)
- 관리용 HTTP API 제공

데몬은 Ctrl+C로 종료할 수 있습니다.

Example:
  go run ./cmd/vigil start`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Vigil Monitoring Daemon ===")

	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.close()

	// Scheduler with per-job concurrency bound and tick grace
	sched := scheduler.New(a.log, a.cfg.Monitor.MaxConcurrentPerJob, a.cfg.Monitor.TickGrace)

	syncJob := jobs.NewSyncJob(a.instruments, sched, a.pipeline, a.log)
	if err := sched.AddJob(syncJob); err != nil {
		return fmt.Errorf("register sync job: %w", err)
	}
	if err := sched.AddJob(jobs.NewRetentionJob(a.runs, a.cfg.Monitor.RetentionDays, a.log)); err != nil {
		return fmt.Errorf("register retention job: %w", err)
	}

	// Register instrument jobs before the first tick so monitoring
	// starts immediately, not after the first sync interval.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := syncJob.Run(ctx); err != nil {
		a.log.WithError(err).Error("Initial instrument sync failed")
	}
	cancel()

	sched.Start()

	fmt.Println("\n✅ Scheduler started")
	fmt.Println("\nRegistered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}

	// API server
	instrumentHandler := handlers.NewInstrumentHandler(a.instruments, a.runs, a.pipeline, a.fetcher, a.log)
	jobHandler := handlers.NewJobHandler(sched, a.log)
	router := api.NewRouter(instrumentHandler, jobHandler, a.log)
	server := api.New(a.cfg, a.log, router)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	fmt.Printf("\n✅ API server listening on :%s\n", a.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	// Wait for interrupt signal or server failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		if err != nil {
			a.log.WithError(err).Error("API server exited")
		}
	}

	fmt.Println("\nShutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.log.WithError(err).Error("API server shutdown failed")
	}

	sched.Stop()
	fmt.Println("Daemon stopped")

	return nil
}
