package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "데이터 정리 도구",
	Long: `데이터베이스 정리 작업을 수행합니다.

Example:
  vigil cleanup run-log`,
}

var cleanupDays int

var cleanupRunLogCmd = &cobra.Command{
	Use:   "run-log",
	Short: "오래된 실행 기록 삭제",
	Long: `보존 기간을 지난 실행 기록을 삭제합니다.

기본 보존 기간은 설정(MONITOR_RETENTION_DAYS)을 따르며,
--days 플래그로 덮어쓸 수 있습니다.

Example:
  vigil cleanup run-log
  vigil cleanup run-log --days 30`,
	RunE: runCleanupRunLog,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.AddCommand(cleanupRunLogCmd)
	cleanupRunLogCmd.Flags().IntVar(&cleanupDays, "days", 0, "보존 일수 (0이면 설정값 사용)")
}

func runCleanupRunLog(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Run Log Cleanup ===")

	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.close()

	days := cleanupDays
	if days <= 0 {
		days = a.cfg.Monitor.RetentionDays
	}
	if days <= 0 {
		fmt.Println("✅ Retention disabled, nothing to do")
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	fmt.Printf("📊 Deleting records finished before %s\n", cutoff.Format("2006-01-02"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	deleted, err := a.runs.PruneBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("❌ Failed to prune run records: %w", err)
	}

	fmt.Printf("✅ Deleted %d records\n", deleted)
	return nil
}
