package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/vigil/internal/monitor"
	"github.com/wonny/vigil/internal/runlog"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [symbol]",
	Short: "종목 판단 파이프라인 즉시 실행",
	Long: `특정 종목의 판단 파이프라인을 즉시 한 번 실행합니다.

스케줄 게이트를 우회하므로 거래일/시간대와 무관하게 실행되며,
결과는 실행 기록에 남습니다.

Example:
  go run ./cmd/vigil run 600519`,
	Args: cobra.ExactArgs(1),
	RunE: runManual,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runManual(cmd *cobra.Command, args []string) error {
	symbol := args[0]

	fmt.Printf("=== Manual Run: %s ===\n\n", symbol)

	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	inst, err := a.instruments.GetBySymbol(ctx, symbol)
	if err != nil {
		return fmt.Errorf("❌ Failed to find instrument %s: %w", symbol, err)
	}

	rec, err := a.pipeline.Execute(ctx, inst, monitor.ManualRun)
	if err != nil {
		return fmt.Errorf("❌ Run failed: %w", err)
	}

	printRecord(rec)
	return nil
}

func printRecord(rec *runlog.Record) {
	fmt.Printf("Status:   %s\n", rec.Status)
	if rec.SkipReason != "" {
		fmt.Printf("Skipped:  %s\n", rec.SkipReason)
	}
	fmt.Printf("Signal:   %s (prev %s)\n", rec.Signal, rec.PrevSignal)
	if rec.Urgency != "" {
		fmt.Printf("Urgency:  %s\n", rec.Urgency)
	}
	if rec.Detail != "" {
		fmt.Printf("Detail:   %s\n", rec.Detail)
	}

	switch {
	case rec.IsAlert:
		fmt.Println("\n📢 Alert dispatched")
	case rec.Suppressed:
		fmt.Println("\n🔇 Alert suppressed")
	}

	fmt.Printf("\nDuration: %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond))
}
