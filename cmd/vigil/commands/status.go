package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "종목별 최근 판단 상태 조회",
	Long: `등록된 종목과 마지막 실행 결과를 조회합니다.

Example:
  go run ./cmd/vigil status`,
	RunE: showStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, err := initApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	instruments, err := a.instruments.List(ctx)
	if err != nil {
		return fmt.Errorf("❌ Failed to list instruments: %w", err)
	}

	if len(instruments) == 0 {
		fmt.Println("No instruments configured")
		return nil
	}

	fmt.Println("Instrument Status:")
	fmt.Println()

	for i := range instruments {
		inst := &instruments[i]

		state := "enabled"
		if !inst.Enabled {
			state = "disabled"
		}

		fmt.Printf("📊 %s (%s)\n", inst.Symbol, inst.Name)
		fmt.Printf("   Mode: %s, Interval: %ds, %s\n", inst.Mode, inst.Interval, state)

		rec, err := a.runs.Latest(ctx, inst.ID)
		if err != nil {
			a.log.WithError(err).Warn("Failed to load latest run record")
			fmt.Println()
			continue
		}
		if rec == nil {
			fmt.Println("   Last Run: never")
			fmt.Println()
			continue
		}

		fmt.Printf("   Last Run: %s (%s)\n", rec.FinishedAt.Format("2006-01-02 15:04:05"), rec.Status)
		fmt.Printf("   Signal: %s\n", rec.Signal)
		if rec.IsAlert {
			fmt.Println("   Alert: dispatched")
		}
		fmt.Println()
	}

	return nil
}
