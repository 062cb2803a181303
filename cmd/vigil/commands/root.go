package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vigil",
	Short: "Vigil - 종목 모니터링 판단 엔진",
	Long: `Vigil Unified CLI

스케줄 기반 종목 모니터링 시스템.
규칙 스크립트와 AI 분석으로 시그널을 판정하고 알림을 발송합니다.

Usage:
  go run ./cmd/vigil [command]

Examples:
  go run ./cmd/vigil start
  go run ./cmd/vigil run 600519
  go run ./cmd/vigil status
  go run ./cmd/vigil cleanup run-log`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
