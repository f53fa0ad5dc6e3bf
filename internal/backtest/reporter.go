package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func decimal100() decimal.Decimal {
	return decimal.NewFromInt(100)
}

// Reporter writes a backtest's Results to a human-readable summary and a
// machine-readable JSON file, mirroring the teacher's multi-format
// Reporter.GenerateReport.
type Reporter struct {
	results    *Results
	outputPath string
	logger     zerolog.Logger
}

// NewReporter returns a Reporter that writes into outputPath.
func NewReporter(results *Results, outputPath string, logger zerolog.Logger) *Reporter {
	return &Reporter{results: results, outputPath: outputPath, logger: logger}
}

// GenerateReport writes every report format to outputPath.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := r.generateSummary(); err != nil {
		return err
	}
	return r.generateJSONReport()
}

func (r *Reporter) generateSummary() error {
	path := filepath.Join(r.outputPath, "backtest_summary.txt")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	defer file.Close()

	fmt.Fprintf(file, "STEP-BACK BALANCE LADDER BACKTEST\n")
	fmt.Fprintf(file, "==================================\n\n")
	fmt.Fprintf(file, "Period: %s to %s\n", r.results.StartTime.Format("2006-01-02 15:04:05"), r.results.EndTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(file, "Duration: %s\n\n", r.results.EndTime.Sub(r.results.StartTime))

	fmt.Fprintf(file, "TRADING STATISTICS\n")
	fmt.Fprintf(file, "------------------\n")
	fmt.Fprintf(file, "Total Trades: %d\n", r.results.TotalTrades)
	fmt.Fprintf(file, "Winning Trades: %d\n", r.results.WinningTrades)
	fmt.Fprintf(file, "Win Rate: %s%%\n", r.results.WinRate.Mul(decimal100()).StringFixed(2))
	fmt.Fprintf(file, "Max Step Reached: %d\n\n", r.results.MaxStepReached)

	fmt.Fprintf(file, "RETURN\n")
	fmt.Fprintf(file, "------\n")
	fmt.Fprintf(file, "Cumulative Return: %s%%\n", r.results.CumulativeReturn.Mul(decimal100()).StringFixed(2))
	fmt.Fprintf(file, "Max Drawdown: %s%%\n", r.results.MaxDrawdown.Mul(decimal100()).StringFixed(2))

	r.logger.Info().Str("file", path).Msg("backtest summary report generated")
	return nil
}

func (r *Reporter) generateJSONReport() error {
	path := filepath.Join(r.outputPath, "backtest_results.json")

	data, err := json.MarshalIndent(r.results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal backtest results: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write backtest results: %w", err)
	}

	r.logger.Info().Str("file", path).Msg("backtest JSON report generated")
	return nil
}

// PrintSummary prints a one-screen summary to stdout; it writes no files.
func (r *Reporter) PrintSummary() {
	fmt.Println("\n=== BACKTEST RESULTS ===")
	fmt.Printf("Period: %s to %s\n", r.results.StartTime.Format("2006-01-02"), r.results.EndTime.Format("2006-01-02"))
	fmt.Printf("Total Trades: %d\n", r.results.TotalTrades)
	fmt.Printf("Winning Trades: %d\n", r.results.WinningTrades)
	fmt.Printf("Win Rate: %s%%\n", r.results.WinRate.Mul(decimal100()).StringFixed(2))
	fmt.Printf("Max Step Reached: %d\n", r.results.MaxStepReached)
	fmt.Printf("Cumulative Return: %s%%\n", r.results.CumulativeReturn.Mul(decimal100()).StringFixed(2))
	fmt.Printf("Max Drawdown: %s%%\n", r.results.MaxDrawdown.Mul(decimal100()).StringFixed(2))
	fmt.Println("========================")
}
