// Package tui renders the CLI output: file listings, per-file status
// lines, and the run summary. Simple streaming output, no full TUI.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"

	"github.com/icelift/icelift/pkg/ingest"
	"github.com/icelift/icelift/pkg/source"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
)

// PrintHeader prints the tool banner.
func PrintHeader(version string) {
	fmt.Println()
	fmt.Println(titleStyle.Render("  ICELIFT") + mutedStyle.Render(" v"+version))
	fmt.Println(mutedStyle.Render("  Parquet to Iceberg catalog loader"))
	fmt.Println()
}

// PrintListing renders the discovered files without ingesting them.
func PrintListing(locators []source.Locator) {
	if len(locators) == 0 {
		fmt.Println(mutedStyle.Render("  No parquet files found."))
		return
	}

	fmt.Println(accentStyle.Render("▸ DISCOVERED FILES"))
	fmt.Println()
	for _, loc := range locators {
		size := ""
		if loc.Size > 0 {
			size = "  " + mutedStyle.Render(formatBytes(loc.Size))
		}
		fmt.Printf("  %s%s\n", loc.String(), size)
	}
	fmt.Println()
	fmt.Printf("  %s %s\n", mutedStyle.Render("Total:"), titleStyle.Render(fmt.Sprintf("%d files", len(locators))))
}

// PrintResult prints one per-file outcome as it happens.
func PrintResult(res ingest.Result) {
	switch {
	case res.Skipped:
		fmt.Printf("  %s %s %s\n",
			mutedStyle.Render("‒"),
			res.Locator.String(),
			mutedStyle.Render("(already ingested)"))
	case res.Err != nil:
		fmt.Printf("  %s %s %s\n",
			accentStyle.Render("✗"),
			res.Locator.String(),
			mutedStyle.Render(res.Err.Error()))
	default:
		fmt.Printf("  %s %s %s\n",
			successStyle.Render("✓"),
			res.Locator.String(),
			mutedStyle.Render(fmt.Sprintf("(%s rows, snapshot %d, %s)",
				formatNumber(res.Rows), res.SnapshotID, formatDuration(res.Duration))))
	}
}

// PrintSummary prints the end-of-run totals.
func PrintSummary(report *ingest.Report, elapsed time.Duration) {
	fmt.Println()
	if report.Failed() == 0 {
		fmt.Println(successStyle.Render("  ✓ LOAD COMPLETE"))
	} else {
		fmt.Println(accentStyle.Render("  ✗ LOAD FINISHED WITH FAILURES"))
	}
	fmt.Println()
	fmt.Printf("  %s %s succeeded, %s failed, %s skipped\n",
		mutedStyle.Render("Files:"),
		titleStyle.Render(fmt.Sprintf("%d", report.Succeeded())),
		titleStyle.Render(fmt.Sprintf("%d", report.Failed())),
		titleStyle.Render(fmt.Sprintf("%d", report.Skipped())))

	var rows int64
	for _, res := range report.Results {
		if res.Err == nil && !res.Skipped {
			rows += res.Rows
		}
	}
	fmt.Printf("  %s %s\n", mutedStyle.Render("Rows:"), titleStyle.Render(formatNumber(rows)))
	fmt.Printf("  %s %s\n", mutedStyle.Render("Time:"), titleStyle.Render(formatDuration(elapsed)))
	fmt.Println()
}

// PrintError prints a fatal error line.
func PrintError(err error) {
	fmt.Println()
	fmt.Println(accentStyle.Render("  ✗ " + err.Error()))
	fmt.Println()
}

// ShowProgress creates a progress bar for multi-file runs.
func ShowProgress(total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}
