package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
)

var (
	statsJSON   bool
	statsTop    int
	statsFilter string
)

// LockStatsJSON is the --json form of one table row.
type LockStatsJSON struct {
	Lock         string  `json:"lock"`
	Name         string  `json:"name"`
	Hits         int     `json:"hits"`
	Acquires     int     `json:"acquires"`
	TotalWait    float64 `json:"total_wait"`
	AvgWait      float64 `json:"avg_wait"`
	MaxWait      float64 `json:"max_wait"`
	TotalHold    float64 `json:"total_hold"`
	AvgHold      float64 `json:"avg_hold"`
	MaxHold      float64 `json:"max_hold"`
	Unterminated int     `json:"unterminated"`
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	hotStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

var statsCmd = &cobra.Command{
	Use:   "stats <trace.json>",
	Short: "Show per-lock wait and hold statistics",
	Long: `Summarize contention per lock: acquisitions, total, average and maximum
wait and hold times. Locks are sorted by total wait time, largest first.

Hits count every acquisition; Acquires count outermost acquisitions only,
and hold time is measured from the outermost acquisition to its release.

Examples:
  otl stats trace.json
  otl stats trace.json --top 5
  otl stats trace.json --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		sess, err := openTrace(cfg, args[0], statsFilter)
		if err != nil {
			return err
		}

		stats := trace.ComputeStats(sess.Document())
		if statsTop > 0 && len(stats) > statsTop {
			stats = stats[:statsTop]
		}

		if statsJSON {
			rows := make([]LockStatsJSON, len(stats))
			for i, st := range stats {
				rows[i] = LockStatsJSON{
					Lock: string(st.Lock), Name: st.Name,
					Hits: st.Hits, Acquires: st.Acquires,
					TotalWait: st.TotalWait, AvgWait: st.AvgWait, MaxWait: st.MaxWait,
					TotalHold: st.TotalHold, AvgHold: st.AvgHold, MaxHold: st.MaxHold,
					Unterminated: st.Unterminated,
				}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rows)
		}

		configureColor(os.Stdout)
		if len(stats) == 0 {
			fmt.Println("No lock acquisitions in trace")
			return nil
		}
		printStatsTable(os.Stdout, stats)
		return nil
	},
}

// configureColor drops styling when f is not a terminal.
func configureColor(f *os.File) {
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		lipgloss.SetColorProfile(termenv.NewOutput(f).EnvColorProfile())
		return
	}
	lipgloss.SetColorProfile(termenv.Ascii)
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func printStatsTable(w io.Writer, stats []trace.LockStats) {
	headers := []string{"Lock", "Hits", "Acquires", "Wait total", "Wait avg", "Wait max", "Hold total", "Hold avg", "Hold max", "Open"}
	rows := make([][]string, len(stats))
	for i, st := range stats {
		rows[i] = []string{
			st.Name,
			strconv.Itoa(st.Hits),
			strconv.Itoa(st.Acquires),
			formatSeconds(st.TotalWait),
			formatSeconds(st.AvgWait),
			formatSeconds(st.MaxWait),
			formatSeconds(st.TotalHold),
			formatSeconds(st.AvgHold),
			formatSeconds(st.MaxHold),
			strconv.Itoa(st.Unterminated),
		}
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, style lipgloss.Style) string {
		out := make([]string, len(cells))
		for i, cell := range cells {
			align := lipgloss.Right
			if i == 0 {
				align = lipgloss.Left
			}
			out[i] = style.Width(widths[i]).Align(align).Render(cell)
		}
		return strings.Join(out, "  ")
	}

	total := 2 * (len(widths) - 1)
	for _, wd := range widths {
		total += wd
	}

	fmt.Fprintln(w, line(headers, headerStyle))
	fmt.Fprintln(w, mutedStyle.Render(strings.Repeat("─", total)))
	for i, row := range rows {
		style := lipgloss.NewStyle()
		if i == 0 && stats[i].TotalWait > 0 {
			style = hotStyle
		}
		fmt.Fprintln(w, line(row, style))
	}
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
	statsCmd.Flags().IntVar(&statsTop, "top", 0, "only show the N most contended locks")
	statsCmd.Flags().StringVar(&statsFilter, "filter", "", "only count threads with events matching this filter")
	rootCmd.AddCommand(statsCmd)
}
