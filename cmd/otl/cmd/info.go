package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceLock/pkg/trace"
)

var (
	infoJSON     bool
	infoWarnings int
)

// TraceInfo is the --json form of the document summary.
type TraceInfo struct {
	Source   string        `json:"source"`
	Start    float64       `json:"start"`
	End      float64       `json:"end"`
	Events   int           `json:"events"`
	Spans    int           `json:"spans"`
	Threads  []ThreadInfo  `json:"threads"`
	Locks    []LockInfo    `json:"locks"`
	Warnings []WarningInfo `json:"warnings"`
}

// ThreadInfo describes one lane
type ThreadInfo struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Spans int    `json:"spans"`
}

// LockInfo describes one declared lock
type LockInfo struct {
	ID      string   `json:"id"`
	Label   string   `json:"label,omitempty"`
	Created *float64 `json:"created,omitempty"`
}

// WarningInfo is one data-quality warning
type WarningInfo struct {
	Kind    string `json:"kind"`
	Event   int    `json:"event"`
	Thread  string `json:"thread,omitempty"`
	Lock    string `json:"lock,omitempty"`
	Message string `json:"message"`
}

var infoCmd = &cobra.Command{
	Use:   "info <trace.json>",
	Short: "Summarize a trace and list data-quality warnings",
	Long: `Load a trace and print its time range, threads, locks and the
data-quality warnings found while loading (unknown ids, unpaired events,
acquisitions still held at the end of the trace).

Examples:
  otl info trace.json
  otl info trace.json --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		sess, err := openTrace(cfg, args[0], "")
		if err != nil {
			return err
		}
		info := buildTraceInfo(args[0], sess.Document(), sess.Warnings())

		if infoJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		printTraceInfo(info)
		return nil
	},
}

func buildTraceInfo(source string, doc *trace.Document, warnings []trace.Warning) TraceInfo {
	ext := doc.Extent()
	info := TraceInfo{
		Source: source,
		Start:  ext.Min,
		End:    ext.Max,
		Events: len(doc.Events),
		Spans:  doc.SpanCount(),
	}
	for i, th := range doc.Threads {
		info.Threads = append(info.Threads, ThreadInfo{ID: string(th.ID), Label: th.Label, Spans: len(doc.Spans(i))})
	}
	for _, id := range doc.LockOrder {
		l := doc.Locks[id]
		info.Locks = append(info.Locks, LockInfo{ID: string(l.ID), Label: l.Label, Created: l.Created})
	}
	for _, w := range warnings {
		info.Warnings = append(info.Warnings, WarningInfo{
			Kind:    w.Kind.String(),
			Event:   w.Index,
			Thread:  string(w.Thread),
			Lock:    string(w.Lock),
			Message: w.Message,
		})
	}
	return info
}

func printTraceInfo(info TraceInfo) {
	fmt.Printf("Trace: %s\n", info.Source)
	fmt.Printf("  Time range: %g to %g\n", info.Start, info.End)
	fmt.Printf("  Events:     %d\n", info.Events)
	fmt.Printf("  Spans:      %d\n", info.Spans)

	fmt.Printf("\nThreads (%d):\n", len(info.Threads))
	for _, th := range info.Threads {
		fmt.Printf("  %-8s %-20s %d spans\n", th.ID, th.Label, th.Spans)
	}

	fmt.Printf("\nLocks (%d):\n", len(info.Locks))
	for _, l := range info.Locks {
		created := ""
		if l.Created != nil {
			created = fmt.Sprintf("created at %g", *l.Created)
		}
		fmt.Printf("  %-8s %-20s %s\n", l.ID, l.Label, created)
	}

	if len(info.Warnings) == 0 {
		fmt.Println("\nNo warnings")
		return
	}
	fmt.Printf("\nWarnings (%d):\n", len(info.Warnings))
	for i, w := range info.Warnings {
		if infoWarnings > 0 && i == infoWarnings {
			fmt.Printf("  ... %d more\n", len(info.Warnings)-infoWarnings)
			break
		}
		fmt.Printf("  [%s] event %d", w.Kind, w.Event)
		if w.Thread != "" {
			fmt.Printf(" thread %s", w.Thread)
		}
		if w.Lock != "" {
			fmt.Printf(" lock %s", w.Lock)
		}
		fmt.Printf(": %s\n", w.Message)
	}
}

func init() {
	infoCmd.Flags().BoolVar(&infoJSON, "json", false, "output as JSON")
	infoCmd.Flags().IntVar(&infoWarnings, "max-warnings", 50, "maximum number of warnings to list (0 for all)")
	rootCmd.AddCommand(infoCmd)
}
