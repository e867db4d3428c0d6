package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/comet/pkg/arrowconv"
	cometjson "github.com/ajitpratap0/comet/pkg/json"
	"github.com/ajitpratap0/comet/pkg/logger"
	"github.com/ajitpratap0/comet/pkg/observability"
	"github.com/ajitpratap0/comet/pkg/reader"
)

var version = "0.1.0"

func main() {
	_ = godotenv.Load()

	pf := &parseFlags{}
	var logLevel string
	var trace bool

	root := &cobra.Command{
		Use:   "comet",
		Short: "Comet - Fast delimited-text reader",
		Long: `Comet parses CSV, TSV, and other delimited text into typed columns.
It auto-detects delimiters and column types, and reads large files through
memory mapping with parallel parsing.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logger.Init(logger.Config{Level: logLevel, Encoding: "console"}); err != nil {
				return err
			}
			if trace {
				return observability.Init(observability.DefaultConfig())
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if trace {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = observability.Shutdown(ctx)
			}
			_ = logger.Sync()
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "error", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&trace, "trace", false, "Emit OpenTelemetry spans to stdout")
	pf.register(root.PersistentFlags())

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Comet v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})

	describeCmd := &cobra.Command{
		Use:   "describe <file>",
		Short: "Parse a file and print its column layout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(cmd.Context(), args[0], pf)
		},
	}
	root.AddCommand(describeCmd)

	var headRows int
	headCmd := &cobra.Command{
		Use:   "head <file>",
		Short: "Parse a file and print the first rows as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHead(cmd.Context(), args[0], pf, headRows)
		},
	}
	headCmd.Flags().IntVarP(&headRows, "rows", "n", 10, "Number of rows to print")
	root.AddCommand(headCmd)

	var outPath string
	convertCmd := &cobra.Command{
		Use:   "convert <file>",
		Short: "Parse a file and write it as an Arrow IPC file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.Context(), args[0], pf, outPath)
		},
	}
	convertCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path (required)")
	_ = convertCmd.MarkFlagRequired("output")
	root.AddCommand(convertCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parse runs one traced, metered parse of path.
func parse(ctx context.Context, path string, pf *parseFlags) (*reader.File, error) {
	opts, err := pf.options()
	if err != nil {
		return nil, err
	}

	pm := observability.NewParseMetrics()
	pt := observability.NewParseTracer(path, pm)

	var f *reader.File
	err = pt.TracePhase(ctx, "parse", func(ctx context.Context) error {
		var perr error
		f, perr = reader.ParseFile(ctx, path, opts)
		return perr
	})
	pm.Done(err)
	if err != nil {
		return nil, err
	}
	pm.RecordRows(f.Rows(), nil)
	for _, w := range f.Warnings() {
		pm.RecordWarning(w.Kind)
	}

	log := logger.Get()
	log.Debug("parsed",
		zap.String("file", path),
		zap.Int("rows", f.Rows()),
		zap.Int("columns", f.Cols()))
	return f, nil
}

type columnInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Missing bool   `json:"missing"`
}

type fileInfo struct {
	File     string       `json:"file"`
	Rows     int          `json:"rows"`
	Columns  []columnInfo `json:"columns"`
	Warnings int          `json:"warnings"`
}

func runDescribe(ctx context.Context, path string, pf *parseFlags) error {
	f, err := parse(ctx, path, pf)
	if err != nil {
		return err
	}
	defer f.Close()

	info := fileInfo{
		File:     path,
		Rows:     f.Rows(),
		Warnings: len(f.Warnings()),
	}
	for col := 0; col < f.Cols(); col++ {
		info.Columns = append(info.Columns, columnInfo{
			Name:    f.Name(col),
			Type:    f.Type(col),
			Missing: f.HasMissing(col),
		})
	}

	out, err := cometjson.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runHead(ctx context.Context, path string, pf *parseFlags, n int) error {
	pf.limit = n
	f, err := parse(ctx, path, pf)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := cometjson.NewStreamingEncoder(os.Stdout, false)
	for row := 0; row < f.Rows() && row < n; row++ {
		rec := make(map[string]interface{}, f.Cols())
		for col := 0; col < f.Cols(); col++ {
			if v, ok := f.Get(col, row); ok {
				rec[f.Name(col)] = v
			} else {
				rec[f.Name(col)] = nil
			}
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return enc.Close()
}

func runConvert(ctx context.Context, path string, pf *parseFlags, outPath string) error {
	f, err := parse(ctx, path, pf)
	if err != nil {
		return err
	}
	defer f.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := arrowconv.WriteIPC(out, f); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	logger.Info("converted",
		zap.String("input", path),
		zap.String("output", outPath),
		zap.Int("rows", f.Rows()))
	return nil
}
