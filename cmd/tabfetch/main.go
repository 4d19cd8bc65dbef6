package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tabfetch/tabfetch/pkg/columnar"
	"github.com/tabfetch/tabfetch/pkg/config"
	"github.com/tabfetch/tabfetch/pkg/engine"
	"github.com/tabfetch/tabfetch/pkg/logger"
	"github.com/tabfetch/tabfetch/pkg/query"
	"github.com/tabfetch/tabfetch/pkg/schema"
	"github.com/tabfetch/tabfetch/pkg/transport"

	// Register both columnar runtimes.
	_ "github.com/tabfetch/tabfetch/pkg/columnar/arrowcol"
	_ "github.com/tabfetch/tabfetch/pkg/columnar/parquetcol"
)

var version = "0.1.0"

type rootFlags struct {
	configPath string
	endpoint   string
	key        string
	authMode   string
	logLevel   string
}

type getFlags struct {
	backend     string
	format      string
	compression string
	flatten     bool
	output      string
	pageSize    int
	prefetch    int
	limit       string
	selected    string
	filters     []string
	dateRanges  []string
	sort        string
	strictHints bool
}

func main() {
	_ = godotenv.Load()

	rf := &rootFlags{}
	root := &cobra.Command{
		Use:   "tabfetch",
		Short: "tabfetch - columnar exports from resource web services",
		Long: `tabfetch reads a service resource's schema synopsis, fetches its records
page by page, and writes them as Arrow IPC streams, Parquet files or ndjson.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&rf.configPath, "config", "c", "", "path to YAML configuration")
	pf.StringVar(&rf.endpoint, "endpoint", "", "service API base URL")
	pf.StringVar(&rf.key, "key", "", "service key (overrides config and WS_KEY)")
	pf.StringVar(&rf.authMode, "auth-mode", "", "how the key is sent: query or basic")
	pf.StringVar(&rf.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(versionCmd())
	root.AddCommand(resourcesCmd(rf))
	root.AddCommand(schemaCmd(rf))
	root.AddCommand(getCmd(rf))

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tabfetch: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tabfetch v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func resourcesCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the resources the service exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup(rf)
			if err != nil {
				return err
			}
			names, err := client.ListResources(runContext())
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}
}

func schemaCmd(rf *rootFlags) *cobra.Command {
	strictHints := false
	cmd := &cobra.Command{
		Use:   "schema RESOURCE",
		Short: "Print a resource's resolved schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup(rf)
			if err != nil {
				return err
			}
			s, err := resolveSchema(runContext(), client, args[0], strictHints)
			if err != nil {
				return err
			}
			fmt.Print(s.String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&strictHints, "strict-hints", false, "fail on unknown format hints instead of defaulting to text")
	return cmd
}

func getCmd(rf *rootFlags) *cobra.Command {
	gf := &getFlags{}
	cmd := &cobra.Command{
		Use:   "get RESOURCE",
		Short: "Export a resource's records to a columnar file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rf, gf, args[0])
		},
	}
	f := cmd.Flags()
	f.StringVar(&gf.backend, "backend", "", "columnar runtime: arrow-go or parquet-go")
	f.StringVar(&gf.format, "format", "", "output format: arrow, parquet or ndjson")
	f.StringVar(&gf.compression, "compression", "", "output compression codec")
	f.BoolVar(&gf.flatten, "flatten", false, "explode association elements into prefixed columns")
	f.StringVarP(&gf.output, "output", "o", "", "output file, - for stdout")
	f.IntVar(&gf.pageSize, "page-size", 0, "records requested per page")
	f.IntVar(&gf.prefetch, "prefetch", 0, "pages fetched ahead of the writer")
	f.StringVar(&gf.limit, "limit", "all", `record limit: "all", "100" or "50,100"`)
	f.StringVar(&gf.selected, "select", "", "comma-separated fields to export")
	f.StringArrayVar(&gf.filters, "filter", nil, `membership filter, repeatable: "field=v1,v2"`)
	f.StringArrayVar(&gf.dateRanges, "date", nil, `date range filter, repeatable: "field=2023-01-01..2023-01-31"`)
	f.StringVar(&gf.sort, "sort", "", `sort order: "field" or "field:desc"`)
	f.BoolVar(&gf.strictHints, "strict-hints", false, "fail on unknown format hints instead of defaulting to text")
	return cmd
}

// setup merges config file and flags, initializes logging, and opens the
// service client.
func setup(rf *rootFlags) (*config.Config, *transport.Client, error) {
	cfg := config.Default()
	if rf.configPath != "" {
		loaded, err := config.Load(rf.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if rf.endpoint != "" {
		cfg.Service.Endpoint = rf.endpoint
	}
	if rf.key != "" {
		cfg.Service.Key = rf.key
	}
	if cfg.Service.Key == "" {
		cfg.Service.Key = os.Getenv("WS_KEY")
	}
	if rf.authMode != "" {
		cfg.Service.AuthMode = rf.authMode
	}
	if rf.logLevel != "" {
		cfg.Logging.Level = rf.logLevel
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Encoding == "" {
		cfg.Logging.Encoding = "console"
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	tc := transport.DefaultConfig()
	tc.Endpoint = cfg.Service.Endpoint
	tc.Key = cfg.Service.Key
	tc.AuthMode = transport.AuthMode(cfg.Service.AuthMode)
	tc.Language = cfg.Service.Language
	tc.Timeout = cfg.Fetch.Timeout.Std()
	tc.Retries = cfg.Fetch.Retries
	client, err := transport.New(tc)
	if err != nil {
		return nil, nil, err
	}
	return cfg, client, nil
}

func resolveSchema(ctx context.Context, client *transport.Client, resource string, strict bool) (*schema.Schema, error) {
	synopsis, err := client.FetchSynopsis(ctx, resource)
	if err != nil {
		return nil, err
	}
	r := &schema.Resolver{StrictHints: strict}
	return r.Resolve(resource, synopsis)
}

func runGet(rf *rootFlags, gf *getFlags, resource string) error {
	cfg, client, err := setup(rf)
	if err != nil {
		return err
	}
	applyGetFlags(cfg, gf)

	ctx := runContext()
	s, err := resolveSchema(ctx, client, resource, gf.strictHints)
	if err != nil {
		return err
	}

	desc, err := buildDescriptor(s, gf)
	if err != nil {
		return err
	}

	backend, err := columnar.Lookup(cfg.Output.Backend)
	if err != nil {
		return err
	}

	out := os.Stdout
	if cfg.Output.Path != "" && cfg.Output.Path != "-" {
		f, err := os.Create(cfg.Output.Path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	e, err := engine.New(client, cfg.Fetch.PageSize, cfg.Fetch.PrefetchWindow)
	if err != nil {
		return err
	}
	summary, err := e.Run(ctx, resource, s, desc, engine.Target{
		Backend: backend,
		Options: columnar.Options{
			Format:      columnar.Format(cfg.Output.Format),
			Compression: cfg.Output.Compression,
		},
		Out:     out,
		Flatten: cfg.Output.Flatten,
	})
	if err != nil {
		logger.Error("export failed",
			zap.String("resource", resource),
			zap.Int64("rows_written", summary.RowsWritten),
			zap.Error(err))
		return err
	}
	return nil
}

func applyGetFlags(cfg *config.Config, gf *getFlags) {
	if gf.backend != "" {
		cfg.Output.Backend = gf.backend
	}
	if gf.format != "" {
		cfg.Output.Format = gf.format
	}
	if gf.compression != "" {
		cfg.Output.Compression = gf.compression
	}
	if gf.flatten {
		cfg.Output.Flatten = true
	}
	if gf.output != "" {
		cfg.Output.Path = gf.output
	}
	if gf.pageSize > 0 {
		cfg.Fetch.PageSize = gf.pageSize
	}
	if gf.prefetch > 0 {
		cfg.Fetch.PrefetchWindow = gf.prefetch
	}
}

func buildDescriptor(s *schema.Schema, gf *getFlags) (*query.Descriptor, error) {
	b := query.NewBuilder(s)

	if gf.selected != "" {
		b.Select(strings.Split(gf.selected, ",")...)
	}
	for _, arg := range gf.filters {
		field, literals, err := query.ParseMembership(arg)
		if err != nil {
			return nil, err
		}
		b.WhereIn(field, literals...)
	}
	for _, arg := range gf.dateRanges {
		field, rest, found := strings.Cut(arg, "=")
		if !found {
			return nil, fmt.Errorf("date filter %q is not of the form field=from..to", arg)
		}
		low, high, err := query.ParseDateRange(rest)
		if err != nil {
			return nil, err
		}
		b.WhereDateRange(field, low, high)
	}
	if gf.limit != "" {
		lim, err := query.ParseLimit(gf.limit)
		if err != nil {
			return nil, err
		}
		if lim != nil {
			b.WithLimit(lim.Offset, lim.Count)
		}
	}
	if gf.sort != "" {
		field, dirName, _ := strings.Cut(gf.sort, ":")
		dir := query.Asc
		switch strings.ToLower(dirName) {
		case "", "asc":
		case "desc":
			dir = query.Desc
		default:
			return nil, fmt.Errorf("sort direction %q is not asc or desc", dirName)
		}
		b.OrderBy(field, dir)
	}
	return b.Build()
}

func runContext() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}
