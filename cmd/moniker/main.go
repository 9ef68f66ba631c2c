// Command moniker is the command-line companion to the client library:
// resolve bindings, read data, browse the catalog, and probe source health
// from a shell.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/moniker-data/moniker-go/internal/observability"
	"github.com/moniker-data/moniker-go/pkg/moniker"

	// Register every bundled source adapter.
	_ "github.com/moniker-data/moniker-go/pkg/adapters/hub"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "moniker:", err)
		}
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: moniker <command> [flags] [args]

Commands:
  resolve <path>     print the source binding for a moniker path
  describe <path>    print the catalog description for a path
  read <path>        fetch data through the source adapter
  fetch <path>       execute the bound query server-side
  sample <path>      print preview rows for a path
  list [path]        list child entries under a path
  tree [path]        render the namespace hierarchy
  search <query>     search the catalog
  stats              print catalog statistics
  lineage <path>     print ownership lineage for a path
  health <path>      probe connectivity of the bound source

Run 'moniker <command> -h' for command flags.
`)
}

func run(args []string) error {
	if len(args) == 0 {
		usage()
		return errors.New("missing command")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	observability.InitMetrics()
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
		shutdown, err := observability.SetupTracing(ctx, ep, "moniker-cli", "cli")
		if err != nil {
			return fmt.Errorf("op=setup_tracing: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "resolve":
		return cmdResolve(ctx, rest)
	case "describe":
		return cmdDescribe(ctx, rest)
	case "read":
		return cmdRead(ctx, rest)
	case "fetch":
		return cmdFetch(ctx, rest)
	case "sample":
		return cmdSample(ctx, rest)
	case "list":
		return cmdList(ctx, rest)
	case "tree":
		return cmdTree(ctx, rest)
	case "search":
		return cmdSearch(ctx, rest)
	case "stats":
		return cmdStats(ctx, rest)
	case "lineage":
		return cmdLineage(ctx, rest)
	case "health":
		return cmdHealth(ctx, rest)
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configFile string
	serviceURL string
	timeout    time.Duration
	jsonOut    bool
	verbose    bool
}

func newFlagSet(name string) (*flag.FlagSet, *rootFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	rf := &rootFlags{}
	fs.StringVar(&rf.configFile, "config", "", "explicit config file (layered over discovery)")
	fs.StringVar(&rf.serviceURL, "service-url", "", "resolution service base URL (overrides config)")
	fs.DurationVar(&rf.timeout, "timeout", 0, "request timeout (overrides config)")
	fs.BoolVar(&rf.jsonOut, "json", false, "print JSON even where a formatted view exists")
	fs.BoolVar(&rf.verbose, "v", false, "enable debug logging")
	return fs, rf
}

func (rf *rootFlags) client() (*moniker.Client, error) {
	observability.SetupLoggerTo(os.Stderr, "moniker-cli", "cli", rf.verbose)
	var opts []moniker.Option
	if rf.serviceURL != "" {
		opts = append(opts, moniker.WithServiceURL(rf.serviceURL))
	}
	if rf.timeout > 0 {
		opts = append(opts, moniker.WithTimeout(rf.timeout))
	}
	return moniker.NewClientFromFile(rf.configFile, opts...)
}

// oneArg returns the single positional argument, or an error naming what is
// missing.
func oneArg(fs *flag.FlagSet, what string) (string, error) {
	if fs.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one %s argument", what)
	}
	return fs.Arg(0), nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("op=render: %w", err)
	}
	fmt.Println(string(out))
	return nil
}

// params collects repeated -param key=value flags. Values parse as bool,
// int, or float when they look like one, else stay strings.
type params map[string]any

func (p params) String() string {
	pairs := make([]string, 0, len(p))
	for k, v := range p {
		pairs = append(pairs, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(pairs, ",")
}

func (p params) Set(kv string) error {
	key, raw, ok := strings.Cut(kv, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", kv)
	}
	p[key] = parseValue(raw)
	return nil
}

func parseValue(raw string) any {
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

func cmdResolve(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("resolve")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "moniker path")
	if err != nil {
		return err
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	rs, err := c.Resolve(ctx, path)
	if err != nil {
		return err
	}
	return printJSON(rs)
}

func cmdDescribe(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("describe")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "moniker path")
	if err != nil {
		return err
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	doc, err := c.Describe(ctx, path)
	if err != nil {
		return err
	}
	return printJSON(doc)
}

func cmdRead(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("read")
	p := params{}
	limit := fs.Int("limit", 0, "cap rows returned by the adapter")
	meta := fs.Bool("meta", false, "print the full adapter result with execution metadata")
	fs.Var(p, "param", "request parameter key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "moniker path")
	if err != nil {
		return err
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	opts := []moniker.ReadOption{moniker.WithParams(p)}
	if *limit > 0 {
		opts = append(opts, moniker.WithParam("limit", *limit))
	}
	if *meta {
		res, err := c.ReadResult(ctx, path, opts...)
		if err != nil {
			return err
		}
		return printJSON(res)
	}
	data, err := c.Read(ctx, path, opts...)
	if err != nil {
		return err
	}
	return printJSON(data)
}

func cmdFetch(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("fetch")
	p := params{}
	limit := fs.Int("limit", 0, "cap rows returned by the service")
	fs.Var(p, "param", "fetch query parameter key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "moniker path")
	if err != nil {
		return err
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	var opts []moniker.FetchOption
	if *limit > 0 {
		opts = append(opts, moniker.WithLimit(*limit))
	}
	for k, v := range p {
		opts = append(opts, moniker.WithFetchParam(k, fmt.Sprint(v)))
	}
	res, err := c.Fetch(ctx, path, opts...)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdSample(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("sample")
	limit := fs.Int("limit", 10, "number of preview rows")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "moniker path")
	if err != nil {
		return err
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	res, err := c.Sample(ctx, path, *limit)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdList(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := ""
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	children, err := c.ListChildren(ctx, path)
	if err != nil {
		return err
	}
	if rf.jsonOut {
		return printJSON(children)
	}
	for _, child := range children {
		fmt.Println(child)
	}
	return nil
}

func cmdTree(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("tree")
	depth := fs.Int("depth", 2, "levels of hierarchy to fetch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := ""
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	node, err := c.Tree(ctx, path, *depth)
	if err != nil {
		return err
	}
	if rf.jsonOut {
		return printJSON(node)
	}
	fmt.Print(node.Render())
	return nil
}

func cmdSearch(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("search")
	status := fs.String("status", "", "filter by lifecycle status")
	limit := fs.Int("limit", 50, "maximum results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	query, err := oneArg(fs, "query")
	if err != nil {
		return err
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	res, err := c.Search(ctx, query, *status, *limit)
	if err != nil {
		return err
	}
	return printJSON(res)
}

func cmdStats(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("stats")
	if err := fs.Parse(args); err != nil {
		return err
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	stats, err := c.CatalogStats(ctx)
	if err != nil {
		return err
	}
	return printJSON(stats)
}

func cmdLineage(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("lineage")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "moniker path")
	if err != nil {
		return err
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	doc, err := c.Lineage(ctx, path)
	if err != nil {
		return err
	}
	return printJSON(doc)
}

func cmdHealth(ctx context.Context, args []string) error {
	fs, rf := newFlagSet("health")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, err := oneArg(fs, "moniker path")
	if err != nil {
		return err
	}
	c, err := rf.client()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	status, err := c.Health(ctx, path)
	if err != nil {
		return err
	}
	if rf.jsonOut {
		if err := printJSON(status); err != nil {
			return err
		}
	} else if status.Healthy {
		fmt.Printf("healthy (%.1fms)\n", status.LatencyMS)
	} else {
		fmt.Printf("unhealthy: %s\n", status.Message)
	}
	if !status.Healthy {
		return errors.New("source is unhealthy")
	}
	return nil
}
