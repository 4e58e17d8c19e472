package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ergochat/readline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/yuin/goldmark"

	"github.com/drpcorg/shelf"
	"github.com/drpcorg/shelf/format"
	"github.com/drpcorg/shelf/kv"
	"github.com/drpcorg/shelf/schema"
	"github.com/drpcorg/shelf/utils"
)

type Config struct {
	DBDir      string `toml:"db_dir"`
	ContentDir string `toml:"content_dir"`
	SchemaFile string `toml:"schema_file"`
	Listen     string `toml:"listen"`
	LogLevel   string `toml:"log_level"`
}

func loadConfig() (*Config, error) {
	var (
		configPath = pflag.StringP("config", "c", "", "TOML config file")
		envPath    = pflag.String("env", "", ".env file to load")
		dbDir      = pflag.String("db", "", "database directory")
		contentDir = pflag.String("content", "", "content checkout root")
		schemaFile = pflag.String("schema", "", "generated schema JSON")
		listen     = pflag.String("listen", "", "metrics/health listen address")
		logLevel   = pflag.String("log-level", "", "debug|info|warn|error")
	)
	pflag.Parse()

	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			return nil, err
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		DBDir:      "shelf.db",
		ContentDir: ".",
		LogLevel:   "info",
	}
	if *configPath != "" {
		if _, err := toml.DecodeFile(*configPath, cfg); err != nil {
			return nil, err
		}
	}
	fromEnv(&cfg.DBDir, "SHELF_DB")
	fromEnv(&cfg.ContentDir, "SHELF_CONTENT")
	fromEnv(&cfg.SchemaFile, "SHELF_SCHEMA")
	fromEnv(&cfg.Listen, "SHELF_LISTEN")
	fromEnv(&cfg.LogLevel, "SHELF_LOG_LEVEL")
	fromFlag(&cfg.DBDir, dbDir)
	fromFlag(&cfg.ContentDir, contentDir)
	fromFlag(&cfg.SchemaFile, schemaFile)
	fromFlag(&cfg.Listen, listen)
	fromFlag(&cfg.LogLevel, logLevel)
	return cfg, nil
}

func fromEnv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func fromFlag(dst *string, flag *string) {
	if *flag != "" {
		*dst = *flag
	}
}

func slogLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func serveMetrics(addr string, db *shelf.Database, log utils.Logger) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(shelf.Collectors()...)
	if pb, ok := db.Store().(*kv.Pebble); ok {
		reg.MustRegister(kv.NewCollector(pb))
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	go func() {
		if err := http.ListenAndServe(addr, r); err != nil {
			log.Error("metrics listener failed", "error", err)
		}
	}()
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("index"),
	readline.PcItem("reindex-paths"),
	readline.PcItem("get"),
	readline.PcItem("put"),
	readline.PcItem("del"),
	readline.PcItem("query"),
	readline.PcItem("render"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

const usage = `commands:
  index                         full reindex from the schema file
  reindex-paths <path>...       incremental reindex of the given files
  get <path>                    print one document
  put <collection> <path> <js>  write a document from inline JSON
  del <path>                    delete a document
  query <collection> [sort] [first]
  render <path>                 render the document body to HTML
  exit`

func main() {
	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-2)
	}
	log := utils.NewDefaultLogger(slogLevel(cfg.LogLevel)).Named("cli")

	db, err := shelf.Open(cfg.DBDir, cfg.ContentDir, shelf.Options{
		Logger: log,
		OnStatus: func(s shelf.Status) {
			log.Info("status", "op", s.Op, "id", s.ID, "state", string(s.State))
		},
	})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	defer db.Close()

	if cfg.Listen != "" {
		serveMetrics(cfg.Listen, db, log)
	}

	l, err := readline.NewEx(&readline.Config{
		Prompt:            "▤ ",
		HistoryFile:       "/tmp/shelf_readline.tmp",
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	ctx := context.Background()
	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			}
			continue
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Split(line, " ")
		cmd := args[0]
		args = args[1:]
		err = nil
		switch cmd {
		case "help":
			fmt.Println(usage)
		case "exit", "quit":
			ex := 0
			if err = db.Close(); err != nil {
				_, _ = fmt.Fprintln(os.Stderr, err.Error())
				ex = -1
			}
			os.Exit(ex)
		case "index":
			err = runIndex(ctx, db, cfg.SchemaFile)
		case "reindex-paths":
			err = db.IndexContentByPaths(ctx, args)
		case "get":
			err = runGet(ctx, db, args)
		case "put":
			err = runPut(ctx, db, args)
		case "del":
			if len(args) != 1 {
				err = fmt.Errorf("usage: del <path>")
				break
			}
			err = db.Delete(ctx, args[0])
		case "query":
			err = runQuery(ctx, db, args)
		case "render":
			err = runRender(ctx, db, args)
		default:
			_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}

		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
	}
}

func runIndex(ctx context.Context, db *shelf.Database, schemaFile string) error {
	if schemaFile == "" {
		return fmt.Errorf("no schema file configured")
	}
	raw, err := os.ReadFile(schemaFile)
	if err != nil {
		return err
	}
	sch, err := schema.Parse(raw)
	if err != nil {
		return err
	}
	return db.IndexContent(ctx, nil, sch)
}

func runGet(ctx context.Context, db *shelf.Database, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: get <path>")
	}
	doc, err := db.Get(ctx, args[0])
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runPut(ctx context.Context, db *shelf.Database, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: put <collection> <path> <json>")
	}
	data := make(map[string]any)
	if err := json.Unmarshal([]byte(strings.Join(args[2:], " ")), &data); err != nil {
		return err
	}
	return db.Put(ctx, args[1], data, args[0])
}

func runQuery(ctx context.Context, db *shelf.Database, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: query <collection> [sort] [first]")
	}
	params := shelf.QueryParams{Collection: args[0]}
	if len(args) > 1 {
		params.Sort = args[1]
	}
	if len(args) > 2 {
		first, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		params.First = first
	}
	res, err := db.Query(ctx, params, func(path string) (any, error) {
		return db.Get(ctx, path)
	})
	if err != nil {
		return err
	}
	for _, e := range res.Edges {
		fmt.Printf("%s\t%s\n", e.Path, e.Cursor)
	}
	fmt.Printf("hasNext=%v hasPrev=%v\n", res.PageInfo.HasNextPage, res.PageInfo.HasPreviousPage)
	return nil
}

func runRender(ctx context.Context, db *shelf.Database, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: render <path>")
	}
	doc, err := db.Get(ctx, args[0])
	if err != nil {
		return err
	}
	body, _ := doc[format.BodyKey].(string)
	if body == "" {
		// after Get reshaping the body travels under its schema name
		if sch, err := db.Schema(); err == nil {
			if col, ok := sch.CollectionForPath(args[0]); ok {
				if bf, ok := col.BodyField(); ok {
					body, _ = doc[bf.Name].(string)
				}
			}
		}
	}
	var sb strings.Builder
	if err := goldmark.Convert([]byte(body), &sb); err != nil {
		return err
	}
	fmt.Println(sb.String())
	return nil
}
