package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gridpilot.ai/internal/persistence/indexdb"
	persistlog "gridpilot.ai/internal/persistence/log"
	"gridpilot.ai/internal/protocol"
	"gridpilot.ai/internal/sim/tuning"
	"gridpilot.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite decision index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	validator, err := protocol.NewValidator()
	if err != nil {
		logger.Fatalf("compile schemas: %v", err)
	}

	cfg := ws.Config{Tuning: tune, Validator: validator}

	if tune.Persist.DecisionLog {
		dl := persistlog.NewDecisionLogger(*dataDir)
		defer dl.Close()
		cfg.Decisions = dl
	}

	// Optional read-model index; the controller never reads it back.
	var idx *indexdb.SQLiteIndex
	if tune.Persist.Index && !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(*dataDir, "index", "decisions.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index: upsert tuning: %v", err)
		}
		cfg.Index = idx
	}

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		st := idx.Stats()
		fmt.Fprintf(rw, "# HELP gridpilot_index_queue_depth Index writer backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE gridpilot_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "gridpilot_index_queue_depth %d\n", st.QueueDepth)
		fmt.Fprintf(rw, "gridpilot_index_queue_capacity %d\n", st.QueueCapacity)

		fmt.Fprintf(rw, "# HELP gridpilot_index_dropped_total Rows dropped because the index writer fell behind.\n")
		fmt.Fprintf(rw, "# TYPE gridpilot_index_dropped_total counter\n")
		fmt.Fprintf(rw, "gridpilot_index_dropped_total{kind=%q} %d\n", "session", st.DropSessionTotal)
		fmt.Fprintf(rw, "gridpilot_index_dropped_total{kind=%q} %d\n", "decision", st.DropDecisionTotal)
	})
	if envBool("GP_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(cfg, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (protocol %s)", *addr, tune.ProtocolVersion)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
