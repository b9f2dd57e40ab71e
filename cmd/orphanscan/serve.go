package main

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"orphanscan/internal/db"
	"orphanscan/internal/logger"
	"orphanscan/internal/orphans"
	"orphanscan/internal/reconcile"
	"orphanscan/internal/report"
	"orphanscan/internal/scanner"
	"orphanscan/internal/scheduler"
)

const (
	defaultPort     = 8080
	defaultPageSize = 100
	maxPageSize     = 1000
)

var (
	port       int
	noSchedule bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve the record API and run the scheduled scan and sweep",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().IntVar(&port, "port", 0, "http port (overrides config, default"+fmt.Sprintf(" %d)", defaultPort))
	serveCmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "serve the API without running scheduled jobs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return withApp(ctx, func(a *app) error {
		if !noSchedule {
			s, err := a.schedule(ctx)
			if err != nil {
				return err
			}
			s.Start()
			defer s.Stop()
		}

		addr := fmt.Sprintf(":%d", cmp.Or(port, a.cfg.Server.Port, defaultPort))
		srv := &http.Server{
			Addr:         addr,
			Handler:      newRouter(a),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Minute,
		}
		logger.Info("listening on %s", addr)
		logger.Info("registered dialects: %v", db.RegisteredDialects())

		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()
		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// schedule registers the configured jobs. An empty schedule disables its job.
func (a *app) schedule(ctx context.Context) (*scheduler.Scheduler, error) {
	s, err := scheduler.New(ctx, a.cfg.Schedule.Timezone)
	if err != nil {
		return nil, err
	}
	if a.cfg.Schedule.Scan != "" {
		if err := s.Add("scan", a.cfg.Schedule.Scan, a.scanAll); err != nil {
			return nil, err
		}
	}
	if a.cfg.Schedule.Sweep != "" {
		if err := s.Add("sweep", a.cfg.Schedule.Sweep, a.sweep); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// newRouter registers every route on the root router; a path served under a
// different method answers 405.
func newRouter(a *app) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/records", a.listRecords).Methods(http.MethodGet)
	r.HandleFunc("/api/records/{id:[0-9]+}", a.getRecord).Methods(http.MethodGet)
	r.HandleFunc("/api/records/{id:[0-9]+}/{action}", a.applyAction).Methods(http.MethodPost)
	r.HandleFunc("/api/scan/{table}", a.scanTable).Methods(http.MethodPost)
	r.HandleFunc("/api/sweep", a.postSweep).Methods(http.MethodPost)
	r.HandleFunc("/api/export", a.export).Methods(http.MethodGet)
	r.HandleFunc("/api/schema", a.schema).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to a status code. Server-side failures are logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orphans.ErrNotFound), errors.Is(err, scanner.ErrNoSuchTable):
		status = http.StatusNotFound
	case errors.Is(err, orphans.ErrInvalidAction):
		status = http.StatusBadRequest
	case reconcile.IsClientError(err):
		status = http.StatusConflict
	default:
		logger.Errorf(r.Context(), "%s %s: %v", r.Method, r.URL.Path, err)
	}
	http.Error(w, err.Error(), status)
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// recordFilter reads table, status, reason, after and limit from the query string.
func recordFilter(r *http.Request) (orphans.Filter, error) {
	q := r.URL.Query()
	f, err := exportFilter(q.Get("table"), q.Get("status"))
	if err != nil {
		return f, err
	}
	if v := q.Get("reason"); v != "" {
		reason, err := orphans.ParseReason(v)
		if err != nil {
			return f, err
		}
		f.Reason = &reason
	}
	if v := q.Get("after"); v != "" {
		if f.AfterID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return f, fmt.Errorf("after: %w", err)
		}
	}
	f.Limit = defaultPageSize
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit <= 0 {
			return f, fmt.Errorf("limit %q is not a positive number", v)
		}
		f.Limit = min(f.Limit, maxPageSize)
	}
	return f, nil
}

func (a *app) listRecords(w http.ResponseWriter, r *http.Request) {
	f, err := recordFilter(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recs, err := a.store.Find(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]any, 0, len(recs))
	for _, rec := range recs {
		views = append(views, recordView(rec))
	}
	resp := map[string]any{"records": views}
	if len(recs) == f.Limit {
		resp["next_after"] = recs[len(recs)-1].ID
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *app) getRecord(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec, err := a.store.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recordView(rec))
}

func (a *app) applyAction(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	action, err := orphans.ParseAction(mux.Vars(r)["action"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	who := cmp.Or(r.Header.Get("X-Actor"), r.URL.Query().Get("actor"), "api")

	ctx := logger.WithRun(r.Context(), "apply")
	res, err := a.engine.Apply(ctx, id, action, who)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Outcome reconcile.Outcome `json:"outcome"`
		Record  any               `json:"record"`
	}{res.Outcome, recordView(res.Record)})
}

func (a *app) scanTable(w http.ResponseWriter, r *http.Request) {
	table := mux.Vars(r)["table"]
	ctx := logger.WithRun(r.Context(), "scan")
	s, err := a.scanner(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.ScanTable(ctx, table)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"table": table, "found": n})
}

func (a *app) postSweep(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithRun(r.Context(), "sweep")
	n, err := a.sweeper.Sweep(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}

func (a *app) export(w http.ResponseWriter, r *http.Request) {
	f, err := exportFilter(r.URL.Query().Get("table"), r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var buf bytes.Buffer
	if _, err := report.WriteXLSX(r.Context(), a.store, f, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="orphaned_records.xlsx"`)
	buf.WriteTo(w)
}

func (a *app) schema(w http.ResponseWriter, r *http.Request) {
	s, err := a.declaredSchema(r.Context())
	if err != nil {
		http.Error(w, "failed to extract schema: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
