package main

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/twitter/solo/common/endpoints"
	solog "github.com/twitter/solo/common/log"
	"github.com/twitter/solo/common/stats"
	"github.com/twitter/solo/config/soloconfig"
	"github.com/twitter/solo/daemon/server"
	"github.com/twitter/solo/history"
	"github.com/twitter/solo/runner"
	"github.com/twitter/solo/runner/execers"
	"github.com/twitter/solo/runner/runners"
)

// How long shutdown waits for the running job to settle after cancelling it.
const stopTimeout = 15 * time.Second

// solod owns every component of the daemon, wired from one Config.
type solod struct {
	config    *soloconfig.Config
	stat      stats.StatsReceiver
	exec      runner.Executor
	sched     *runners.Scheduler
	lifecycle *runners.Lifecycle
	store     history.Store
	recorder  *history.Recorder
	admin     *endpoints.TwitterServer
	server    *server.Server
}

func newExecutor(c soloconfig.ExecutorConfig) (runner.Executor, error) {
	switch c.Type {
	case soloconfig.ExecutorSim:
		return execers.NewSimExecutor(), nil
	case soloconfig.ExecutorOpenAI:
		if c.OpenAI.APIKey() == "" {
			return nil, errors.Errorf("no API key in $%s", c.OpenAI.APIKeyEnv)
		}
		return execers.NewOpenAIExecutor(execers.OpenAIConfig{
			Model:   c.OpenAI.Model,
			APIKey:  c.OpenAI.APIKey(),
			BaseURL: c.OpenAI.BaseURL,
			Timeout: c.OpenAI.Timeout(),
		}), nil
	}
	return nil, errors.Errorf("unknown executor type %q", c.Type)
}

func openHistory(c soloconfig.HistoryConfig) (history.Store, error) {
	switch c.Driver {
	case soloconfig.HistoryMemory:
		return history.NewMemoryStore(c.Size), nil
	case soloconfig.HistorySqlite:
		return history.OpenSqlite(c.Path, c.Size)
	}
	return nil, errors.Errorf("unknown history driver %q", c.Driver)
}

func newSolod(c *soloconfig.Config) (*solod, error) {
	exec, err := newExecutor(c.Executor)
	if err != nil {
		return nil, err
	}
	store, err := openHistory(c.History)
	if err != nil {
		return nil, errors.Wrap(err, "opening history")
	}

	stat := endpoints.MakeStatsReceiver("solod").Precision(time.Millisecond)
	d := &solod{
		config:    c,
		stat:      stat,
		exec:      exec,
		lifecycle: runners.NewLifecycle(exec, stat.Scope("lifecycle")),
		store:     store,
		recorder:  history.NewRecorder(store, stat.Scope("history")),
		admin:     endpoints.NewTwitterServer(c.HTTP.Addr, stat),
	}
	d.sched = runners.NewScheduler(exec, runners.Config{
		AbortTimeout: c.Scheduler.AbortTimeout(),
		Listener:     d.recorder,
	}, stat.Scope("sched"))
	d.server = server.NewServer(d.sched, c.Daemon.MaxConns, stat.Scope("daemon"))
	d.server.SetDefaults(c.Scheduler.DefaultOptions())

	d.admin.AddJSON("/admin/state.json", func(r *http.Request) (interface{}, error) {
		return d.sched.Snapshot(), nil
	})
	d.admin.AddJSON("/admin/history.json", d.history)
	d.admin.AddJSON("/admin/lifecycle.json", d.lifecycleOp)
	return d, nil
}

func (d *solod) history(r *http.Request) (interface{}, error) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		var err error
		if limit, err = strconv.Atoi(v); err != nil {
			return nil, errors.Wrap(err, "bad limit")
		}
	}
	return d.store.Recent(r.Context(), limit)
}

// lifecycleOp runs the op named by ?op= (load, unload or purge). POST only.
func (d *solod) lifecycleOp(r *http.Request) (interface{}, error) {
	if r.Method != http.MethodPost {
		return nil, errors.Errorf("%s requires POST", r.URL.Path)
	}
	op := runners.LifecycleOp(r.URL.Query().Get("op"))
	if err := d.lifecycle.Do(r.Context(), op); err != nil {
		return nil, err
	}
	return map[string]string{"op": string(op), "status": "ok"}, nil
}

// reconfigure applies the parts of c that can change without a restart.
func (d *solod) reconfigure(c *soloconfig.Config) {
	d.sched.SetAbortTimeout(c.Scheduler.AbortTimeout())
	d.server.SetDefaults(c.Scheduler.DefaultOptions())
	if c.Log.Level != "" {
		if err := solog.SetLevel(c.Log.Level); err != nil {
			log.Warnf("Keeping log level: %v", err)
		}
	}
	log.Infof("Config reloaded: abort timeout %s, default policy %s",
		c.Scheduler.AbortTimeout(), c.Scheduler.DefaultPolicy)
}

// serve runs until ctx is done, then stops taking sessions and jobs, cancels the
// running job and waits for it, and flushes history.
func (d *solod) serve(ctx context.Context, sockL, httpL net.Listener) error {
	errCh := make(chan error, 2)
	go func() { errCh <- errors.Wrap(d.admin.ServeListener(httpL), "admin server") }()
	go func() { errCh <- errors.Wrap(d.server.Serve(sockL), "scheduler server") }()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warnf("sd_notify: %v", err)
	} else if ok {
		log.Debug("Notified systemd: ready")
	}

	var err error
	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	log.Info("Stopping")
	daemon.SdNotify(false, daemon.SdNotifyStopping)
	d.server.Stop()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if stopErr := d.sched.Stop(stopCtx); stopErr != nil {
		log.Warnf("Running job did not settle: %v", stopErr)
	}
	d.admin.Shutdown(stopCtx)
	d.recorder.Close()
	if closeErr := d.store.Close(); closeErr != nil {
		log.Warnf("Closing history: %v", closeErr)
	}
	return err
}
