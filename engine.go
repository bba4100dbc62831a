package main

import (
	"context"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vadiminshakov/installd/config"
	"github.com/vadiminshakov/installd/core/installer"
	"github.com/vadiminshakov/installd/core/installer/hooks"
	"github.com/vadiminshakov/installd/core/journal"
	"github.com/vadiminshakov/installd/core/registry"
	"github.com/vadiminshakov/installd/core/storage"
	"github.com/vadiminshakov/installd/core/verify"
	"github.com/vadiminshakov/installd/io/container"
	"github.com/vadiminshakov/installd/io/daemon"
	"github.com/vadiminshakov/installd/io/helper"
	"github.com/vadiminshakov/installd/io/metrics"
	"github.com/vadiminshakov/installd/io/store"
	"github.com/vadiminshakov/installd/io/verifier"
)

const maxPackageNameLength = 255

// engine is the wired install orchestrator and everything it owns.
type engine struct {
	installer *installer.Installer
	registry  *registry.Registry
	agents    *verify.LocalDirectory
	metrics   *metrics.Metrics

	closers []func() error
}

// startEngine opens the registry and journal, cleans up after a crash,
// connects to the helper and the daemon and starts the work queue.
func startEngine(cfg *config.Config) (e *engine, err error) {
	e = &engine{metrics: metrics.New(nil)}
	defer func() {
		if err != nil {
			e.close()
		}
	}()

	db, err := store.New(cfg.RegistryPath)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, db.Close)

	e.registry, err = registry.New(db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load registry")
	}
	e.closers = append(e.closers, func() error { e.registry.Close(); return nil })

	containers, err := container.New(cfg.ContainerDir)
	if err != nil {
		return nil, err
	}

	conn := daemon.NewConnector(daemon.UnixDialer(cfg.DaemonSocket),
		daemon.WithTimeout(cfg.DaemonTimeout),
		daemon.WithObserver(e.metrics))
	e.closers = append(e.closers, conn.Close)
	client := daemon.NewClient(conn)

	helperClient, err := helper.Dial(cfg.HelperAddr)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, helperClient.Close)

	env := &storage.Env{
		AppDir:              cfg.AppDir,
		PrivateAppDir:       cfg.PrivateAppDir,
		LibDir:              cfg.LibDir,
		ContainerKey:        cfg.ContainerKey,
		LowStorageThreshold: cfg.LowStorageThreshold,
		Helper:              helperClient,
		Daemon:              client,
		Containers:          containers,
		InstallLock:         &sync.Mutex{},
	}

	jrnl, err := journal.Open(journal.Config{Dir: cfg.JournalDir, Sync: true})
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, jrnl.Close)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DaemonTimeout)
	defer cancel()
	recovered, err := jrnl.Recover(ctx, env, e.registry, client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to recover interrupted items")
	}
	for _, rec := range recovered {
		outcome := "rolled back"
		if rec.Committed {
			outcome = "rolled forward"
		}
		log.WithFields(log.Fields{"item": rec.Item, "kind": rec.Kind, "pkg": rec.Package}).
			Warnf("%s item interrupted by a crash", outcome)
	}
	stale, err := storage.RemoveStale(env)
	if err != nil {
		log.Warnf("failed to remove stale scratch artifacts: %v", err)
	}
	if len(stale) > 0 {
		log.Infof("removed %d stale scratch artifacts", len(stale))
	}

	hookRegistry := hooks.NewRegistry()
	hookRegistry.Register("default", hooks.NewDefaultHook())
	hookRegistry.Register("validation", hooks.NewValidationHook(maxPackageNameLength, 0))
	hookRegistry.Register("metrics", hooks.NewMetricsHook())
	hookRegistry.Register("audit", hooks.NewAuditHook(filepath.Join(cfg.JournalDir, "audit.log")))

	e.agents = verify.NewLocalDirectory()
	if err := registerVerifiers(e.agents, cfg.Verifiers, &http.Client{Timeout: cfg.DaemonTimeout}); err != nil {
		return nil, err
	}
	e.installer = installer.New(installer.Config{
		VerificationEnabled: cfg.VerificationEnabled,
		VerificationTimeout: cfg.VerificationTimeout,
		BindRetryDelay:      cfg.BindRetryDelay,
	}, installer.Deps{
		Env:      env,
		Helper:   helperClient,
		Daemon:   client,
		Registry: e.registry,
		Journal:  jrnl,
		Agents:   e.agents,
		Hooks:    hookRegistry,
		Recorder: e.metrics,
	})
	e.closers = append(e.closers, func() error { e.installer.Stop(); return nil })

	if cfg.VerificationAddr != "" {
		votes := verifier.NewServer(cfg.VerificationAddr, e.installer)
		if err := votes.Run(); err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return votes.Shutdown(ctx)
		})
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr, e.metrics)
		e.closers = append(e.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}

	log.Infof("engine started with %d installed packages", len(e.registry.List()))
	return e, nil
}

// registerVerifiers adds the configured verification agents to dir. Each
// one is reached over HTTP at its endpoint.
func registerVerifiers(dir *verify.LocalDirectory, agents []config.Verifier, client *http.Client) error {
	for _, v := range agents {
		agent := verify.Agent{Package: v.Package, UID: v.UID, CertDigest: v.CertDigest, Required: v.Required}
		if err := dir.Register(agent, verifier.Notify(client, v.Endpoint)); err != nil {
			return errors.Wrap(err, "failed to register verifier")
		}
		log.WithFields(log.Fields{"agent": v.Package, "uid": v.UID, "required": v.Required}).
			Info("verification agent registered")
	}
	return nil
}

// close releases everything in reverse order of acquisition.
func (e *engine) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			log.Warnf("shutdown: %v", err)
		}
	}
	e.closers = nil
}
