package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jmcleod/cardledger/client"
	"github.com/jmcleod/cardledger/credential"
	"github.com/jmcleod/cardledger/history"
	"github.com/jmcleod/cardledger/metrics"
	"github.com/jmcleod/cardledger/portal"
	"github.com/jmcleod/cardledger/session"
	bboltstorage "github.com/jmcleod/cardledger/storage/bbolt"
)

const (
	slotFile    = "credential.db"
	slotKeyFile = "slot.key"
)

// errSignInRequired is returned by commands that need a stored session.
var errSignInRequired = errors.New("not signed in; run 'cardledger login' first")

// errElevatedRequired is returned by admin commands run as a plain user.
var errElevatedRequired = errors.New("this command requires an admin account")

// app is one command's view of the portal and the resources behind it.
type app struct {
	portal  *portal.Portal
	store   *credential.SealedStore
	metrics *metrics.Recorder
	watcher *credential.FileWatcher
}

// openApp opens the sealed credential slot in the data directory and
// builds a portal over it. With watch set, token changes written by other
// cardledger processes are followed.
func openApp(ctx context.Context, watch bool) (*app, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.Data.Dir, slotFile), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open credential slot: %w", err)
	}
	key, err := credential.LoadOrCreateKey(filepath.Join(cfg.Data.Dir, slotKeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load slot key: %w", err)
	}
	store, err := credential.NewSealedStore(repo, key, credential.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open credential slot: %w", err)
	}

	a := &app{store: store, metrics: metrics.New()}
	saver, err := exportSaver(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}

	var deriverOpts []session.DeriverOption
	if cfg.Session.VerificationKey != "" {
		deriverOpts = append(deriverOpts, session.WithVerificationKey([]byte(cfg.Session.VerificationKey)))
	}
	c := client.New(cfg.API.URL,
		client.WithTimeout(cfg.API.Timeout),
		client.WithLogger(logger),
		client.WithMetrics(a.metrics))

	a.portal, err = portal.New(c, store, session.NewDeriver(deriverOpts...),
		portal.WithLogger(logger),
		portal.WithMetrics(a.metrics),
		portal.WithAccept(cfg.Upload.Accept...),
		portal.WithSaver(saver))
	if err != nil {
		store.Close()
		return nil, err
	}

	if watch {
		a.watcher, err = credential.NewFileWatcher(repo.Path(), store, logger)
		if err == nil {
			err = a.watcher.Start(ctx)
		}
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// exportSaver archives to S3 when a bucket is configured and to the
// download directory otherwise.
func exportSaver(ctx context.Context) (history.Saver, error) {
	if cfg.Export.Bucket == "" {
		return history.LocalSaver{Dir: cfg.Data.DownloadDir}, nil
	}
	s3, err := history.NewS3Saver(ctx, history.S3Options{
		Bucket:   cfg.Export.Bucket,
		Prefix:   cfg.Export.Prefix,
		Region:   cfg.Export.Region,
		Endpoint: cfg.Export.Endpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up export bucket: %w", err)
	}
	return s3, nil
}

// Close releases the watcher, the portal and the sealed slot.
func (a *app) Close() {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	if a.portal != nil {
		a.portal.Close()
	}
	a.store.Close()
}

// guarded opens the app and runs fn when the session passes g.
func guarded(cmd *cobra.Command, g session.Guard, fn func(context.Context, *portal.Portal) error) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	if d := g.Check(a.portal.Session()); !d.Allow {
		if !a.portal.State().Authenticated() {
			return errSignInRequired
		}
		return errElevatedRequired
	}
	err = fn(cmd.Context(), a.portal)
	if err != nil && !a.portal.State().Authenticated() {
		return fmt.Errorf("%w (session ended; run 'cardledger login')", err)
	}
	return err
}
