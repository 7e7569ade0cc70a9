package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/starford/lazytree/internal/datasource"
	"github.com/starford/lazytree/internal/mcpserver"
	"github.com/starford/lazytree/internal/render"
	"github.com/starford/lazytree/internal/tree"
	"github.com/starford/lazytree/internal/treeservice"
)

// client is the store and view shared by the print and mcp commands.
type client struct {
	store   *tree.Store
	view    *tree.View
	watcher *datasource.HTTP
	closeFn func()
}

func (c *client) Close() {
	c.store.Close()
	c.closeFn()
}

func newClient(cfg *Config, logger *slog.Logger, viewOpts ...tree.ViewOption) (*client, error) {
	var (
		src     tree.DataSource
		watcher *datasource.HTTP
		closeFn = func() {}
	)

	if cfg.Client.Remote() {
		h, err := datasource.NewHTTP(cfg.Client.BaseURL, cfg.Client.Token, cfg.Client.Timeout)
		if err != nil {
			return nil, err
		}
		src, watcher = h, h
		logger.Info("using remote tree", slog.String("base_url", cfg.Client.BaseURL))
	} else {
		db, err := openDB(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		src = datasource.NewLocal(treeservice.NewService(db, nil, logger))
		closeFn = func() { db.Close() }
		logger.Info("using local tree", slog.String("sqlite_path", cfg.SQLite.Path))
	}

	storeOpts := []tree.StoreOption{tree.WithLogger(logger)}
	if cfg.Client.SingleFlight {
		storeOpts = append(storeOpts, tree.WithSingleFlight())
	}
	store := tree.NewStore(src, storeOpts...)

	viewOpts = append([]tree.ViewOption{tree.WithViewLogger(logger)}, viewOpts...)
	return &client{
		store:   store,
		view:    tree.NewView(store, viewOpts...),
		watcher: watcher,
		closeFn: closeFn,
	}, nil
}

// watchChanges calls refresh after server change events until ctx is done.
// Bursts of events collapse into one refresh and a dropped stream is
// reopened after a pause.
func (c *client) watchChanges(ctx context.Context, logger *slog.Logger, refresh func(context.Context)) {
	if c.watcher == nil {
		return
	}
	changed := make(chan struct{}, 1)
	go func() {
		for {
			err := c.watcher.Watch(ctx, func(event string) {
				logger.Debug("server change", slog.String("event", event))
				select {
				case changed <- struct{}{}:
				default:
				}
			})
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Warn("change stream failed", slog.String("error", err.Error()))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			refresh(ctx)
		}
	}
}

// follow applies Store broadcasts to the view until stop is called, so forests
// published by any caller are flattened and drawn.
func (c *client) follow(ctx context.Context, logger *slog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.view.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("view stopped", slog.String("error", err.Error()))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func loadState(path string) (*tree.ExpandState, error) {
	state := &tree.ExpandState{}
	if path == "" {
		return state, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", path, err)
	}
	return state, nil
}

func saveState(path string, state *tree.ExpandState) error {
	if path == "" {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

// RunPrint prints the tree once, or after every change with WithWatch.
func RunPrint(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	out := app.out
	if out == nil {
		out = os.Stdout
	}

	logger := newLogger(os.Stderr, cfg.App.LogLevel)
	if app.watch && !cfg.Client.Remote() {
		return errors.New("watch requires client.base_url")
	}

	state, err := loadState(app.stateFile)
	if err != nil {
		return err
	}

	c, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	var textOpts []render.TextOption
	if app.showIDs {
		textOpts = append(textOpts, render.WithIDs())
	}
	text := render.NewText(out, textOpts...)

	refresh := func(ctx context.Context) {
		if app.filter != "" {
			c.view.Filter(ctx, app.filter)
		} else {
			c.view.Reload(ctx)
		}
		if ids := state.IDs(); len(ids) > 0 {
			if err := c.view.RestoreExpanded(ctx, ids); err != nil {
				logger.Warn("some nodes could not be expanded", slog.String("error", err.Error()))
			}
		}
		if app.expandAll {
			c.view.ExpandAll()
		}
		if app.watch {
			_, _ = io.WriteString(out, "\n")
		}
		text.Redraw(c.view.Frame())
	}

	refresh(ctx)
	if app.watch {
		stop := c.follow(ctx, logger)
		c.watchChanges(ctx, logger, refresh)
		stop()
	}

	return saveState(app.stateFile, c.view.ExpandState())
}

// RunMCP serves the tree view as MCP tools over stdio.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// stdout carries the MCP protocol.
	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	c, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	c.view.Reload(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := c.follow(ctx, logger)
	defer stop()
	go c.watchChanges(ctx, logger, func(ctx context.Context) {
		expanded := c.view.ExpandState().IDs()
		c.view.Reload(ctx)
		if err := c.view.RestoreExpanded(ctx, expanded); err != nil {
			logger.Debug("restore after change", slog.String("error", err.Error()))
		}
	})

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(c.view).ServeStdio()
}
