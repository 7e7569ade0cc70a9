package internal

import "io"

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config

	// print command settings.
	out       io.Writer
	stateFile string
	filter    string
	expandAll bool
	watch     bool
	showIDs   bool
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithOutput sets where the print command writes the tree.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithStateFile restores expanded nodes from path before printing and saves
// them back afterwards.
func WithStateFile(path string) Option {
	return func(a *application) {
		a.stateFile = path
	}
}

// WithFilter prints only the nodes matching key.
func WithFilter(key string) Option {
	return func(a *application) {
		a.filter = key
	}
}

// WithExpandAll expands every loaded node before printing.
func WithExpandAll(enabled bool) Option {
	return func(a *application) {
		a.expandAll = enabled
	}
}

// WithWatch keeps printing whenever the server reports a change.
func WithWatch(enabled bool) Option {
	return func(a *application) {
		a.watch = enabled
	}
}

// WithIDs prints node ids next to labels.
func WithIDs(enabled bool) Option {
	return func(a *application) {
		a.showIDs = enabled
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, errConfigRequired
	}
	return app, nil
}
