package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/setlist/internal/identity"
	"github.com/desertthunder/setlist/internal/models"
	"github.com/desertthunder/setlist/internal/presentation"
	"github.com/desertthunder/setlist/internal/repositories"
	"github.com/desertthunder/setlist/internal/services"
	"github.com/desertthunder/setlist/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The database, backend and engine are opened lazily by the first command that needs them.
type Runner struct {
	config     *shared.Config
	configPath string
	user       string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	db         *sql.DB
	ownsDB     bool
	backend    services.Backend
	session    *identity.Session
	engine     *presentation.Engine
	subscriber *services.Subscriber
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	User       string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	DB         *sql.DB          // Overrides config.Database
	Backend    services.Backend // Overrides config.Remote
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Config.Remote.Timeout()}
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		user:       opts.User,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		db:         opts.DB,
		backend:    opts.Backend,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, serveCommand, listsCommand, catalogCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by the global flags.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}

	if path := cmd.String("config"); path != "" {
		r.configPath = path
		if _, err := os.Stat(path); err == nil {
			config, err := shared.LoadConfig(path)
			if err != nil {
				return ctx, err
			}
			r.config = config
			r.httpClient.Timeout = config.Remote.Timeout()
		}
	}

	if user := cmd.String("user"); user != "" {
		r.user = user
	}
	return ctx, nil
}

// After writes back pending edits and releases the database.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	return r.Close(ctx)
}

// principal returns who the CLI acts as; the --user flag wins over the config file.
func (r *Runner) principal() identity.Principal {
	user := r.user
	if user == "" {
		user = r.config.Identity.User
	}
	return identity.Principal{ID: strings.TrimSpace(user)}
}

// openDB opens the configured database unless one was injected.
func (r *Runner) openDB() (*sql.DB, error) {
	if r.db != nil {
		return r.db, nil
	}

	db, err := shared.OpenDatabase(r.config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	r.db, r.ownsDB = db, true
	return db, nil
}

// openBackend picks the remote store: the HTTP server at remote.url, or the local database.
func (r *Runner) openBackend() (services.Backend, error) {
	if r.backend != nil {
		return r.backend, nil
	}

	if url := r.config.Remote.URL; url != "" {
		r.logger.Debug("using remote list server", "url", url)
		r.backend = services.NewAPIService(url, r.httpClient, services.APIOptions{
			RateLimit: r.config.Remote.RateLimit,
			Burst:     r.config.Remote.Burst,
			Timeout:   r.config.Remote.Timeout(),
			Logger:    r.logger,
		})
		r.subscriber = services.NewSubscriber(url, services.SubscriberOptions{Logger: r.logger})
		return r.backend, nil
	}

	db, err := r.openDB()
	if err != nil {
		return nil, err
	}
	r.backend = services.NewLocalStore(db, r.logger)
	return r.backend, nil
}

// open wires the engine over the backend, with drafts kept in the local database.
func (r *Runner) open(ctx context.Context) (*presentation.Engine, error) {
	if r.engine != nil {
		return r.engine, nil
	}

	backend, err := r.openBackend()
	if err != nil {
		return nil, err
	}
	db, err := r.openDB()
	if err != nil {
		return nil, err
	}

	r.session = identity.NewSession(r.principal(), true)
	r.engine = presentation.New(backend, repositories.NewDraftRepository(db), r.session, presentation.Options{
		Logger:       r.logger,
		FlushDelay:   r.config.Engine.FlushDelay(),
		WriteTimeout: r.config.Remote.Timeout(),
		FetchTimeout: r.config.Remote.Timeout(),
		DraftsPrefix: r.config.Engine.DraftsPrefix,
	})

	if _, err := r.engine.Read(ctx); err != nil {
		r.logger.Warn("failed to load saved lists", "error", err)
	}
	return r.engine, nil
}

// follow refetches when the remote server reports a change to the engine's scope.
//
// No-op for the local backend, where the engine is the only writer in this process.
func (r *Runner) follow(ctx context.Context) {
	if r.subscriber == nil || r.engine == nil || !r.engine.Scope().Authenticated() {
		return
	}

	engine := r.engine
	go func() {
		err := r.subscriber.Run(ctx, engine.Scope(), func(n services.ChangeNotice) {
			engine.HandleRemoteChange(models.Scope{Key: n.Scope})
		})
		if err != nil && ctx.Err() == nil {
			r.logger.Warn("change feed stopped", "error", err)
		}
	}()
}

// Close flushes pending edits, then closes the engine and any database the runner opened.
func (r *Runner) Close(ctx context.Context) error {
	var err error
	if r.engine != nil {
		if serr := r.engine.Sync(ctx); serr != nil {
			r.logger.Error("failed to save pending edits", "error", serr)
			err = serr
		}
		r.engine.Close()
		r.engine = nil
	}
	if r.db != nil && r.ownsDB {
		r.db.Close()
		r.db = nil
	}
	return err
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
