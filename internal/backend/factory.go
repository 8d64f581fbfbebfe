package backend

import (
	"context"
	"errors"
	"fmt"

	"famfunds/internal/amqp"
	"famfunds/internal/core"
	"famfunds/internal/events"
	"famfunds/internal/ledger"
	applog "famfunds/internal/log"
	"famfunds/internal/seed"
	"famfunds/internal/storage"
)

const defaultEventBuffer = 256

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	dispatcher, closeSink := f.createDispatcher(config)
	opts := []ledger.Option{
		ledger.WithNotifier(dispatcher),
		ledger.WithLogger(f.logger),
	}
	if config.Location != nil {
		opts = append(opts, ledger.WithLocation(config.Location))
	}

	var (
		res *BackendResult
		err error
	)
	switch config.Type {
	case SQLiteBackend:
		res, err = f.createSQLiteBackend(ctx, config, opts)
	case MemoryBackend:
		res, err = f.createMemoryBackend(ctx, config, opts)
	default:
		err = fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		if closeSink != nil {
			_ = closeSink()
		}
		return nil, err
	}

	res.Dispatcher = dispatcher
	res.Cleanup = chain(res.Cleanup, closeSink)
	return res, nil
}

// createDispatcher picks the event sink. A broker that cannot be reached at
// startup degrades to logging events, like the ledger running without sync.
func (f *DefaultFactory) createDispatcher(config Config) (*events.Dispatcher, CleanupFunc) {
	buffer := config.EventBufferSize
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, events will only be logged", applog.FieldError, err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			return events.NewDispatcher(client, buffer, f.logger), client.Close
		}
	}

	return events.NewDispatcher(events.LogSink{Logger: f.logger}, buffer, f.logger), nil
}

func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config, opts []ledger.Option) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	state, err := repo.Load(ctx)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}

	engine := ledger.New(append(opts, ledger.WithJournal(repo))...)
	if err := engine.Restore(ctx, state); err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("failed to restore ledger: %w", err)
	}

	if config.SeedDemo {
		f.seed(ctx, engine)
	}

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"accounts", len(state.Accounts),
		"transactions", len(state.Transactions))

	return &BackendResult{
		Engine:  engine,
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(ctx context.Context, config Config, opts []ledger.Option) (*BackendResult, error) {
	engine := ledger.New(opts...)
	if config.SeedDemo {
		f.seed(ctx, engine)
	}

	f.logger.Info("Initialized memory backend", "seeded", config.SeedDemo)

	return &BackendResult{Engine: engine}, nil
}

func (f *DefaultFactory) seed(ctx context.Context, engine *ledger.Engine) {
	err := seed.Demo(ctx, engine)
	switch {
	case err == nil:
		f.logger.Info("Demo family seeded")
	case errors.Is(err, core.ErrAlreadyExists):
		f.logger.Info("Demo family already present, skipping seed")
	default:
		f.logger.Warn("Demo seed failed", applog.FieldError, err)
	}
}

// chain runs every non-nil cleanup and joins their errors.
func chain(fns ...CleanupFunc) CleanupFunc {
	return func() error {
		var errs []error
		for _, fn := range fns {
			if fn == nil {
				continue
			}
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}
}
