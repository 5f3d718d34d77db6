package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/AntonStoeckl/kv-eventstore-go/eventstore"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvengine"
	"github.com/AntonStoeckl/kv-eventstore-go/eventstore/kvstore/sqlkv"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2

	driverSQLite   = "sqlite"
	driverPostgres = "postgres"

	cmdInitSchema   = "init-schema"
	cmdEvents       = "events"
	cmdRange        = "range"
	cmdUndispatched = "undispatched"
	cmdDispatch     = "dispatch"
	cmdSnapshot     = "snapshot"

	logMsgCommandFailed = "command failed"
	logMsgCommandDone   = "command done"
	logMsgNoSnapshot    = "no snapshot found"
	logAttrStreamID     = "stream_id"
	logAttrMaxRevision  = "max_revision"
	logAttrCommand      = "command"
	logAttrError        = "error"
	logAttrDurationMS   = "duration_ms"
)

var (
	errUnknownCommand = errors.New("unknown command")
	errUnknownDriver  = errors.New("unknown driver, use sqlite or postgres")
	errMissingFlag    = errors.New("missing required flag")
	errInvalidMatch   = errors.New("match must be path=value")
	errInvalidFlags   = errors.New("invalid command flags")
)

var output = jsoniter.ConfigCompatibleWithStandardLibrary

// globalConfig holds the flags shared by all commands.
type globalConfig struct {
	driver              string
	dsn                 string
	table               string
	eventsCollection    string
	snapshotsCollection string
	strong              bool
	optimistic          bool
	verbose             bool
}

type eventView struct {
	ID             string          `json:"id"`
	StreamID       string          `json:"streamId"`
	StreamRevision int             `json:"streamRevision"`
	CommitID       string          `json:"commitId"`
	CommitSequence int             `json:"commitSequence"`
	CommitStamp    time.Time       `json:"commitStamp"`
	Payload        json.RawMessage `json:"payload"`
	Dispatched     bool            `json:"dispatched"`
}

type snapshotView struct {
	SnapshotID string          `json:"snapshotId"`
	StreamID   string          `json:"streamId"`
	Revision   int             `json:"revision"`
	Data       json.RawMessage `json:"data"`
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer) int {
	global := flag.NewFlagSet("kvstore-admin", flag.ContinueOnError)
	global.SetOutput(stderr)

	cfg := globalConfig{}
	global.StringVar(&cfg.driver, "driver", driverSQLite, "database driver: sqlite or postgres")
	global.StringVar(&cfg.dsn, "dsn", "eventstore.db", "sqlite file or postgres connection URL")
	global.StringVar(&cfg.table, "table", "", "documents table name (default eventstore_documents)")
	global.StringVar(&cfg.eventsCollection, "events-collection", "", "events collection name (default events)")
	global.StringVar(&cfg.snapshotsCollection, "snapshots-collection", "", "snapshots collection name (default snapshots)")
	global.BoolVar(&cfg.strong, "strong", false, "scan with strong consistency")
	global.BoolVar(&cfg.optimistic, "optimistic", false, "dispatch with a version check")
	global.BoolVar(&cfg.verbose, "v", false, "log collaborator round trips and SQL")

	if err := global.Parse(args); err != nil {
		return exitUsage
	}

	if global.NArg() == 0 {
		_, _ = fmt.Fprintln(stderr, "missing command")
		global.Usage()
		return exitUsage
	}

	logger := newLogger(stderr, cfg.verbose)
	command, commandArgs := global.Arg(0), global.Args()[1:]

	start := time.Now()
	err := execute(ctx, cfg, logger, command, commandArgs, stdout, stderr)

	switch {
	case errors.Is(err, errUnknownCommand), errors.Is(err, errMissingFlag), errors.Is(err, errInvalidFlags),
		errors.Is(err, errUnknownDriver):
		_, _ = fmt.Fprintln(stderr, err)
		return exitUsage
	case err != nil:
		logger.Error(logMsgCommandFailed, logAttrCommand, command, logAttrError, err.Error())
		return exitError
	}

	logger.Debug(logMsgCommandDone, logAttrCommand, command, logAttrDurationMS, time.Since(start).Milliseconds())

	return exitOK
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func execute(
	ctx context.Context,
	cfg globalConfig,
	logger *slog.Logger,
	command string,
	args []string,
	stdout io.Writer,
	stderr io.Writer,
) error {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)

	streamID := fs.String("stream", "", "stream id")
	minRev := fs.Int("min", 0, "lowest revision, inclusive")
	maxRev := fs.Int("max", eventstore.UnboundedRevision, "highest revision (exclusive for events, inclusive for snapshot), -1 for none")
	eventID := fs.String("id", "", "event id")
	amount := fs.Int("amount", 100, "maximum number of events")
	var matches matchFlag
	fs.Var(&matches, "match", "payload predicate path=value, repeatable")

	switch command {
	case cmdInitSchema, cmdEvents, cmdRange, cmdUndispatched, cmdDispatch, cmdSnapshot:
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, command)
	}

	if err := fs.Parse(args); err != nil {
		return errors.Join(errInvalidFlags, err)
	}

	db, store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if command == cmdInitSchema {
		return store.EnsureSchema(ctx)
	}

	storage, err := newStorage(cfg, store, logger)
	if err != nil {
		return err
	}

	enc := output.NewEncoder(stdout)

	switch command {
	case cmdEvents:
		if *streamID == "" {
			return fmt.Errorf("%w: -stream", errMissingFlag)
		}

		events, getErr := storage.GetEvents(ctx, *streamID, *minRev, *maxRev)
		if getErr != nil {
			return getErr
		}

		return writeEvents(enc, events)

	case cmdRange:
		if len(matches) == 0 {
			return fmt.Errorf("%w: -match", errMissingFlag)
		}

		events, rangeErr := storage.GetEventRange(ctx, matches.toMatch(), *amount)
		if rangeErr != nil {
			return rangeErr
		}

		return writeEvents(enc, events)

	case cmdUndispatched:
		events, getErr := storage.GetUndispatchedEvents(ctx)
		if getErr != nil {
			return getErr
		}

		return writeEvents(enc, events)

	case cmdDispatch:
		if *eventID == "" {
			return fmt.Errorf("%w: -id", errMissingFlag)
		}

		return storage.SetEventToDispatched(ctx, eventstore.EventRef{ID: *eventID})

	default: // cmdSnapshot
		if *streamID == "" {
			return fmt.Errorf("%w: -stream", errMissingFlag)
		}

		snapshot, found, getErr := storage.GetSnapshot(ctx, *streamID, *maxRev)
		if getErr != nil {
			return getErr
		}

		if !found {
			logger.Info(logMsgNoSnapshot, logAttrStreamID, *streamID, logAttrMaxRevision, *maxRev)
			return nil
		}

		return enc.Encode(snapshotView{
			SnapshotID: snapshot.SnapshotID,
			StreamID:   snapshot.StreamID,
			Revision:   snapshot.Revision,
			Data:       rawOrNull(snapshot.Data),
		})
	}
}

func openStore(cfg globalConfig, logger *slog.Logger) (*sql.DB, *sqlkv.Store, error) {
	options := []sqlkv.Option{sqlkv.WithLogger(logger)}
	if cfg.table != "" {
		options = append(options, sqlkv.WithTableName(cfg.table))
	}

	var (
		db    *sql.DB
		store *sqlkv.Store
		err   error
	)

	switch cfg.driver {
	case driverSQLite:
		if db, err = sql.Open("sqlite", cfg.dsn); err != nil {
			return nil, nil, err
		}

		// one writer at a time, SQLite locks the whole file
		db.SetMaxOpenConns(1)
		store, err = sqlkv.NewSQLite(db, options...)

	case driverPostgres:
		if db, err = sql.Open("postgres", cfg.dsn); err != nil {
			return nil, nil, err
		}

		store, err = sqlkv.NewFromSQLDB(db, options...)

	default:
		return nil, nil, fmt.Errorf("%w: %q", errUnknownDriver, cfg.driver)
	}

	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return db, store, nil
}

func newStorage(cfg globalConfig, store *sqlkv.Store, logger *slog.Logger) (*kvengine.Storage, error) {
	options := []kvengine.Option{kvengine.WithLogger(logger)}
	if cfg.optimistic {
		options = append(options, kvengine.WithDispatchMode(eventstore.OptimisticDispatch))
	}

	return kvengine.New(store, eventstore.Config{
		EventsCollectionName:    cfg.eventsCollection,
		SnapshotsCollectionName: cfg.snapshotsCollection,
		QueryOptions:            eventstore.QueryOptions{StrongConsistency: cfg.strong},
	}, options...)
}

func writeEvents(enc *jsoniter.Encoder, events eventstore.Events) error {
	for _, event := range events {
		err := enc.Encode(eventView{
			ID:             event.ID,
			StreamID:       event.StreamID,
			StreamRevision: event.StreamRevision,
			CommitID:       event.CommitID,
			CommitSequence: event.CommitSequence,
			CommitStamp:    event.CommitStamp,
			Payload:        rawOrNull(event.Payload),
			Dispatched:     event.Dispatched,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// matchFlag collects repeated -match path=value flags.
// Values that parse as JSON (numbers, booleans, quoted strings, null) are compared as such, anything else as a string.
type matchFlag []eventstore.MatchPredicate

func (m *matchFlag) String() string {
	parts := make([]string, 0, len(*m))
	for _, predicate := range *m {
		parts = append(parts, fmt.Sprintf("%s=%v", predicate.Path(), predicate.Val()))
	}

	return strings.Join(parts, ",")
}

func (m *matchFlag) Set(value string) error {
	path, raw, ok := strings.Cut(value, "=")
	if !ok || path == "" {
		return errInvalidMatch
	}

	*m = append(*m, eventstore.P(path, parseMatchValue(raw)))

	return nil
}

func (m matchFlag) toMatch() eventstore.Match {
	return eventstore.MatchAllOf(m[0], m[1:]...)
}

func parseMatchValue(raw string) any {
	if _, err := strconv.ParseFloat(raw, 64); err == nil && output.Valid([]byte(raw)) {
		// kept verbatim so large integers stay exact
		return json.Number(raw)
	}

	if raw == "true" || raw == "false" || raw == "null" || strings.HasPrefix(raw, `"`) {
		var value any
		if output.UnmarshalFromString(raw, &value) == nil {
			return value
		}
	}

	return raw
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}

	return raw
}
