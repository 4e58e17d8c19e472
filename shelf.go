// Package shelf is a content indexing and query engine over an ordered
// key-value store. It ingests structured documents kept as files behind a
// bridge, maintains schema-derived secondary indexes, and answers
// collection queries with filtering, sorting, and cursor pagination.
//
// # Store layout
//
// Sublevel "~" holds primary records keyed by normalized document path,
// plus the three generated config records. Each (collection, sort key)
// pair owns the sublevel "<collection>/<sortKey>" whose keys are composite
// index keys (see package sortkey) and whose values are empty markers.
// Sublevel "__hashes__" maps paths to content hashes of the backing files;
// incremental reindex uses it to skip unchanged documents.
//
// A single logical document change always commits as one atomic batch
// covering the primary record, every index entry, and the content hash.
// The engine is single-writer: mutators serialize on an internal mutex,
// readers take no locks.
package shelf

import (
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/drpcorg/shelf/bridge"
	"github.com/drpcorg/shelf/kv"
	"github.com/drpcorg/shelf/schema"
	"github.com/drpcorg/shelf/shelf_errors"
	"github.com/drpcorg/shelf/sortkey"
	"github.com/drpcorg/shelf/utils"
)

const (
	// RootSublevel holds primary records and generated configs.
	RootSublevel = "~"
	// HashSublevel maps document paths to file content hashes.
	HashSublevel = "__hashes__"

	DefaultSortKey = sortkey.FilepathIndex

	GeneratedFolder   = ".tina/__generated__/"
	GraphQLConfigPath = GeneratedFolder + "_graphql.json"
	SchemaConfigPath  = GeneratedFolder + "_schema.json"
	LookupConfigPath  = GeneratedFolder + "_lookup.json"

	// TemplateKey is the union-template discriminator inside payloads.
	TemplateKey = "_template"

	DefaultPageSize = 50

	recordCacheSize = 1024
)

type StatusState string

const (
	StatusInProgress StatusState = "inprogress"
	StatusComplete   StatusState = "complete"
	StatusFailed     StatusState = "failed"
)

// Status is emitted to the registered callback around long-running
// operations. ID ties the three events of one run together.
type Status struct {
	Op    string
	ID    string
	State StatusState
	Err   error
}

type StatusCallback func(Status)

type Options struct {
	Logger   utils.Logger
	OnStatus StatusCallback
	// PageSize is the query limit applied when neither first nor last is
	// given. Defaults to DefaultPageSize.
	PageSize int
}

func (o *Options) SetDefaults() {
	if o.Logger == nil {
		o.Logger = utils.NewDefaultLogger(slog.LevelInfo).Named("db")
	}
	if o.PageSize == 0 {
		o.PageSize = DefaultPageSize
	}
}

// Database ties the key-value store and the bridge together and carries
// the derived caches. Mutators serialize on wlock; the caches are lazy,
// written once, and dropped by ClearCache.
type Database struct {
	store kv.Store
	brd   bridge.Bridge
	log   utils.Logger
	opts  Options

	wlock sync.Mutex

	clock   sync.Mutex
	sch     *schema.Schema
	defs    *xsync.MapOf[string, map[string]*sortkey.Definition]
	records *lru.Cache[string, map[string]any]
}

func New(store kv.Store, brd bridge.Bridge, opts Options) *Database {
	opts.SetDefaults()
	records, _ := lru.New[string, map[string]any](recordCacheSize)
	return &Database{
		store:   store,
		brd:     brd,
		log:     opts.Logger,
		opts:    opts,
		defs:    xsync.NewMapOf[string, map[string]*sortkey.Definition](),
		records: records,
	}
}

// Open is the production constructor: a Pebble store under dir and an OS
// bridge over contentDir.
func Open(dir string, contentDir string, opts Options) (*Database, error) {
	store, err := kv.OpenPebble(dir)
	if err != nil {
		return nil, err
	}
	return New(store, bridge.NewOS(contentDir), opts), nil
}

func (db *Database) Close() error {
	if db.store == nil {
		return shelf_errors.ErrClosed
	}
	err := db.store.Close()
	db.store = nil
	return err
}

func (db *Database) Store() kv.Store {
	return db.store
}

func (db *Database) Bridge() bridge.Bridge {
	return db.brd
}

// ClearCache drops the memoized schema, index definitions and record
// cache. Callers must not race it with mutators.
func (db *Database) ClearCache() {
	db.clock.Lock()
	db.sch = nil
	db.clock.Unlock()
	db.defs.Clear()
	db.records.Purge()
}

func (db *Database) status(op, id string, state StatusState, err error) {
	if db.opts.OnStatus != nil {
		db.opts.OnStatus(Status{Op: op, ID: id, State: state, Err: err})
	}
}
