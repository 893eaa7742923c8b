package datasource

import (
	"context"
	"sync"

	"github.com/GreengageDB/greengage-exporter/internal/log"
	"github.com/GreengageDB/greengage-exporter/internal/store"
)

// Mode selects which enumerated databases a per-database collector visits.
type Mode string

const (
	// ModeAll visits every database the coordinator enumerates.
	ModeAll Mode = "all"
	// ModeInclude restricts to the intersection with DBList.
	ModeInclude Mode = "include"
	// ModeExclude visits the set difference against DBList.
	ModeExclude Mode = "exclude"
	// ModeNone visits no databases; per-DB collectors are skipped entirely.
	ModeNone Mode = "none"
)

// ParseMode maps the documented synonym ("from_db") onto ModeAll and validates the rest.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAll, "from_db", "":
		return ModeAll, nil
	case ModeInclude, ModeExclude, ModeNone:
		return Mode(s), nil
	default:
		return "", errUnknownMode(s)
	}
}

type errUnknownMode string

func (e errUnknownMode) Error() string { return "datasource: unknown per_db.mode: " + string(e) }

// Provider enumerates allowed databases and hands out pools, cached or throwaway per scrape.
type Provider struct {
	factory *Factory
	mode    Mode
	list    map[string]struct{}
	cache   bool

	mu      sync.Mutex
	cached  map[string]*store.DB // name -> cached pool, process lifetime
	pending []*store.DB           // throwaway pools created this scrape, closed in Cleanup
}

// NewProvider builds a Provider around the given factory and filtering policy.
func NewProvider(factory *Factory, mode Mode, dbList []string, cache bool) *Provider {
	list := make(map[string]struct{}, len(dbList))
	for _, name := range dbList {
		list[name] = struct{}{}
	}
	return &Provider{
		factory: factory,
		mode:    mode,
		list:    list,
		cache:   cache,
		cached:  make(map[string]*store.DB),
	}
}

// Datasources enumerates candidate databases from the base connection, filters them per mode, and
// returns the resulting pools. Failures to construct any single pool are logged and skipped; a
// failure to enumerate returns an empty slice so the scrape proceeds with GENERAL collectors only.
func (p *Provider) Datasources(ctx context.Context, base *store.DB) []*store.DB {
	if p.mode == ModeNone {
		return nil
	}

	names, err := base.GetDatabases(ctx)
	if err != nil {
		log.Warnf("per-db: enumerate databases failed: %s; skip per-database collectors", err)
		return nil
	}

	names = filterByMode(names, p.mode, p.list)

	out := make([]*store.DB, 0, len(names))
	for _, name := range names {
		db, err := p.acquire(ctx, name)
		if err != nil {
			log.Warnf("per-db: open %q failed: %s; skip", name, err)
			continue
		}
		out = append(out, db)
	}
	return out
}

func filterByMode(names []string, mode Mode, list map[string]struct{}) []string {
	switch mode {
	case ModeInclude:
		out := names[:0:0]
		for _, n := range names {
			if _, ok := list[n]; ok {
				out = append(out, n)
			}
		}
		return out
	case ModeExclude:
		out := names[:0:0]
		for _, n := range names {
			if _, ok := list[n]; !ok {
				out = append(out, n)
			}
		}
		return out
	default: // ModeAll
		return names
	}
}

// acquire returns a cached pool for name if caching is enabled, creating and caching it on miss;
// otherwise it creates a throwaway pool tracked for release in Cleanup.
func (p *Provider) acquire(ctx context.Context, name string) (*store.DB, error) {
	if p.cache {
		p.mu.Lock()
		if db, ok := p.cached[name]; ok {
			p.mu.Unlock()
			return db, nil
		}
		p.mu.Unlock()

		db, err := p.factory.Open(ctx, name)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		// Another goroutine may have raced us; keep whichever was stored first to honor I5.
		if existing, ok := p.cached[name]; ok {
			p.mu.Unlock()
			db.Close()
			return existing, nil
		}
		p.cached[name] = db
		p.mu.Unlock()
		return db, nil
	}

	db, err := p.factory.Open(ctx, name)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.pending = append(p.pending, db)
	p.mu.Unlock()
	return db, nil
}

// Cleanup closes every throwaway pool created during the current scrape. It is idempotent and
// safe to call when nothing was created; invoked unconditionally, even if the scrape was cut
// short by the orchestrator's circuit breaker (I6).
func (p *Provider) Cleanup() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, db := range pending {
		db.Close()
	}
}

// CloseCached closes every cached per-database pool; called once at process shutdown.
func (p *Provider) CloseCached() {
	p.mu.Lock()
	cached := p.cached
	p.cached = make(map[string]*store.DB)
	p.mu.Unlock()

	for _, db := range cached {
		db.Close()
	}
}
