// Package memstore is an in-process game.Store.
//
// Every game is a shard with its own latch, and Lock* methods take per-row
// locks held until the transaction ends, so transactions on different games
// never wait on each other. A transaction buffers its writes and applies them
// to the touched shards on commit. The store-wide latch only guards the shard
// and ownership maps and is never held while waiting on a row lock.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"devshop/internal/game"
)

type shard struct {
	mu          sync.RWMutex
	game        game.Game
	developers  map[int64]game.Developer
	salespeople map[int64]game.Salesperson
	projects    map[int64]game.Project
	assignee    map[int64]int64 // project id -> developer id
	ledger      []game.LedgerEntry
	idempotency map[string]string
}

func newShard(g game.Game) *shard {
	return &shard{
		game:        g,
		developers:  map[int64]game.Developer{},
		salespeople: map[int64]game.Salesperson{},
		projects:    map[int64]game.Project{},
		assignee:    map[int64]int64{},
		idempotency: map[string]string{},
	}
}

func (sh *shard) putDeveloper(d game.Developer) {
	if old, ok := sh.developers[d.ID]; ok && old.ProjectID != nil && sh.assignee[*old.ProjectID] == d.ID {
		delete(sh.assignee, *old.ProjectID)
	}
	sh.developers[d.ID] = copyDeveloper(d)
	if d.ProjectID != nil {
		sh.assignee[*d.ProjectID] = d.ID
	}
}

func (sh *shard) dropDeveloper(id int64) {
	if old, ok := sh.developers[id]; ok && old.ProjectID != nil && sh.assignee[*old.ProjectID] == id {
		delete(sh.assignee, *old.ProjectID)
	}
	delete(sh.developers, id)
}

// dropProject deletes a project and detaches whoever still points at it.
func (sh *shard) dropProject(id int64) {
	delete(sh.projects, id)
	devID, ok := sh.assignee[id]
	if !ok {
		return
	}
	delete(sh.assignee, id)
	if d, ok := sh.developers[devID]; ok {
		d.ProjectID = nil
		sh.developers[devID] = d
	}
}

func (sh *shard) active() bool {
	for _, p := range sh.projects {
		if p.Active() {
			return true
		}
	}
	for _, sp := range sh.salespeople {
		if sp.Busy {
			return true
		}
	}
	return false
}

func copyDeveloper(d game.Developer) game.Developer {
	if d.ProjectID != nil {
		id := *d.ProjectID
		d.ProjectID = &id
	}
	return d
}

// FailFunc is consulted before every Tx method; a non-nil result is returned
// from that method as if the backing store had failed.
type FailFunc func(op string) error

type Store struct {
	mu     sync.RWMutex
	shards map[int64]*shard
	owner  map[int64]int64 // entity id -> game id

	nextID atomic.Int64
	locks  lockTable

	failMu sync.RWMutex
	fail   FailFunc
	now    func() time.Time
}

func New() *Store {
	return &Store{
		shards: map[int64]*shard{},
		owner:  map[int64]int64{},
		locks:  lockTable{locks: map[lockKey]rowLock{}},
		now:    time.Now,
	}
}

// SetFailFunc installs a failure hook for Tx methods. nil removes it.
func (s *Store) SetFailFunc(fn FailFunc) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	s.fail = fn
}

// FailOnce makes the next call of op inside a transaction return err.
func (s *Store) FailOnce(op string, err error) {
	var once sync.Once
	s.SetFailFunc(func(got string) error {
		var out error
		if got == op {
			once.Do(func() { out = err })
		}
		return out
	})
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx game.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.failMu.RLock()
	fail := s.fail
	s.failMu.RUnlock()

	tx := newTx(s, fail)
	defer tx.release()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

// withShard runs fn under the read latch of a game's shard.
func (s *Store) withShard(gameID int64, fn func(sh *shard)) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shards[gameID]
	if !ok {
		return false
	}
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	fn(sh)
	return true
}

// withOwner runs fn under the read latch of the shard owning an entity.
func (s *Store) withOwner(id int64, fn func(sh *shard)) bool {
	s.mu.RLock()
	gameID, ok := s.owner[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	return s.withShard(gameID, fn)
}

// Ledger returns the ledger entries of a game in insertion order.
func (s *Store) Ledger(gameID int64) []game.LedgerEntry {
	var out []game.LedgerEntry
	s.withShard(gameID, func(sh *shard) {
		out = slices.Clone(sh.ledger)
	})
	return out
}

func (s *Store) Game(_ context.Context, id int64) (game.Game, error) {
	var g game.Game
	if !s.withShard(id, func(sh *shard) { g = sh.game }) {
		return game.Game{}, game.ErrNotFound
	}
	return g, nil
}

func (s *Store) ListGames(_ context.Context, sessionID string) ([]game.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []game.Game{}
	for _, sh := range s.shards {
		sh.mu.RLock()
		g := sh.game
		sh.mu.RUnlock()
		if sessionID == "" || g.SessionID == sessionID {
			out = append(out, g)
		}
	}
	sortByID(out, func(g game.Game) int64 { return g.ID })
	return out, nil
}

func (s *Store) ActiveGameIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []int64{}
	for id, sh := range s.shards {
		sh.mu.RLock()
		active := sh.active()
		sh.mu.RUnlock()
		if active {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *Store) Developer(_ context.Context, id int64) (game.Developer, error) {
	var (
		d  game.Developer
		ok bool
	)
	s.withOwner(id, func(sh *shard) {
		d, ok = sh.developers[id]
		d = copyDeveloper(d)
	})
	if !ok {
		return game.Developer{}, game.ErrNotFound
	}
	return d, nil
}

func (s *Store) Developers(_ context.Context, gameID int64) ([]game.Developer, error) {
	out := []game.Developer{}
	s.withShard(gameID, func(sh *shard) {
		for _, d := range sh.developers {
			out = append(out, copyDeveloper(d))
		}
	})
	sortByID(out, func(d game.Developer) int64 { return d.ID })
	return out, nil
}

func (s *Store) DeveloperForProject(_ context.Context, projectID int64) (game.Developer, bool, error) {
	var (
		d  game.Developer
		ok bool
	)
	s.withOwner(projectID, func(sh *shard) {
		var devID int64
		if devID, ok = sh.assignee[projectID]; ok {
			d, ok = sh.developers[devID]
			d = copyDeveloper(d)
		}
	})
	return d, ok, nil
}

func (s *Store) Salesperson(_ context.Context, id int64) (game.Salesperson, error) {
	var (
		sp game.Salesperson
		ok bool
	)
	s.withOwner(id, func(sh *shard) { sp, ok = sh.salespeople[id] })
	if !ok {
		return game.Salesperson{}, game.ErrNotFound
	}
	return sp, nil
}

func (s *Store) Salespeople(_ context.Context, gameID int64) ([]game.Salesperson, error) {
	return s.salespeople(gameID, false), nil
}

func (s *Store) BusySalespeople(_ context.Context, gameID int64) ([]game.Salesperson, error) {
	return s.salespeople(gameID, true), nil
}

func (s *Store) salespeople(gameID int64, busyOnly bool) []game.Salesperson {
	out := []game.Salesperson{}
	s.withShard(gameID, func(sh *shard) {
		for _, sp := range sh.salespeople {
			if !busyOnly || sp.Busy {
				out = append(out, sp)
			}
		}
	})
	sortByID(out, func(sp game.Salesperson) int64 { return sp.ID })
	return out
}

func (s *Store) Project(_ context.Context, id int64) (game.Project, error) {
	var (
		p  game.Project
		ok bool
	)
	s.withOwner(id, func(sh *shard) { p, ok = sh.projects[id] })
	if !ok {
		return game.Project{}, game.ErrNotFound
	}
	return p, nil
}

func (s *Store) Projects(_ context.Context, gameID int64) ([]game.Project, error) {
	return s.projectsWhere(gameID, false), nil
}

func (s *Store) ActiveProjects(_ context.Context, gameID int64) ([]game.Project, error) {
	return s.projectsWhere(gameID, true), nil
}

func (s *Store) projectsWhere(gameID int64, activeOnly bool) []game.Project {
	out := []game.Project{}
	s.withShard(gameID, func(sh *shard) {
		for _, p := range sh.projects {
			if !activeOnly || p.Active() {
				out = append(out, p)
			}
		}
	})
	sortByID(out, func(p game.Project) int64 { return p.ID })
	return out
}

func sortByID[T any](items []T, id func(T) int64) {
	slices.SortFunc(items, func(a, b T) int {
		switch {
		case id(a) < id(b):
			return -1
		case id(a) > id(b):
			return 1
		}
		return 0
	})
}

type lockKind uint8

const (
	lockGame lockKind = iota
	lockProject
	lockDeveloper
	lockSalesperson
)

type lockKey struct {
	kind lockKind
	id   int64
}

// rowLock is a mutex that can be abandoned when the context ends.
type rowLock chan struct{}

type lockTable struct {
	mu    sync.Mutex
	locks map[lockKey]rowLock
}

func (lt *lockTable) get(k lockKey) rowLock {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	l, ok := lt.locks[k]
	if !ok {
		l = make(rowLock, 1)
		lt.locks[k] = l
	}
	return l
}

func (lt *lockTable) forget(k lockKey) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	delete(lt.locks, k)
}

// claim is an idempotency key taken by an open transaction.
type claim struct {
	gameID int64
	key    string
	action string
}

// memTx buffers writes; a nil map value marks a deletion.
type memTx struct {
	s    *Store
	fail FailFunc
	held map[lockKey]rowLock

	games       map[int64]*game.Game
	projects    map[int64]*game.Project
	developers  map[int64]*game.Developer
	salespeople map[int64]*game.Salesperson
	inserted    []int64
	ledger      []game.LedgerEntry
	claims      []claim
}

func newTx(s *Store, fail FailFunc) *memTx {
	return &memTx{
		s:           s,
		fail:        fail,
		held:        map[lockKey]rowLock{},
		games:       map[int64]*game.Game{},
		projects:    map[int64]*game.Project{},
		developers:  map[int64]*game.Developer{},
		salespeople: map[int64]*game.Salesperson{},
	}
}

func (t *memTx) check(op string) error {
	if t.fail == nil {
		return nil
	}
	return t.fail(op)
}

func (t *memTx) lock(ctx context.Context, k lockKey) error {
	if _, ok := t.held[k]; ok {
		return nil
	}
	l := t.s.locks.get(k)
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.held[k] = l
	return nil
}

func (t *memTx) release() {
	for k, l := range t.held {
		<-l
		delete(t.held, k)
	}
}

func (t *memTx) id() int64 {
	id := t.s.nextID.Add(1)
	t.inserted = append(t.inserted, id)
	return id
}

func (t *memTx) loadGame(id int64) (game.Game, bool) {
	if g, ok := t.games[id]; ok {
		if g == nil {
			return game.Game{}, false
		}
		return *g, true
	}
	var g game.Game
	ok := t.s.withShard(id, func(sh *shard) { g = sh.game })
	return g, ok
}

func (t *memTx) loadProject(id int64) (game.Project, bool) {
	if p, ok := t.projects[id]; ok {
		if p == nil {
			return game.Project{}, false
		}
		return *p, true
	}
	var (
		p  game.Project
		ok bool
	)
	t.s.withOwner(id, func(sh *shard) { p, ok = sh.projects[id] })
	return p, ok
}

func (t *memTx) loadDeveloper(id int64) (game.Developer, bool) {
	if d, ok := t.developers[id]; ok {
		if d == nil {
			return game.Developer{}, false
		}
		return copyDeveloper(*d), true
	}
	var (
		d  game.Developer
		ok bool
	)
	t.s.withOwner(id, func(sh *shard) {
		d, ok = sh.developers[id]
		d = copyDeveloper(d)
	})
	return d, ok
}

func (t *memTx) loadSalesperson(id int64) (game.Salesperson, bool) {
	if sp, ok := t.salespeople[id]; ok {
		if sp == nil {
			return game.Salesperson{}, false
		}
		return *sp, true
	}
	var (
		sp game.Salesperson
		ok bool
	)
	t.s.withOwner(id, func(sh *shard) { sp, ok = sh.salespeople[id] })
	return sp, ok
}

// assigneeOf finds the developer pointing at a project, buffered writes first.
func (t *memTx) assigneeOf(projectID int64) (int64, bool) {
	for id, d := range t.developers {
		if d != nil && d.ProjectID != nil && *d.ProjectID == projectID {
			return id, true
		}
	}
	var (
		devID int64
		ok    bool
	)
	t.s.withOwner(projectID, func(sh *shard) { devID, ok = sh.assignee[projectID] })
	if !ok {
		return 0, false
	}
	if d, buffered := t.developers[devID]; buffered && (d == nil || d.ProjectID == nil || *d.ProjectID != projectID) {
		return 0, false
	}
	return devID, true
}

func (t *memTx) LockGame(ctx context.Context, id int64) (game.Game, error) {
	if err := t.check("LockGame"); err != nil {
		return game.Game{}, err
	}
	if err := t.lock(ctx, lockKey{lockGame, id}); err != nil {
		return game.Game{}, err
	}
	g, ok := t.loadGame(id)
	if !ok {
		return game.Game{}, game.ErrNotFound
	}
	return g, nil
}

func (t *memTx) InsertGame(_ context.Context, g *game.Game) error {
	if err := t.check("InsertGame"); err != nil {
		return err
	}
	now := t.s.now().UTC()
	g.ID = t.id()
	g.CreatedAt = now
	g.UpdatedAt = now
	row := *g
	t.games[g.ID] = &row
	return nil
}

func (t *memTx) SaveGameMoney(_ context.Context, id int64, money game.Money) error {
	if err := t.check("SaveGameMoney"); err != nil {
		return err
	}
	g, ok := t.loadGame(id)
	if !ok {
		return game.ErrNotFound
	}
	if money < 0 {
		return fmt.Errorf("money_cents check violated: %d", money)
	}
	g.Money = money
	g.UpdatedAt = t.s.now().UTC()
	t.games[id] = &g
	return nil
}

func (t *memTx) DeleteGame(_ context.Context, id int64) error {
	if err := t.check("DeleteGame"); err != nil {
		return err
	}
	if _, ok := t.loadGame(id); !ok {
		return game.ErrNotFound
	}
	t.games[id] = nil
	return nil
}

func (t *memTx) LockProject(ctx context.Context, id int64) (game.Project, error) {
	if err := t.check("LockProject"); err != nil {
		return game.Project{}, err
	}
	if err := t.lock(ctx, lockKey{lockProject, id}); err != nil {
		return game.Project{}, err
	}
	p, ok := t.loadProject(id)
	if !ok {
		return game.Project{}, game.ErrNotFound
	}
	return p, nil
}

func (t *memTx) InsertProject(_ context.Context, p *game.Project) error {
	if err := t.check("InsertProject"); err != nil {
		return err
	}
	if _, ok := t.loadGame(p.GameID); !ok {
		return game.ErrNotFound
	}
	p.ID = t.id()
	row := *p
	t.projects[p.ID] = &row
	return nil
}

func (t *memTx) SaveProject(_ context.Context, p game.Project) error {
	if err := t.check("SaveProject"); err != nil {
		return err
	}
	if _, ok := t.loadProject(p.ID); !ok {
		return game.ErrNotFound
	}
	p.Progress = game.UnitsToProgress(game.ProgressToUnits(p.Progress))
	t.projects[p.ID] = &p
	return nil
}

func (t *memTx) DeleteProject(_ context.Context, id int64) error {
	if err := t.check("DeleteProject"); err != nil {
		return err
	}
	if _, ok := t.loadProject(id); !ok {
		return game.ErrNotFound
	}
	t.projects[id] = nil
	return nil
}

func (t *memTx) LockDeveloper(ctx context.Context, id int64) (game.Developer, error) {
	if err := t.check("LockDeveloper"); err != nil {
		return game.Developer{}, err
	}
	if err := t.lock(ctx, lockKey{lockDeveloper, id}); err != nil {
		return game.Developer{}, err
	}
	d, ok := t.loadDeveloper(id)
	if !ok {
		return game.Developer{}, game.ErrNotFound
	}
	return d, nil
}

func (t *memTx) LockDeveloperForProject(ctx context.Context, projectID int64) (game.Developer, bool, error) {
	if err := t.check("LockDeveloperForProject"); err != nil {
		return game.Developer{}, false, err
	}
	devID, ok := t.assigneeOf(projectID)
	if !ok {
		return game.Developer{}, false, nil
	}
	if err := t.lock(ctx, lockKey{lockDeveloper, devID}); err != nil {
		return game.Developer{}, false, err
	}
	d, ok := t.loadDeveloper(devID)
	if !ok || d.ProjectID == nil || *d.ProjectID != projectID {
		return game.Developer{}, false, nil
	}
	return d, true, nil
}

func (t *memTx) InsertDeveloper(_ context.Context, d *game.Developer) error {
	if err := t.check("InsertDeveloper"); err != nil {
		return err
	}
	if _, ok := t.loadGame(d.GameID); !ok {
		return game.ErrNotFound
	}
	d.ID = t.id()
	row := copyDeveloper(*d)
	t.developers[d.ID] = &row
	return nil
}

func (t *memTx) SaveDeveloper(_ context.Context, d game.Developer) error {
	if err := t.check("SaveDeveloper"); err != nil {
		return err
	}
	if _, ok := t.loadDeveloper(d.ID); !ok {
		return game.ErrNotFound
	}
	row := copyDeveloper(d)
	t.developers[d.ID] = &row
	return nil
}

func (t *memTx) DeleteDeveloper(_ context.Context, id int64) error {
	if err := t.check("DeleteDeveloper"); err != nil {
		return err
	}
	if _, ok := t.loadDeveloper(id); !ok {
		return game.ErrNotFound
	}
	t.developers[id] = nil
	return nil
}

func (t *memTx) LockSalesperson(ctx context.Context, id int64) (game.Salesperson, error) {
	if err := t.check("LockSalesperson"); err != nil {
		return game.Salesperson{}, err
	}
	if err := t.lock(ctx, lockKey{lockSalesperson, id}); err != nil {
		return game.Salesperson{}, err
	}
	sp, ok := t.loadSalesperson(id)
	if !ok {
		return game.Salesperson{}, game.ErrNotFound
	}
	return sp, nil
}

func (t *memTx) InsertSalesperson(_ context.Context, sp *game.Salesperson) error {
	if err := t.check("InsertSalesperson"); err != nil {
		return err
	}
	if _, ok := t.loadGame(sp.GameID); !ok {
		return game.ErrNotFound
	}
	sp.ID = t.id()
	row := *sp
	t.salespeople[sp.ID] = &row
	return nil
}

func (t *memTx) SaveSalesperson(_ context.Context, sp game.Salesperson) error {
	if err := t.check("SaveSalesperson"); err != nil {
		return err
	}
	if _, ok := t.loadSalesperson(sp.ID); !ok {
		return game.ErrNotFound
	}
	sp.Progress = game.UnitsToProgress(game.ProgressToUnits(sp.Progress))
	t.salespeople[sp.ID] = &sp
	return nil
}

func (t *memTx) DeleteSalesperson(_ context.Context, id int64) error {
	if err := t.check("DeleteSalesperson"); err != nil {
		return err
	}
	if _, ok := t.loadSalesperson(id); !ok {
		return game.ErrNotFound
	}
	t.salespeople[id] = nil
	return nil
}

func (t *memTx) AppendLedger(_ context.Context, e game.LedgerEntry) error {
	if err := t.check("AppendLedger"); err != nil {
		return err
	}
	t.ledger = append(t.ledger, e)
	return nil
}

// ClaimIdempotency holds the game lock until commit so a key is claimed by at
// most one open transaction.
func (t *memTx) ClaimIdempotency(ctx context.Context, gameID int64, key, action string) error {
	if err := t.check("ClaimIdempotency"); err != nil {
		return err
	}
	if err := t.lock(ctx, lockKey{lockGame, gameID}); err != nil {
		return err
	}
	if _, ok := t.loadGame(gameID); !ok {
		return game.ErrNotFound
	}
	for _, c := range t.claims {
		if c.gameID == gameID && c.key == key {
			return game.ErrDuplicateIdempotency
		}
	}
	var taken bool
	t.s.withShard(gameID, func(sh *shard) { _, taken = sh.idempotency[key] })
	if taken {
		return game.ErrDuplicateIdempotency
	}
	t.claims = append(t.claims, claim{gameID: gameID, key: key, action: action})
	return nil
}

func (t *memTx) structural() bool {
	if len(t.inserted) > 0 {
		return true
	}
	for _, g := range t.games {
		if g == nil {
			return true
		}
	}
	for _, p := range t.projects {
		if p == nil {
			return true
		}
	}
	for _, d := range t.developers {
		if d == nil {
			return true
		}
	}
	for _, sp := range t.salespeople {
		if sp == nil {
			return true
		}
	}
	return false
}

// commit applies the buffered writes. Row locks are still held, so the shards
// see them before any waiting transaction reads the rows.
func (t *memTx) commit() error {
	s := t.s
	if t.structural() {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	// A game deleted by another transaction while this one held only entity
	// locks makes the whole write set invalid.
	touched := map[int64]*shard{}
	need := func(gameID int64) error {
		if _, ok := touched[gameID]; ok {
			return nil
		}
		if sh, ok := s.shards[gameID]; ok {
			touched[gameID] = sh
			return nil
		}
		if g, ok := t.games[gameID]; ok && g != nil {
			touched[gameID] = nil
			return nil
		}
		return game.ErrNotFound
	}
	for id, g := range t.games {
		if g != nil {
			if err := need(id); err != nil {
				return err
			}
		}
	}
	gameOf := func(id int64) int64 {
		if gid, ok := s.owner[id]; ok {
			return gid
		}
		return 0
	}
	var err error
	for id, p := range t.projects {
		gid := gameOf(id)
		if p != nil {
			gid = p.GameID
		}
		if gid != 0 {
			err = firstErr(err, need(gid))
		}
	}
	for id, d := range t.developers {
		gid := gameOf(id)
		if d != nil {
			gid = d.GameID
		}
		if gid != 0 {
			err = firstErr(err, need(gid))
		}
	}
	for id, sp := range t.salespeople {
		gid := gameOf(id)
		if sp != nil {
			gid = sp.GameID
		}
		if gid != 0 {
			err = firstErr(err, need(gid))
		}
	}
	for _, e := range t.ledger {
		err = firstErr(err, need(e.GameID))
	}
	for _, c := range t.claims {
		err = firstErr(err, need(c.gameID))
	}
	if err != nil {
		return err
	}

	for id, g := range t.games {
		if g != nil && touched[id] == nil {
			sh := newShard(*g)
			s.shards[id] = sh
			touched[id] = sh
		}
	}
	order := slices.Sorted(maps.Keys(touched))
	for _, id := range order {
		touched[id].mu.Lock()
	}
	defer func() {
		for _, id := range order {
			touched[id].mu.Unlock()
		}
	}()

	for id, g := range t.games {
		if g != nil {
			touched[id].game = *g
		}
	}
	for id, p := range t.projects {
		if p != nil {
			touched[p.GameID].projects[id] = *p
			if _, ok := s.owner[id]; !ok {
				s.owner[id] = p.GameID
			}
		}
	}
	for id, d := range t.developers {
		if d != nil {
			touched[d.GameID].putDeveloper(*d)
			if _, ok := s.owner[id]; !ok {
				s.owner[id] = d.GameID
			}
		}
	}
	for id, sp := range t.salespeople {
		if sp != nil {
			touched[sp.GameID].salespeople[id] = *sp
			if _, ok := s.owner[id]; !ok {
				s.owner[id] = sp.GameID
			}
		}
	}
	for id, d := range t.developers {
		if d == nil {
			if sh := touched[gameOf(id)]; sh != nil {
				sh.dropDeveloper(id)
			}
			t.forget(lockDeveloper, id)
		}
	}
	for id, sp := range t.salespeople {
		if sp == nil {
			if sh := touched[gameOf(id)]; sh != nil {
				delete(sh.salespeople, id)
			}
			t.forget(lockSalesperson, id)
		}
	}
	for id, p := range t.projects {
		if p == nil {
			if sh := touched[gameOf(id)]; sh != nil {
				sh.dropProject(id)
			}
			t.forget(lockProject, id)
		}
	}
	for _, e := range t.ledger {
		sh := touched[e.GameID]
		sh.ledger = append(sh.ledger, e)
	}
	for _, c := range t.claims {
		touched[c.gameID].idempotency[c.key] = c.action
	}
	for id, g := range t.games {
		if g == nil {
			t.dropGame(id)
		}
	}
	return nil
}

// dropGame removes a shard and everything it owns. Callers hold s.mu.
func (t *memTx) dropGame(id int64) {
	s := t.s
	sh, ok := s.shards[id]
	if !ok {
		return
	}
	for eid := range sh.developers {
		delete(s.owner, eid)
		t.forget(lockDeveloper, eid)
	}
	for eid := range sh.salespeople {
		delete(s.owner, eid)
		t.forget(lockSalesperson, eid)
	}
	for eid := range sh.projects {
		delete(s.owner, eid)
		t.forget(lockProject, eid)
	}
	delete(s.shards, id)
	t.forget(lockGame, id)
}

func (t *memTx) forget(kind lockKind, id int64) {
	delete(t.s.owner, id)
	t.s.locks.forget(lockKey{kind, id})
}

func firstErr(a, b error) error {
	if a != nil {
		return a
	}
	return b
}
