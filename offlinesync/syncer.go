package offlinesync

import (
	"context"
	"fmt"

	"github.com/mmdatafocus/fieldsync/blobstore"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("fieldsync/offlinesync")

type Options struct {
	// Blobs receives client thumbnails. Nil skips images.
	Blobs        blobstore.Store
	ClientImages bool
	DepositTypes map[string]bool
}

func OptionsFromEnv(blobs blobstore.Store) Options {
	return Options{
		Blobs:        blobs,
		ClientImages: config.SyncClientImages(),
		DepositTypes: config.SyncDepositTypes(),
	}
}

// Result is what a walk over an entity list produced.
type Result struct {
	Synced         []int
	AccountsSynced int
	Failures       *FailureList
}

func (r Result) RunResult() models.SyncRunResult {
	return models.SyncRunResult{
		EntitiesSynced: len(r.Synced),
		AccountsSynced: r.AccountsSynced,
		Failures:       r.Failures.toModels(),
	}
}

// walker holds what one run shares across entities: the failure list and the
// set of clients already written, so a client in two groups is synced once.
type walker struct {
	remote      Remote
	state       *StateHolder
	opts        Options
	tenantId    string
	failures    *FailureList
	accounts    *accountSyncer
	clientsDone map[int]bool
	result      Result
}

func newWalker(ctx context.Context, remote Remote, state *StateHolder, opts Options) (*walker, error) {
	tenantId, err := utils.TenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if opts.DepositTypes == nil {
		opts.DepositTypes = map[string]bool{string(models.DepositTypeSavings): true, string(models.DepositTypeRecurring): true}
	}
	failures := NewFailureList()
	return &walker{
		remote:      remote,
		state:       state,
		opts:        opts,
		tenantId:    tenantId,
		failures:    failures,
		accounts:    &accountSyncer{remote: remote, state: state, depositTypes: opts.DepositTypes},
		clientsDone: make(map[int]bool),
		result:      Result{Failures: failures},
	}, nil
}

// walk runs step over ids one at a time. A failing entity goes to the failure
// list and the walk moves on; once ctx is done every remaining id is recorded
// as cancelled.
func (w *walker) walk(ctx context.Context, kind string, ids []int, step func(ctx context.Context, id int) (string, error)) Result {
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			for _, rest := range ids[i:] {
				if w.failures.Add(kind, rest, "", err) {
					w.state.entityFailed()
				}
			}
			break
		}
		if w.failures.Has(kind, id) {
			continue
		}

		spanCtx, span := tracer.Start(ctx, "sync."+kind, trace.WithAttributes(
			attribute.String("tenant.id", w.tenantId),
			attribute.Int(kind+".id", id),
		))
		name, err := step(spanCtx, id)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, fineract.Category(err))
			span.End()
			w.failures.Add(kind, id, name, err)
			w.state.entityFailed()
			config.LogError(config.GetLogger(), "syncer.go", "walk", "sync "+kind, id, err)
			continue
		}
		span.End()
		w.result.Synced = append(w.result.Synced, id)
		w.state.entitySynced()
	}
	w.state.finish()
	return w.result
}

// syncClient writes one client and its accounts. member is the summary from
// a group listing and saves the client fetch; it is nil for direct client runs.
func (w *walker) syncClient(ctx context.Context, id int, groupId int, member *fineract.Client) (string, error) {
	var c fineract.Client
	if member != nil {
		c = *member
	} else {
		remote, err := w.remote.GetClient(ctx, id)
		if err != nil {
			return "", fmt.Errorf("client: %w", err)
		}
		c = remote
	}
	row := models.NewClientFromRemote(w.tenantId, c, groupId)
	w.state.startEntity(row.DisplayName)

	if err := models.UpsertClient(ctx, row); err != nil {
		return row.DisplayName, err
	}
	if w.opts.ClientImages && c.ImagePresent {
		w.syncClientImage(ctx, id)
	}

	accounts, err := w.remote.GetClientAccounts(ctx, id)
	if err != nil {
		return row.DisplayName, fmt.Errorf("client accounts: %w", err)
	}
	n, err := w.accounts.sync(ctx, w.tenantId, models.AccountOwner{ClientId: id}, accounts)
	w.result.AccountsSynced += n
	if err != nil {
		return row.DisplayName, err
	}

	if err := models.MarkClientSynced(ctx, id); err != nil {
		return row.DisplayName, err
	}
	w.clientsDone[id] = true
	return row.DisplayName, nil
}

// syncClientImage never fails the client; a missing thumbnail is cosmetic.
func (w *walker) syncClientImage(ctx context.Context, id int) {
	if w.opts.Blobs == nil {
		return
	}
	logger := config.GetLogger()
	data, err := w.remote.GetClientImage(ctx, id)
	if err != nil {
		if !fineract.IsNotFound(err) {
			config.LogError(logger, "syncer.go", "syncClientImage", "GetClientImage", id, err)
		}
		return
	}
	thumb, err := blobstore.Thumbnail(data)
	if err != nil {
		config.LogError(logger, "syncer.go", "syncClientImage", "Thumbnail", id, err)
		return
	}
	key := blobstore.ClientImageKey(w.tenantId, id)
	if err := w.opts.Blobs.Put(ctx, key, thumb, "image/jpeg"); err != nil {
		config.LogError(logger, "syncer.go", "syncClientImage", "Put", key, err)
		return
	}
	if err := models.SetClientImageKey(ctx, id, key); err != nil {
		config.LogError(logger, "syncer.go", "syncClientImage", "SetClientImageKey", key, err)
	}
}

type ClientSyncer struct {
	remote Remote
	state  *StateHolder
	opts   Options
}

func NewClientSyncer(remote Remote, state *StateHolder, opts Options) *ClientSyncer {
	return &ClientSyncer{remote: remote, state: state, opts: opts}
}

// Sync mirrors each client with its loans, savings and their templates.
func (s *ClientSyncer) Sync(ctx context.Context, ids []int) (Result, error) {
	w, err := newWalker(ctx, s.remote, s.state, s.opts)
	if err != nil {
		return Result{}, err
	}
	return w.walk(ctx, models.EntityKindClient, UniqueIds(ids), func(ctx context.Context, id int) (string, error) {
		return w.syncClient(ctx, id, 0, nil)
	}), nil
}

type GroupSyncer struct {
	remote Remote
	state  *StateHolder
	opts   Options
}

func NewGroupSyncer(remote Remote, state *StateHolder, opts Options) *GroupSyncer {
	return &GroupSyncer{remote: remote, state: state, opts: opts}
}

// Sync mirrors each group: the group row, every member client with its
// accounts, then the group's own accounts. A group whose members did not all
// make it stays unsynced.
func (s *GroupSyncer) Sync(ctx context.Context, ids []int) (Result, error) {
	w, err := newWalker(ctx, s.remote, s.state, s.opts)
	if err != nil {
		return Result{}, err
	}
	return w.walk(ctx, models.EntityKindGroup, UniqueIds(ids), func(ctx context.Context, id int) (string, error) {
		return w.syncGroup(ctx, id)
	}), nil
}

func (w *walker) syncGroup(ctx context.Context, id int) (string, error) {
	g, err := w.remote.GetGroup(ctx, id)
	if err != nil {
		return "", fmt.Errorf("group: %w", err)
	}
	w.state.startEntity(g.Name)
	if err := models.UpsertGroup(ctx, models.NewGroupFromRemote(w.tenantId, g)); err != nil {
		return g.Name, err
	}

	members, err := w.remote.GetGroupClients(ctx, id)
	if err != nil {
		return g.Name, fmt.Errorf("group clients: %w", err)
	}
	failed := 0
	var firstErr error
	for i := range members {
		m := members[i]
		if err := ctx.Err(); err != nil {
			return g.Name, err
		}
		if w.clientsDone[m.ID] {
			continue
		}
		if w.failures.Has(models.EntityKindClient, m.ID) {
			failed++
			if firstErr == nil {
				firstErr = fmt.Errorf("client %d failed earlier in this run", m.ID)
			}
			continue
		}
		if name, err := w.syncClient(ctx, m.ID, id, &m); err != nil {
			w.failures.Add(models.EntityKindClient, m.ID, name, err)
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	w.state.startEntity(g.Name)

	accounts, err := w.remote.GetGroupAccounts(ctx, id)
	if err != nil {
		return g.Name, fmt.Errorf("group accounts: %w", err)
	}
	n, err := w.accounts.sync(ctx, w.tenantId, models.AccountOwner{GroupId: id}, accounts)
	w.result.AccountsSynced += n
	if err != nil {
		return g.Name, err
	}

	if failed > 0 {
		return g.Name, fmt.Errorf("%d of %d member clients failed: %w", failed, len(members), firstErr)
	}
	if err := models.MarkGroupSynced(ctx, id); err != nil {
		return g.Name, err
	}
	return g.Name, nil
}

// UniqueIds drops non-positive and repeated ids, keeping first-seen order.
func UniqueIds(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
