package offlinesync

import (
	"context"
	"errors"
	"strings"

	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/models"
)

// PayloadSyncer posts clients created offline to Fineract. A posted payload
// is deleted; a failed one keeps its error and waits for the next run.
type PayloadSyncer struct {
	remote Remote
	state  *StateHolder
}

func NewPayloadSyncer(remote Remote, state *StateHolder) *PayloadSyncer {
	return &PayloadSyncer{remote: remote, state: state}
}

func (s *PayloadSyncer) Sync(ctx context.Context, ids []int) (Result, error) {
	w, err := newWalker(ctx, s.remote, s.state, Options{})
	if err != nil {
		return Result{}, err
	}
	return w.walk(ctx, models.EntityKindClientPayload, UniqueIds(ids), func(ctx context.Context, id int) (string, error) {
		return s.post(ctx, uint(id))
	}), nil
}

func (s *PayloadSyncer) post(ctx context.Context, id uint) (string, error) {
	p, err := models.GetClientPayload(ctx, id)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(p.Firstname + " " + p.Lastname)
	s.state.startEntity(name)

	body, err := p.Decode()
	if err != nil {
		return name, err
	}
	res, err := s.remote.CreateClient(ctx, body)
	if err != nil {
		// cancellation is not the payload's fault
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			if rerr := models.RecordClientPayloadError(ctx, id, err.Error()); rerr != nil {
				config.LogError(config.GetLogger(), "payloads.go", "post", "RecordClientPayloadError", id, rerr)
			}
		}
		return name, err
	}
	if err := models.DeleteClientPayload(ctx, id); err != nil {
		config.LogError(config.GetLogger(), "payloads.go", "post", "DeleteClientPayload", res.ClientID, err)
		return name, err
	}
	return name, nil
}

// PendingPayloadIds lists every queued payload of the tenant.
func PendingPayloadIds(ctx context.Context) ([]int, error) {
	payloads, err := models.ListClientPayloads(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(payloads))
	for _, p := range payloads {
		ids = append(ids, int(p.ID))
	}
	return ids, nil
}
