package offlinesync

import (
	"fmt"
	"sync"
	"time"

	"github.com/mmdatafocus/fieldsync/config"
)

const stateTTL = 24 * time.Hour

// State is the progress of one run as the screens show it.
type State struct {
	RunId          uint      `json:"run_id"`
	Kind           string    `json:"kind"`
	TotalEntities  int       `json:"total_entities"`
	EntitiesSynced int       `json:"entities_synced"`
	FailedCount    int       `json:"failed_count"`
	CurrentEntity  string    `json:"current_entity"`
	AccountsTotal  int       `json:"accounts_total"`
	AccountsSynced int       `json:"accounts_synced"`
	LoanIndex      int       `json:"loan_index"`
	SavingsIndex   int       `json:"savings_index"`
	Done           bool      `json:"done"`
	Success        bool      `json:"success"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// StateHolder owns the State of a running sync. The run is the only writer;
// HTTP handlers read snapshots.
type StateHolder struct {
	mu    sync.RWMutex
	state State
}

func StateKey(runId uint) string {
	return fmt.Sprintf("SyncState:%d", runId)
}

func NewStateHolder(runId uint, kind string, total int) *StateHolder {
	h := &StateHolder{state: State{RunId: runId, Kind: kind, TotalEntities: total}}
	h.update(func(*State) {})
	return h
}

func (h *StateHolder) Snapshot() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

func (h *StateHolder) update(fn func(s *State)) {
	h.mu.Lock()
	fn(&h.state)
	h.state.UpdatedAt = time.Now()
	snapshot := h.state
	h.mu.Unlock()

	if snapshot.RunId == 0 {
		return
	}
	if err := config.SetRedisObject(StateKey(snapshot.RunId), snapshot, stateTTL); err != nil {
		config.LogError(config.GetLogger(), "state.go", "StateHolder.update", "mirror state to redis", snapshot.RunId, err)
	}
}

func (h *StateHolder) startEntity(name string) {
	h.update(func(s *State) {
		s.CurrentEntity = name
		s.LoanIndex = 0
		s.SavingsIndex = 0
	})
}

func (h *StateHolder) entitySynced() {
	h.update(func(s *State) { s.EntitiesSynced++ })
}

func (h *StateHolder) entityFailed() {
	h.update(func(s *State) { s.FailedCount++ })
}

func (h *StateHolder) addAccounts(n int) {
	h.update(func(s *State) { s.AccountsTotal += n })
}

func (h *StateHolder) loanDone(index int) {
	h.update(func(s *State) {
		s.LoanIndex = index + 1
		s.AccountsSynced++
	})
}

func (h *StateHolder) savingsDone(index int) {
	h.update(func(s *State) {
		s.SavingsIndex = index + 1
		s.AccountsSynced++
	})
}

func (h *StateHolder) finish() {
	h.update(func(s *State) {
		s.CurrentEntity = ""
		s.Done = true
		s.Success = s.FailedCount == 0
	})
}

var running sync.Map

func registerState(h *StateHolder) {
	running.Store(h.Snapshot().RunId, h)
}

func unregisterState(runId uint) {
	running.Delete(runId)
}

// LoadState finds the progress of a run: in-process first, then the Redis mirror.
func LoadState(runId uint) (State, bool, error) {
	if v, ok := running.Load(runId); ok {
		return v.(*StateHolder).Snapshot(), true, nil
	}
	var s State
	found, err := config.GetRedisObject(StateKey(runId), &s)
	if err != nil || !found {
		return State{}, false, err
	}
	return s, true, nil
}
