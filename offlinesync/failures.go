package offlinesync

import (
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
)

type Failure struct {
	Kind     string `json:"kind"`
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

type failureKey struct {
	kind string
	id   int
}

// FailureList accumulates the entities a run gave up on. An entity is in the
// list at most once.
type FailureList struct {
	items []Failure
	seen  map[failureKey]bool
}

func NewFailureList() *FailureList {
	return &FailureList{seen: make(map[failureKey]bool)}
}

// Add records the failure and reports whether it was new.
func (l *FailureList) Add(kind string, id int, name string, err error) bool {
	category := fineract.Category(err)
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return l.add(Failure{Kind: kind, ID: id, Name: name, Category: category, Message: msg})
}

func (l *FailureList) add(f Failure) bool {
	k := failureKey{kind: f.Kind, id: f.ID}
	if l.seen[k] {
		return false
	}
	l.seen[k] = true
	l.items = append(l.items, f)
	return true
}

func (l *FailureList) Has(kind string, id int) bool {
	return l.seen[failureKey{kind: kind, id: id}]
}

func (l *FailureList) Len() int {
	return len(l.items)
}

func (l *FailureList) Count(kind string) int {
	n := 0
	for _, f := range l.items {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

func (l *FailureList) Items() []Failure {
	out := make([]Failure, len(l.items))
	copy(out, l.items)
	return out
}

func (l *FailureList) IDs(kind string) []int {
	var ids []int
	for _, f := range l.items {
		if f.Kind == kind {
			ids = append(ids, f.ID)
		}
	}
	return ids
}

func (l *FailureList) toModels() []models.SyncFailure {
	out := make([]models.SyncFailure, 0, len(l.items))
	for _, f := range l.items {
		out = append(out, models.SyncFailure{
			EntityKind: f.Kind,
			EntityId:   f.ID,
			EntityName: f.Name,
			Category:   f.Category,
			Message:    f.Message,
		})
	}
	return out
}
