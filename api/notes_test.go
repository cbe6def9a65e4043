package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoteLifecycle(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	h, _ := newTestHandlers(remote)
	r := testRouter(h)
	token := testToken(t)

	rec := serveJSON(r, token, http.MethodPost, "/api/clients/5/notes", `{"note":"  visited at home  "}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var note models.Note
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &note))
	assert.Equal(t, "visited at home", note.Text)
	assert.Equal(t, "officer", note.CreatedBy)
	require.NotNil(t, note.CreatedOn)

	rec = serveJSON(r, token, http.MethodPut, "/api/clients/5/notes/"+itoa(note.ID), `{"note":"moved to the market"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	stored, err := models.GetNote(ctx, "clients", 5, note.ID)
	require.NoError(t, err)
	assert.Equal(t, "moved to the market", stored.Text)
	assert.Equal(t, "officer", stored.UpdatedBy)
	assert.Equal(t, "officer", stored.CreatedBy)

	rec = serveJSON(r, token, http.MethodDelete, "/api/clients/5/notes/"+itoa(note.ID), "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	_, err = models.GetNote(ctx, "clients", 5, note.ID)
	assert.Error(t, err)

	require.Len(t, remote.noteCalls, 3)
	assert.Equal(t, noteCall{entityType: "clients", entityId: 5, noteId: note.ID, text: "moved to the market"}, remote.noteCalls[1])
}

func TestCreateNoteRejectsBlank(t *testing.T) {
	setupTestDB(t)
	remote := newFakeRemote()
	h, _ := newTestHandlers(remote)
	r := testRouter(h)

	rec := serveJSON(r, testToken(t), http.MethodPost, "/api/groups/2/notes", `{"note":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "notblank", resp.Fields["Note"])
	assert.Empty(t, remote.noteCalls)
}

func TestListNotesReplacesCache(t *testing.T) {
	ctx := setupTestDB(t)
	remote := newFakeRemote()
	h, _ := newTestHandlers(remote)
	r := testRouter(h)
	token := testToken(t)

	require.NoError(t, models.SaveNote(ctx, &models.Note{ID: 1, EntityType: "loans", EntityId: 9, Text: "deleted on the server"}))
	remote.notes = []fineract.Note{
		{ID: 2, Note: "first repayment late", CreatedByUsername: "mgr", CreatedOn: 1700000000000},
		{ID: 3, Note: "paid in full"},
	}

	rec := serveJSON(r, token, http.MethodGet, "/api/loans/9/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Items []models.Note `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 2)
	assert.Equal(t, 2, resp.Items[0].ID)
	assert.Equal(t, "mgr", resp.Items[0].CreatedBy)
	require.NotNil(t, resp.Items[0].CreatedOn)
	assert.Equal(t, int64(1700000000), resp.Items[0].CreatedOn.Unix())

	remote.offline = true
	rec = serveJSON(r, token, http.MethodGet, "/api/loans/9/notes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Fieldsync-Offline"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)

	// writes need Fineract
	rec = serveJSON(r, token, http.MethodPost, "/api/loans/9/notes", `{"note":"offline"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
