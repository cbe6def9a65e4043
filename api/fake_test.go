package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/fieldsync/blobstore"
	"github.com/mmdatafocus/fieldsync/config"
	"github.com/mmdatafocus/fieldsync/fineract"
	"github.com/mmdatafocus/fieldsync/middlewares"
	"github.com/mmdatafocus/fieldsync/models"
	"github.com/mmdatafocus/fieldsync/utils"
	"github.com/stretchr/testify/require"
)

const testTenant = "acme"

func setupTestDB(t *testing.T) context.Context {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := config.OpenDatabase(config.DriverSQLite, dsn)
	require.NoError(t, err)
	prev := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
		config.SetDB(prev)
	})
	require.NoError(t, models.AutoMigrate())
	return utils.SetTenantIdInContext(context.Background(), testTenant)
}

type noteCall struct {
	entityType string
	entityId   int
	noteId     int
	text       string
}

// fakeRemote stands in for Fineract. Setting offline makes every call fail
// the way an unreachable server does.
type fakeRemote struct {
	offline   bool
	users     map[string]string
	createErr error

	docs      map[int]fineract.Document
	docData   map[int][]byte
	notes     []fineract.Note
	nextId    int
	created   []fineract.ClientPayload
	noteCalls []noteCall
	downloads int
	deleted   []int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		users:   map[string]string{"officer": "secret"},
		docs:    map[int]fineract.Document{},
		docData: map[int][]byte{},
		nextId:  100,
	}
}

func (f *fakeRemote) factory(string) (Remote, error) { return f, nil }

func (f *fakeRemote) down() error {
	if f.offline {
		return fmt.Errorf("%w: dial tcp: connection refused", fineract.ErrNetwork)
	}
	return nil
}

func (f *fakeRemote) id() int {
	f.nextId++
	return f.nextId
}

func (f *fakeRemote) Authenticate(_ context.Context, username, password string) (fineract.AuthResult, error) {
	if err := f.down(); err != nil {
		return fineract.AuthResult{}, err
	}
	if pw, ok := f.users[username]; !ok || pw != password {
		return fineract.AuthResult{}, fineract.ErrNotAuthenticated
	}
	return fineract.AuthResult{Username: username, UserID: 7, Authenticated: true, OfficeID: 1, OfficeName: "Head Office"}, nil
}

func (f *fakeRemote) CreateClient(_ context.Context, payload fineract.ClientPayload) (fineract.CommandResult, error) {
	if err := f.down(); err != nil {
		return fineract.CommandResult{}, err
	}
	if f.createErr != nil {
		return fineract.CommandResult{}, f.createErr
	}
	f.created = append(f.created, payload)
	id := f.id()
	return fineract.CommandResult{ClientID: id, ResourceID: id, OfficeID: payload.OfficeID}, nil
}

func (f *fakeRemote) ListDocuments(_ context.Context, entityType string, entityID int) ([]fineract.Document, error) {
	if err := f.down(); err != nil {
		return nil, err
	}
	var out []fineract.Document
	for _, d := range f.docs {
		if d.ParentEntityType == entityType && d.ParentEntityID == entityID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeRemote) UploadDocument(_ context.Context, entityType string, entityID int, doc fineract.DocumentUpload) (fineract.CommandResult, error) {
	if err := f.down(); err != nil {
		return fineract.CommandResult{}, err
	}
	id := f.id()
	f.docs[id] = fineract.Document{
		ID:               id,
		ParentEntityType: entityType,
		ParentEntityID:   entityID,
		Name:             doc.Name,
		FileName:         doc.FileName,
		Size:             int64(len(doc.Data)),
		Type:             doc.ContentType,
		Description:      doc.Description,
	}
	f.docData[id] = doc.Data
	return fineract.CommandResult{ResourceID: id}, nil
}

func (f *fakeRemote) DownloadDocument(_ context.Context, _ string, _ int, documentID int) ([]byte, error) {
	if err := f.down(); err != nil {
		return nil, err
	}
	f.downloads++
	data, ok := f.docData[documentID]
	if !ok {
		return nil, notFound()
	}
	return data, nil
}

func (f *fakeRemote) DeleteDocument(_ context.Context, _ string, _ int, documentID int) error {
	if err := f.down(); err != nil {
		return err
	}
	if _, ok := f.docs[documentID]; !ok {
		return notFound()
	}
	delete(f.docs, documentID)
	delete(f.docData, documentID)
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeRemote) ListNotes(_ context.Context, _ string, _ int) ([]fineract.Note, error) {
	if err := f.down(); err != nil {
		return nil, err
	}
	return f.notes, nil
}

func (f *fakeRemote) CreateNote(_ context.Context, entityType string, entityID int, text string) (fineract.CommandResult, error) {
	if err := f.down(); err != nil {
		return fineract.CommandResult{}, err
	}
	id := f.id()
	f.noteCalls = append(f.noteCalls, noteCall{entityType: entityType, entityId: entityID, noteId: id, text: text})
	return fineract.CommandResult{ResourceID: id}, nil
}

func (f *fakeRemote) UpdateNote(_ context.Context, entityType string, entityID int, noteID int, text string) error {
	if err := f.down(); err != nil {
		return err
	}
	f.noteCalls = append(f.noteCalls, noteCall{entityType: entityType, entityId: entityID, noteId: noteID, text: text})
	return nil
}

func (f *fakeRemote) DeleteNote(_ context.Context, entityType string, entityID int, noteID int) error {
	if err := f.down(); err != nil {
		return err
	}
	f.noteCalls = append(f.noteCalls, noteCall{entityType: entityType, entityId: entityID, noteId: noteID})
	return nil
}

func remoteDoc(id int, entityType string, entityId int) fineract.Document {
	return fineract.Document{
		ID:               id,
		ParentEntityType: entityType,
		ParentEntityID:   entityId,
		Name:             "Statement",
		FileName:         "statement.txt",
		Type:             "text/plain",
	}
}

func itoa(i int) string { return strconv.Itoa(i) }

func notFound() error {
	return &fineract.APIError{StatusCode: http.StatusNotFound, DefaultUserMessage: "not found"}
}

// testRouter mounts the handlers behind the real session middleware. Redis is
// not configured in tests, so a valid token is enough.
func testRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middlewares.SessionMiddleware())
	h.Register(r.Group("/api"))
	return r
}

func newTestHandlers(remote *fakeRemote) (*Handlers, *blobstore.MemoryStore) {
	blobs := blobstore.NewMemoryStore()
	return NewHandlers(remote.factory, blobs), blobs
}

func testToken(t *testing.T) string {
	t.Helper()
	token, err := utils.JwtGenerate(7, "officer", testTenant, 1)
	require.NoError(t, err)
	return token
}

func serve(r http.Handler, token string, method string, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func serveJSON(r http.Handler, token string, method string, path string, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	contentType := ""
	if body != "" {
		reader = strings.NewReader(body)
		contentType = "application/json"
	}
	return serve(r, token, method, path, reader, contentType)
}
