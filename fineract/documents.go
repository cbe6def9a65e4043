package fineract

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// Entity types that carry documents and notes.
const (
	EntityClients = "clients"
	EntityGroups  = "groups"
	EntityLoans   = "loans"
	EntitySavings = "savings"
)

var EntityTypes = []string{EntityClients, EntityGroups, EntityLoans, EntitySavings}

// ValidEntityType reports whether documents or notes can be attached to entityType.
func ValidEntityType(entityType string) bool {
	switch entityType {
	case EntityClients, EntityGroups, EntityLoans, EntitySavings:
		return true
	}
	return false
}

func documentsPath(entityType string, entityID int) string {
	return fmt.Sprintf("/%s/%d/documents", entityType, entityID)
}

func (c *APIClient) ListDocuments(ctx context.Context, entityType string, entityID int) ([]Document, error) {
	var docs []Document
	err := c.getJSON(ctx, documentsPath(entityType, entityID), nil, &docs)
	return docs, err
}

type DocumentUpload struct {
	Name        string
	Description string
	FileName    string
	ContentType string
	Data        []byte
}

// UploadDocument posts a multipart form with name, description and file parts.
func (c *APIClient) UploadDocument(ctx context.Context, entityType string, entityID int, doc DocumentUpload) (CommandResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("name", doc.Name); err != nil {
		return CommandResult{}, err
	}
	if doc.Description != "" {
		if err := w.WriteField("description", doc.Description); err != nil {
			return CommandResult{}, err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, strings.ReplaceAll(doc.FileName, `"`, "")))
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return CommandResult{}, err
	}
	if _, err := part.Write(doc.Data); err != nil {
		return CommandResult{}, err
	}
	if err := w.Close(); err != nil {
		return CommandResult{}, err
	}

	path := documentsPath(entityType, entityID)
	body, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        path,
		body:        &buf,
		contentType: w.FormDataContentType(),
	})
	if err != nil {
		return CommandResult{}, err
	}
	var res CommandResult
	if err := decode(path, body, &res); err != nil {
		return CommandResult{}, err
	}
	return res, nil
}

func (c *APIClient) DownloadDocument(ctx context.Context, entityType string, entityID int, documentID int) ([]byte, error) {
	return c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("%s/%d/attachment", documentsPath(entityType, entityID), documentID),
		accept: "*/*",
	})
}

func (c *APIClient) DeleteDocument(ctx context.Context, entityType string, entityID int, documentID int) error {
	return c.sendJSON(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", documentsPath(entityType, entityID), documentID), nil, nil)
}
