package fineract

import (
	"context"
	"fmt"
	"net/http"
)

type noteBody struct {
	Note string `json:"note"`
}

func notesPath(entityType string, entityID int) string {
	return fmt.Sprintf("/%s/%d/notes", entityType, entityID)
}

func (c *APIClient) ListNotes(ctx context.Context, entityType string, entityID int) ([]Note, error) {
	var notes []Note
	err := c.getJSON(ctx, notesPath(entityType, entityID), nil, &notes)
	return notes, err
}

func (c *APIClient) CreateNote(ctx context.Context, entityType string, entityID int, text string) (CommandResult, error) {
	var res CommandResult
	err := c.sendJSON(ctx, http.MethodPost, notesPath(entityType, entityID), noteBody{Note: text}, &res)
	return res, err
}

func (c *APIClient) UpdateNote(ctx context.Context, entityType string, entityID int, noteID int, text string) error {
	path := fmt.Sprintf("%s/%d", notesPath(entityType, entityID), noteID)
	return c.sendJSON(ctx, http.MethodPut, path, noteBody{Note: text}, nil)
}

func (c *APIClient) DeleteNote(ctx context.Context, entityType string, entityID int, noteID int) error {
	return c.sendJSON(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", notesPath(entityType, entityID), noteID), nil, nil)
}
