package zendesk

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/support-toolchain/ticketrag/pkg/remote"
)

// CustomObjectField describes one field on a custom object type.
type CustomObjectField struct {
	Key   string `json:"key"`
	Type  string `json:"type"` // text, date, integer, ...
	Title string `json:"title"`
}

// CustomObjectExists checks whether the object type identified by key is
// present. A 404 is an expected outcome, not an error.
func (c *Client) CustomObjectExists(ctx context.Context, key string) (bool, error) {
	err := c.get(ctx, "/custom_objects/"+key, nil)
	if err == nil {
		return true, nil
	}
	if remote.IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// CreateCustomObject creates a custom object type.
func (c *Client) CreateCustomObject(ctx context.Context, key, title, titlePlural string) error {
	body := map[string]any{
		"custom_object": map[string]any{
			"key":              key,
			"title":            title,
			"title_pluralized": titlePlural,
		},
	}
	if err := c.post(ctx, "/custom_objects", body, nil); err != nil {
		return fmt.Errorf("create custom object %s: %w", key, err)
	}
	return nil
}

// CreateCustomObjectField adds a field to an object type. A 422 response
// means the field already exists; callers detect it with IsAlreadyExists.
func (c *Client) CreateCustomObjectField(ctx context.Context, objectKey string, field CustomObjectField) error {
	body := map[string]any{"custom_object_field": field}
	return c.post(ctx, fmt.Sprintf("/custom_objects/%s/fields", objectKey), body, nil)
}

// IsAlreadyExists reports whether err is the platform's 422 "already exists"
// response to a field or object creation.
func IsAlreadyExists(err error) bool {
	var pe *remote.PermanentError
	if errors.As(err, &pe) {
		return pe.StatusCode == http.StatusUnprocessableEntity
	}
	return false
}

// customObjectRecord mirrors the record envelope in create/update responses.
type customObjectRecord struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type recordEnvelope struct {
	Record customObjectRecord `json:"custom_object_record"`
}

// CreateCustomObjectRecord creates a record carrying only a human-readable
// name and returns the new record's ID.
func (c *Client) CreateCustomObjectRecord(ctx context.Context, objectKey, name string) (string, error) {
	body := map[string]any{
		"custom_object_record": map[string]any{"name": name},
	}
	var resp recordEnvelope
	if err := c.post(ctx, fmt.Sprintf("/custom_objects/%s/records", objectKey), body, &resp); err != nil {
		return "", fmt.Errorf("create %s record: %w", objectKey, err)
	}
	return resp.Record.ID, nil
}

// CreateCustomObjectRecordWithFields creates a record with its custom field
// payload in a single call. Only usable when the platform accepts field
// values at creation time (see config.AuditConfig.SingleStepWrite).
func (c *Client) CreateCustomObjectRecordWithFields(ctx context.Context, objectKey, name string, fields map[string]any) (string, error) {
	body := map[string]any{
		"custom_object_record": map[string]any{
			"name":                 name,
			"custom_object_fields": fields,
		},
	}
	var resp recordEnvelope
	if err := c.post(ctx, fmt.Sprintf("/custom_objects/%s/records", objectKey), body, &resp); err != nil {
		return "", fmt.Errorf("create %s record: %w", objectKey, err)
	}
	return resp.Record.ID, nil
}

// UpdateCustomObjectRecord patches a record's custom field payload.
func (c *Client) UpdateCustomObjectRecord(ctx context.Context, objectKey, recordID string, fields map[string]any) error {
	body := map[string]any{
		"custom_object_record": map[string]any{
			"custom_object_fields": fields,
		},
	}
	path := fmt.Sprintf("/custom_objects/%s/records/%s", objectKey, recordID)
	if err := c.patch(ctx, path, body, nil); err != nil {
		return fmt.Errorf("update %s record %s: %w", objectKey, recordID, err)
	}
	return nil
}
