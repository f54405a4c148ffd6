package acs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// Task is a queued device task as accepted by POST /devices/{id}/tasks.
type Task struct {
	Name            string  `json:"name"`
	ObjectName      string  `json:"objectName,omitempty"`
	ParameterValues [][]any `json:"parameterValues,omitempty"`
}

// ParameterValue is one setParameterValues triple.
type ParameterValue struct {
	Path  string
	Value any
	Type  string // xsd type, defaults to xsd:string
}

// Reboot queues a reboot and asks the ACS for an immediate connection request.
func (c *Client) Reboot(ctx context.Context, id string) error {
	return c.submit(ctx, id, Task{Name: "reboot"})
}

// RefreshObject re-reads objectName ("" for the whole tree) from the device.
func (c *Client) RefreshObject(ctx context.Context, id, objectName string) error {
	return c.submit(ctx, id, Task{Name: "refreshObject", ObjectName: objectName})
}

// SetParameterValues writes values on the device.
func (c *Client) SetParameterValues(ctx context.Context, id string, values []ParameterValue) error {
	triples := make([][]any, 0, len(values))
	for _, v := range values {
		typ := v.Type
		if typ == "" {
			typ = "xsd:string"
		}
		triples = append(triples, []any{v.Path, v.Value, typ})
	}
	return c.submit(ctx, id, Task{Name: "setParameterValues", ParameterValues: triples})
}

func (c *Client) submit(ctx context.Context, id string, task Task) error {
	path := "/devices/" + url.PathEscape(id) + "/tasks"
	q := url.Values{"connection_request": {""}}
	if _, err := c.do(ctx, http.MethodPost, path, q, task); err != nil {
		c.log.Warn("acs task failed", zap.String("device", id), zap.String("task", task.Name), zap.Error(err))
		return err
	}
	c.log.Info("acs task queued", zap.String("device", id), zap.String("task", task.Name))
	c.mutated(id)
	return nil
}

// AddTag attaches tag to the device.
func (c *Client) AddTag(ctx context.Context, id, tag string) error {
	return c.tag(ctx, http.MethodPost, id, tag)
}

// RemoveTag detaches tag from the device.
func (c *Client) RemoveTag(ctx context.Context, id, tag string) error {
	return c.tag(ctx, http.MethodDelete, id, tag)
}

func (c *Client) tag(ctx context.Context, method, id, tag string) error {
	path := "/devices/" + url.PathEscape(id) + "/tags/" + url.PathEscape(tag)
	if _, err := c.do(ctx, method, path, nil, nil); err != nil {
		return err
	}
	c.mutated(id)
	return nil
}

// ReplaceTags makes the device's tag set equal to tags by removing the
// extra tags and then adding the missing ones, one request each. The change
// is not atomic: when a request fails, the changes before it stay applied
// and the error says how many of them went through.
func (c *Client) ReplaceTags(ctx context.Context, id string, tags []string) error {
	d, err := c.GetDevice(ctx, id)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(tags))
	for _, t := range tags {
		if t != "" {
			want[t] = true
		}
	}

	type change struct {
		method, tag string
	}
	var changes []change
	for _, t := range d.Tags {
		if want[t] {
			delete(want, t)
			continue
		}
		changes = append(changes, change{http.MethodDelete, t})
	}
	for _, t := range tags {
		if want[t] {
			delete(want, t)
			changes = append(changes, change{http.MethodPost, t})
		}
	}

	for i, ch := range changes {
		if err := c.tag(ctx, ch.method, id, ch.tag); err != nil {
			return fmt.Errorf("acs: replace tags on %s: %d of %d changes applied, %s %q failed: %w",
				id, i, len(changes), ch.method, ch.tag, err)
		}
	}
	return nil
}
