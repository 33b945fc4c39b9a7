package datanode

import (
	"context"

	"github.com/hsds-go/hsds/cmn"
)

// attributable objects are groups, datasets, and datatypes alike; the
// attributes map lives under the same "attributes" key on all three
// (§4.8's "uniform shape" note), so these helpers take a bare object id and
// rely on Context.Meta to resolve it regardless of collection.

// GetAttribute implements "GET /<coll>/<id>/attributes/<name>" (§4.8).
func GetAttribute(ctx context.Context, c *Context, id, name string) (map[string]interface{}, error) {
	obj, err := c.Meta.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	attrs, _ := obj["attributes"].(map[string]interface{})
	attr, ok := attrs[name]
	if !ok {
		return nil, cmn.NewNotFoundError(name, "no attribute %q on %q", name, id)
	}
	m, _ := attr.(map[string]interface{})
	return m, nil
}

// ListAttributes implements "GET /<coll>/<id>/attributes" (§4.8).
func ListAttributes(ctx context.Context, c *Context, id string) (map[string]interface{}, error) {
	obj, err := c.Meta.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	attrs, _ := obj["attributes"].(map[string]interface{})
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	return attrs, nil
}

// PutAttribute implements "PUT /<coll>/<id>/attributes/<name>" (§4.8).
func PutAttribute(ctx context.Context, c *Context, id, name string, value map[string]interface{}) error {
	obj, err := c.Meta.Get(ctx, id)
	if err != nil {
		return err
	}
	attrs, _ := obj["attributes"].(map[string]interface{})
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	attrs[name] = value
	obj["attributes"] = attrs
	c.Meta.Set(id, obj)
	return nil
}

// DeleteAttribute implements "DELETE /<coll>/<id>/attributes/<name>" (§4.8).
func DeleteAttribute(ctx context.Context, c *Context, id, name string) error {
	obj, err := c.Meta.Get(ctx, id)
	if err != nil {
		return err
	}
	attrs, _ := obj["attributes"].(map[string]interface{})
	if _, ok := attrs[name]; !ok {
		return cmn.NewNotFoundError(name, "no attribute %q on %q", name, id)
	}
	delete(attrs, name)
	obj["attributes"] = attrs
	c.Meta.Set(id, obj)
	return nil
}
