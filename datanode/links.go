package datanode

import (
	"context"

	"github.com/hsds-go/hsds/cmn"
)

// GetLink implements "GET /groups/<id>/links/<title>" (§4.8).
func GetLink(ctx context.Context, c *Context, groupID, title string) (map[string]interface{}, error) {
	group, err := c.Meta.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	links, _ := group["links"].(map[string]interface{})
	link, ok := links[title]
	if !ok {
		return nil, cmn.NewNotFoundError(title, "no link %q on group %q", title, groupID)
	}
	m, _ := link.(map[string]interface{})
	return m, nil
}

// ListLinks implements "GET /groups/<id>/links" (§4.8).
func ListLinks(ctx context.Context, c *Context, groupID string) (map[string]interface{}, error) {
	group, err := c.Meta.Get(ctx, groupID)
	if err != nil {
		return nil, err
	}
	links, _ := group["links"].(map[string]interface{})
	if links == nil {
		links = map[string]interface{}{}
	}
	return links, nil
}

// PutLink implements "PUT /groups/<id>/links/<title>" (§4.8): insert or
// overwrite a link entry in place and mark the parent dirty.
func PutLink(ctx context.Context, c *Context, groupID, title string, target map[string]interface{}) error {
	group, err := c.Meta.Get(ctx, groupID)
	if err != nil {
		return err
	}
	links, _ := group["links"].(map[string]interface{})
	if links == nil {
		links = map[string]interface{}{}
	}
	links[title] = target
	group["links"] = links
	c.Meta.Set(groupID, group)
	return nil
}

// DeleteLink implements "DELETE /groups/<id>/links/<title>" (§4.8).
func DeleteLink(ctx context.Context, c *Context, groupID, title string) error {
	group, err := c.Meta.Get(ctx, groupID)
	if err != nil {
		return err
	}
	links, _ := group["links"].(map[string]interface{})
	if links == nil {
		return cmn.NewNotFoundError(title, "no link %q on group %q", title, groupID)
	}
	if _, ok := links[title]; !ok {
		return cmn.NewNotFoundError(title, "no link %q on group %q", title, groupID)
	}
	delete(links, title)
	group["links"] = links
	c.Meta.Set(groupID, group)
	return nil
}
