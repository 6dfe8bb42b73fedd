package validation

import (
	"fmt"

	"github.com/anda-ren/starwhale/pkg/schema"
)

// validateIdentity checks that every node id is unique across the whole
// tree, not only among siblings. The first occurrence of an id is kept as
// the reference; each later one is reported.
func validateIdentity(doc *schema.Document) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	firstSeen := make(map[string]string)

	var walk func(nodes []schema.NodeSpec, prefix string)
	walk = func(nodes []schema.NodeSpec, prefix string) {
		for i, n := range nodes {
			path := schema.NodePath(prefix, i)
			id := n.ID()
			if id != "" {
				if first, dup := firstSeen[id]; dup {
					result.AddError(schema.FieldPath(path, "overrides", "id"), schema.IssueDuplicateID,
						fmt.Sprintf("node id %q is already used by %s", id, first))
				} else {
					firstSeen[id] = path
				}
			}
			walk(n.Children, schema.ChildrenPath(path))
		}
	}
	walk(doc.Widgets, schema.RootPath)

	return result
}
