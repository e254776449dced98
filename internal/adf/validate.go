package adf

import (
	"fmt"
	"strconv"
)

// ValidationError reports the first malformed node found in a tree.
type ValidationError struct {
	Path   string // JSON-pointer-like path, e.g. "/content/2/content/0"
	Kind   Kind
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("adf: %s node: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("adf: %s node at %s: %s", e.Kind, e.Path, e.Reason)
}

// Validate checks that root is a doc node and that every node in the tree
// carries only the fields its kind allows.
func Validate(root Node) error {
	if root.Type != KindDoc {
		return &ValidationError{Kind: root.Type, Reason: "root must be a doc node"}
	}
	if root.Version != DocVersion {
		return &ValidationError{Kind: root.Type, Reason: fmt.Sprintf("version must be %d, got %d", DocVersion, root.Version)}
	}
	return validateNode(root, "", "")
}

func validateNode(n Node, parent Kind, path string) error {
	fail := func(format string, args ...any) error {
		return &ValidationError{Path: path, Kind: n.Type, Reason: fmt.Sprintf(format, args...)}
	}

	rule, known := kindRules[n.Type]
	if !known {
		return fail("unknown node type %q", string(n.Type))
	}
	if n.Type != KindDoc && n.Version != 0 {
		return fail("version is only legal on doc")
	}

	// Attributes.
	switch {
	case rule.attr == "" && len(n.Attrs) > 0:
		return fail("attrs are not legal here")
	case rule.attr != "":
		v, ok := n.Attrs[rule.attr]
		if !ok {
			return fail("missing %q attribute", rule.attr)
		}
		if len(n.Attrs) != 1 {
			return fail("only the %q attribute is legal", rule.attr)
		}
		if !isScalar(v) {
			return fail("attribute %q must be a scalar, got %T", rule.attr, v)
		}
	}

	// Leaf fields.
	if n.Type != KindText {
		if n.Text != "" {
			return fail("text is only legal on text nodes")
		}
		if len(n.Marks) > 0 {
			return fail("marks are only legal on text nodes")
		}
	}
	if !rule.container && n.Content != nil {
		return fail("content is not legal here")
	}
	for i, m := range n.Marks {
		if m.Type == "" {
			return fail("mark %d has no type", i)
		}
	}

	if n.Type == KindText && parent == KindCodeBlock && len(n.Marks) > 0 {
		return fail("code block text cannot carry marks")
	}

	for i, child := range n.Content {
		childPath := path + "/content/" + strconv.Itoa(i)
		if !rule.allows(child.Type) && child.Type.Known() {
			return &ValidationError{Path: childPath, Kind: child.Type, Reason: placementReason(n.Type)}
		}
		if err := validateNode(child, n.Type, childPath); err != nil {
			return err
		}
	}
	return nil
}

func placementReason(parent Kind) string {
	switch kindRules[parent].children {
	case childListItems:
		return "lists may only contain listItem nodes"
	case childInline:
		if parent == KindCodeBlock {
			return "code blocks may only contain text"
		}
		return fmt.Sprintf("%s may only contain text", parent)
	default:
		return fmt.Sprintf("%s may only contain block nodes", parent)
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}
