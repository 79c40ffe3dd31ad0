package naming

import (
	"strings"
	"unicode"
)

// Namer derives model and field names from database identifiers.
type Namer struct {
	config Config
}

// New creates a Namer with the given configuration
func New(cfg Config) *Namer {
	return &Namer{config: cfg}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig())
}

// EntityName converts a table name to a singular PascalCase entity name.
// Example: "order_items" -> "OrderItem"
func (n *Namer) EntityName(table string) string {
	name := ToPascalCase(table)
	if name == "" {
		return ""
	}
	return n.Singularize(name)
}

// PropertyName converts a column name to a PascalCase property name.
// Example: "created_at" -> "CreatedAt"
func (n *Namer) PropertyName(column string) string {
	return ToPascalCase(column)
}

// ReferenceName derives a reference navigation name from its FK column with
// common suffixes stripped.
// Example: "author_id" -> "Author", "created_by_user_id" -> "CreatedByUser"
func (n *Namer) ReferenceName(fkColumn string) string {
	name := fkColumn
	for _, suffix := range []string{"_id", "_fk"} {
		if len(name) > len(suffix) && strings.HasSuffix(strings.ToLower(name), suffix) {
			name = name[:len(name)-len(suffix)]
			break
		}
	}
	return ToPascalCase(name)
}

// CollectionName derives a collection navigation name. With a single FK from
// the dependent table it is the plural entity name; otherwise the reference
// name prefixes it for disambiguation.
// Example: isOnlyFK=true: "Comment" -> "Comments"
// Example: isOnlyFK=false, fkColumn="author_id": "Post" -> "AuthorPosts"
func (n *Namer) CollectionName(dependentEntity, fkColumn string, isOnlyFK bool) string {
	plural := n.Pluralize(dependentEntity)
	if isOnlyFK {
		return plural
	}
	return n.ReferenceName(fkColumn) + plural
}

// ListFieldName returns the root list field name for an entity.
// Example: "OrderItem" -> "orderItems"
func (n *Namer) ListFieldName(entity string) string {
	return ToFieldName(n.Pluralize(entity))
}

// ToFieldName lower-cases the first rune of a PascalCase member name.
// Example: "ComputedInDb" -> "computedInDb"
func ToFieldName(name string) string {
	if name == "" {
		return ""
	}
	runes := []rune(name)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// ToPascalCase converts snake_case to PascalCase.
func ToPascalCase(s string) string {
	parts := strings.Split(s, "_")
	for i, part := range parts {
		if len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + part[1:]
		}
	}
	return strings.Join(parts, "")
}

// ToSnakeCase converts PascalCase or camelCase to snake_case.
// Example: "ParentId" -> "parent_id", "HTTPStatus" -> "http_status"
func ToSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
