package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// categoryClasses maps node categories to Mermaid class names.
var categoryClasses = map[schema.NodeCategory]string{
	schema.CategoryAIService:       "ai",
	schema.CategoryDataConnector:   "data",
	schema.CategoryFlowControl:     "flow",
	schema.CategoryStateManagement: "state",
	schema.CategoryTransformer:     "transform",
	schema.CategoryInputOutput:     "io",
}

// RenderMermaid renders a Model as a left-to-right Mermaid flowchart.
func RenderMermaid(model *Model) string {
	var b strings.Builder

	b.WriteString("graph LR\n")
	if model.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", model.Title)
	}

	for _, node := range model.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}
	for _, edge := range model.Edges {
		fmt.Fprintf(&b, "    %s -->|%s| %s\n",
			mermaidSafeID(edge.From), mermaidEscapeLabel(edge.Label), mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef ai fill:#1e3a5f,stroke:#3b82f6,color:#fff\n")
	b.WriteString("    classDef data fill:#14532d,stroke:#22c55e,color:#fff\n")
	b.WriteString("    classDef flow fill:#713f12,stroke:#eab308,color:#fff\n")
	b.WriteString("    classDef state fill:#4c1d95,stroke:#a855f7,color:#fff\n")
	b.WriteString("    classDef transform fill:#7c2d12,stroke:#f97316,color:#fff\n")
	b.WriteString("    classDef io fill:#374151,stroke:#9ca3af,color:#fff\n")
	b.WriteString("    classDef selected stroke-width:4px\n")

	for _, node := range model.Nodes {
		if cls, ok := categoryClasses[node.Category]; ok {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
		if node.Selected {
			fmt.Fprintf(&b, "    class %s selected\n", mermaidSafeID(node.ID))
		}
	}

	return b.String()
}

// mermaidNodeDef returns a node definition whose shape follows the category.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(strings.ReplaceAll(node.Label, "\n", "<br/>"))

	switch node.Category {
	case schema.CategoryDataConnector:
		return fmt.Sprintf("%s[(\"%s\")]", id, label)
	case schema.CategoryFlowControl:
		return fmt.Sprintf("%s{\"%s\"}", id, label)
	case schema.CategoryStateManagement:
		return fmt.Sprintf("%s{{\"%s\"}}", id, label)
	case schema.CategoryTransformer:
		return fmt.Sprintf("%s[/\"%s\"/]", id, label)
	case schema.CategoryInputOutput:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID replaces characters Mermaid does not accept in ids.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidEscapeLabel escapes quotes and pipes, which end labels early.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "|", "#124;")
	return r.Replace(s)
}
