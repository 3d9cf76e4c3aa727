package diagram

import (
	"context"
	"strings"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Text formats rendered without graphviz.
const (
	FormatMermaid Format = "mermaid"
	FormatASCII   Format = "ascii"
)

// Rendered is a diagram in one output format.
type Rendered struct {
	Format      Format
	ContentType string
	Data        []byte
}

// Binary reports whether Data is not printable text.
func (r Rendered) Binary() bool { return r.Format == FormatPNG }

// Render produces model in the named format. An empty format means mermaid.
func Render(ctx context.Context, model *Model, format string) (Rendered, error) {
	f := Format(strings.ToLower(strings.TrimSpace(format)))
	switch f {
	case "", FormatMermaid:
		return Rendered{Format: FormatMermaid, ContentType: "text/plain; charset=utf-8", Data: []byte(RenderMermaid(model))}, nil
	case FormatASCII:
		return Rendered{Format: FormatASCII, ContentType: "text/plain; charset=utf-8", Data: []byte(RenderASCII(model))}, nil
	case FormatPNG, FormatSVG, FormatDOT:
		data, err := RenderImage(ctx, model, f)
		if err != nil {
			return Rendered{}, err
		}
		return Rendered{Format: f, ContentType: contentTypes[f], Data: data}, nil
	default:
		return Rendered{}, schema.NewErrorf(schema.ErrCodeValidation, "unsupported diagram format %q", format).
			WithDetails(map[string]any{"supported": []string{"mermaid", "ascii", "png", "svg", "dot"}})
	}
}

var contentTypes = map[Format]string{
	FormatPNG: "image/png",
	FormatSVG: "image/svg+xml",
	FormatDOT: "text/vnd.graphviz; charset=utf-8",
}
