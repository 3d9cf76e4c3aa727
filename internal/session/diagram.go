package session

import "github.com/rendis/flowcanvas/internal/diagram"

// Diagram builds a diagram model of the current graph with the selected node
// marked.
func (s *Session) Diagram() *diagram.Model {
	s.mu.Lock()
	doc := s.export()
	selected := s.graph.Selected()
	s.mu.Unlock()

	model := diagram.Build(doc, s.catalog)
	if selected != "" {
		model.Select(selected)
	}
	return model
}
