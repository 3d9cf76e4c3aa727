package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// DocumentVersion is the version written to exported workflow documents.
const DocumentVersion = "1.0.0"

// documentMeta holds the parts of a workflow document the graph does not own.
type documentMeta struct {
	id           string
	version      string
	metadata     schema.WorkflowMetadata
	inputSchema  *schema.Descriptor
	outputSchema *schema.Descriptor
	variables    map[string]*schema.Descriptor
}

func newDocumentMeta(now time.Time) documentMeta {
	ts := now.UTC().Format(time.RFC3339)
	return documentMeta{
		id:      uuid.NewString(),
		version: DocumentVersion,
		metadata: schema.WorkflowMetadata{
			Name:     "Untitled workflow",
			Version:  DocumentVersion,
			Created:  ts,
			Modified: ts,
		},
		variables: make(map[string]*schema.Descriptor),
	}
}

// WorkflowID returns the id of the document being edited.
func (s *Session) WorkflowID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta.id
}

// SetMetadata replaces the descriptive fields of the document. Created is
// kept when the given value is empty.
func (s *Session) SetMetadata(md schema.WorkflowMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if md.Created == "" {
		md.Created = s.meta.metadata.Created
	}
	s.meta.metadata = md
}

// Export builds the persisted document of the current graph. Nodes and
// connections keep insertion order; nil collections are written as empty.
func (s *Session) Export() *schema.Workflow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.export()
}

// ExportJSON marshals Export with indentation.
func (s *Session) ExportJSON() ([]byte, error) {
	return json.MarshalIndent(s.Export(), "", "  ")
}

func (s *Session) export() *schema.Workflow {
	snap := s.graph.Snapshot()
	for i := range snap.Nodes {
		if snap.Nodes[i].Configuration == nil {
			snap.Nodes[i].Configuration = map[string]any{}
		}
	}

	md := s.meta.metadata
	md.Modified = s.now().UTC().Format(time.RFC3339)

	vars := make(map[string]*schema.Descriptor, len(s.meta.variables))
	for k, v := range s.meta.variables {
		vars[k] = v.Clone()
	}
	return &schema.Workflow{
		ID:           s.meta.id,
		Version:      s.meta.version,
		Nodes:        snap.Nodes,
		Connections:  snap.Edges,
		InputSchema:  s.meta.inputSchema.Clone(),
		OutputSchema: s.meta.outputSchema.Clone(),
		Metadata:     md,
		GlobalState:  schema.StateDefinition{Variables: vars},
	}
}

// Import replaces the graph with a raw workflow document. An invalid
// document fails with a VALIDATION_ERROR listing every offending path and
// leaves the session untouched. Warnings of a valid document are returned.
// An active drag is aborted.
func (s *Session) Import(ctx context.Context, raw []byte) (*schema.ValidationResult, error) {
	doc, result := s.docs.ValidateJSON(raw)
	if err := result.ToError(schema.ErrCodeValidation); err != nil {
		return result, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if st := s.gestures.State(); st.Drag != nil {
		s.gestures.GestureAbort()
		s.publishGesture(ctx, schema.EventGestureAborted, st.Drag.GestureID, nil)
	}
	s.graph.Restore(doc.Nodes, doc.Connections)
	s.meta = metaOf(doc)
	s.saved = s.graph.Revision()
	s.publish(ctx, schema.EventWorkflowImported, "", map[string]any{
		"workflow_id": doc.ID,
		"nodes":       len(doc.Nodes),
		"connections": len(doc.Connections),
		"warnings":    len(result.Warnings),
	})
	return result, nil
}

// ImportWorkflow is Import for an already decoded document.
func (s *Session) ImportWorkflow(ctx context.Context, doc *schema.Workflow) (*schema.ValidationResult, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow document is nil")
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow document cannot be encoded").WithCause(err)
	}
	return s.Import(ctx, raw)
}

func metaOf(doc *schema.Workflow) documentMeta {
	vars := make(map[string]*schema.Descriptor, len(doc.GlobalState.Variables))
	for k, v := range doc.GlobalState.Variables {
		vars[k] = v.Clone()
	}
	return documentMeta{
		id:           doc.ID,
		version:      doc.Version,
		metadata:     doc.Metadata,
		inputSchema:  doc.InputSchema.Clone(),
		outputSchema: doc.OutputSchema.Clone(),
		variables:    vars,
	}
}
