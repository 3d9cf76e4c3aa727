package session

import (
	"context"

	"github.com/rendis/flowcanvas/internal/store"
)

// SaveOptions controls Save.
type SaveOptions struct {
	// Version also records an immutable version and makes it current.
	Version     bool
	Description string
}

// Save writes the current document to st and marks the session clean at the
// revision that was exported.
func (s *Session) Save(ctx context.Context, st store.Store, opts SaveOptions) (*store.Workflow, error) {
	revision := s.Revision()
	doc := s.Export()

	wf := store.FromDocument(doc)
	if err := st.SaveWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	if opts.Version {
		v := &store.WorkflowVersion{WorkflowID: wf.ID, Description: opts.Description, Document: doc}
		if err := st.CreateVersion(ctx, v, true); err != nil {
			return nil, err
		}
		wf.CurrentVersionID = v.ID
	}
	s.MarkSaved(ctx, revision)
	return wf, nil
}

// Load imports a saved workflow, or one of its versions when version > 0.
func (s *Session) Load(ctx context.Context, st store.Store, workflowID string, version int) error {
	doc, err := store.LoadDocument(ctx, st, workflowID, version)
	if err != nil {
		return err
	}
	_, err = s.ImportWorkflow(ctx, doc)
	return err
}
