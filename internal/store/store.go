package store

import (
	"context"

	"github.com/rendis/flowcanvas/pkg/schema"
)

// Store persists workflow documents and their versions.
// All implementations must be safe for concurrent use.
type Store interface {
	// Workflows
	SaveWorkflow(ctx context.Context, wf *Workflow) error
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// Versions
	CreateVersion(ctx context.Context, v *WorkflowVersion, setCurrent bool) error
	ListVersions(ctx context.Context, workflowID string) ([]*WorkflowVersion, error)
	GetVersion(ctx context.Context, workflowID string, version int) (*WorkflowVersion, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}

// LoadDocument returns the document of a saved workflow, or of one of its
// versions when version > 0.
func LoadDocument(ctx context.Context, st Store, workflowID string, version int) (*schema.Workflow, error) {
	if version > 0 {
		v, err := st.GetVersion(ctx, workflowID, version)
		if err != nil {
			return nil, err
		}
		return v.Document, nil
	}
	wf, err := st.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return wf.Document, nil
}
