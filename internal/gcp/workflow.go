package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"

	"github.com/Lllllllleong/pdfformfiller/internal/models"
)

// WorkflowTrigger starts a Cloud Workflows execution whenever a session's
// filled PDF has been produced.
type WorkflowTrigger struct {
	executionsClient *executions.Client
	parent           string
}

// NewWorkflowTrigger creates a trigger for projects/<p>/locations/<l>/workflows/<id>.
func NewWorkflowTrigger(ctx context.Context, projectID, location, workflowID string) (*WorkflowTrigger, error) {
	if projectID == "" || location == "" || workflowID == "" {
		return nil, fmt.Errorf("NewWorkflowTrigger: projectID, location and workflowID must be set")
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}
	return &WorkflowTrigger{
		executionsClient: executionsClient,
		parent:           fmt.Sprintf("projects/%s/locations/%s/workflows/%s", projectID, location, workflowID),
	}, nil
}

// SessionCompleted implements session.CompletionHook.
func (t *WorkflowTrigger) SessionCompleted(ctx context.Context, ev models.CompletionEvent) error {
	payloadBytes, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow payload: %w", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: t.parent,
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	exec, err := t.executionsClient.CreateExecution(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to trigger workflow execution: %w", err)
	}
	slog.Info("Completion workflow triggered.", "sessionId", ev.SessionID, "execution", exec.GetName())
	return nil
}

func (t *WorkflowTrigger) Close() error {
	return t.executionsClient.Close()
}
