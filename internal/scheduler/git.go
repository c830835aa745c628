package scheduler

import "context"

// Git is the narrow external collaborator the scheduler commits task
// output through. Provisioning, branching, and history beyond a single
// commit per task attempt are out of scope — the scheduler only needs
// to know a commit happened and its sha.
type Git interface {
	Commit(ctx context.Context, workspacePath, taskID, agentName, message string) (sha string, err error)
}
