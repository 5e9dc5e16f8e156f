package homeai

import (
	"context"
	"fmt"
)

// RenderOptions configures Client.Render.
type RenderOptions struct {
	Poll      PollOptions
	Bootstrap BootstrapOptions
	// SkipRefresh disables the bootstrap refresh after a terminal status.
	SkipRefresh bool
}

// RenderOutcome is the result of a full render flow.
type RenderOutcome struct {
	// Job is the last known snapshot.
	Job *RenderJob
	// Poll is nil when the created job was already terminal.
	Poll *PollResult
	// Snapshot is the refreshed bootstrap, set only after a terminal status.
	Snapshot *BootstrapSnapshot
}

// Render runs the whole render flow: ensure the session, create the job,
// poll until terminal or budget exhaustion, then refresh the bootstrap so
// credits and board reflect the finished job.
//
// A failed refresh is returned as an error together with the outcome, since
// the job itself has finished.
func (c *Client) Render(ctx context.Context, req RenderJobRequest, opts RenderOptions) (*RenderOutcome, error) {
	job, err := c.RenderJobs.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	if opts.Poll.OnUpdate != nil {
		opts.Poll.OnUpdate(job)
	}

	out := &RenderOutcome{Job: job}
	if !job.Status.IsTerminal() {
		res, err := c.RenderJobs.PollUntilTerminal(ctx, job.ID, opts.Poll)
		if err != nil {
			return out, err
		}
		// The status response does not echo request fields; keep the ones
		// known from creation.
		res.Job.ProjectID, res.Job.StyleID = job.ProjectID, job.StyleID
		res.Job.Operation, res.Job.Tier = job.Operation, job.Tier
		if res.Job.TargetParts == nil {
			res.Job.TargetParts = job.TargetParts
		}
		out.Poll = res
		out.Job = res.Job
	}

	if !out.Job.Status.IsTerminal() || opts.SkipRefresh {
		return out, nil
	}
	snap, err := c.Bootstrap.Fetch(ctx, opts.Bootstrap)
	if err != nil {
		return out, fmt.Errorf("homeai: refresh after render %s: %w", out.Job.ID, err)
	}
	out.Snapshot = snap
	return out, nil
}
