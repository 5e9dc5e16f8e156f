package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zippro/homeai"
)

func newRenderCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Create, follow and cancel render jobs",
		Long: `Render job commands.

Examples:
  homeai render create --user u1 --image-url https://example.com/room.jpg --style japandi --parts walls,floor --wait
  homeai render get 3f6c...
  homeai render wait 3f6c... --interval 1s --max-attempts 30
  homeai render cancel 3f6c...`,
	}

	cmd.AddCommand(
		newRenderCreateCmd(a),
		newRenderGetCmd(a),
		newRenderWaitCmd(a),
		newRenderCancelCmd(a),
	)
	return cmd
}

func addPollFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("interval", 0, "time between status checks (default from poll.interval)")
	cmd.Flags().Int("max-attempts", 0, "maximum number of status checks (default from poll.max_attempts)")
}

func (a *app) pollOptions(cmd *cobra.Command) homeai.PollOptions {
	interval, _ := cmd.Flags().GetDuration("interval")
	if interval <= 0 {
		interval = a.cfg.Poll.Interval
	}
	attempts, _ := cmd.Flags().GetInt("max-attempts")
	if attempts <= 0 {
		attempts = a.cfg.Poll.MaxAttempts
	}

	opts := homeai.PollOptions{Interval: interval, MaxAttempts: attempts}
	if a.format == "table" {
		opts.OnUpdate = func(job *homeai.RenderJob) {
			fmt.Fprintf(a.errOut, "  %s %s\n", job.ID, job.Status)
		}
	}
	return opts
}

func newRenderCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Submit a render job",
		Long: `Submit a render job for the configured user.

Preview renders are cheap and fast; final renders may require a completed
preview of the same project and style first.

Examples:
  homeai render create --user u1 --image-url https://example.com/room.jpg --style japandi
  homeai render create --user u1 --image-url https://example.com/room.jpg --style japandi \
    --operation replace --parts furniture --tier final --project ios-01j... --wait`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runRenderCreate(cmd)
		},
	}

	f := cmd.Flags()
	f.String("image-url", "", "URL of the room photo (required)")
	f.String("style", "", "style id (required)")
	f.String("operation", string(homeai.OperationRestyle), "operation: restyle, replace, remove or repaint")
	f.String("tier", string(homeai.TierPreview), "tier: preview or final")
	f.StringSlice("parts", []string{string(homeai.TargetFullRoom)}, "target parts: full_room, walls, floor, furniture, decor")
	f.String("project", "", "project id (generated when empty)")
	f.String("mask-url", "", "URL of a mask image")
	f.StringToString("prompt", nil, "prompt overrides as key=value pairs")
	f.Bool("wait", false, "poll until the job finishes")
	addPollFlags(cmd)

	_ = cmd.MarkFlagRequired("image-url")
	_ = cmd.MarkFlagRequired("style")
	return cmd
}

func (a *app) runRenderCreate(cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := cmd.Flags()

	userID := strings.TrimSpace(a.cfg.Session.UserID)
	if userID == "" {
		return errNoUser
	}
	req := renderRequest(cmd)
	req.UserID = userID
	if err := req.Validate(); err != nil {
		return err
	}

	client, _, err := a.session(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	wait, _ := f.GetBool("wait")
	if !wait {
		job, err := client.RenderJobs.Create(ctx, req)
		if err != nil {
			return err
		}
		a.trackJob(ctx, client, "render_job_created", job, 0)
		return a.printJob(job)
	}

	poll := a.pollOptions(cmd)
	created := false
	onUpdate := poll.OnUpdate
	poll.OnUpdate = func(job *homeai.RenderJob) {
		if !created {
			created = true
			a.trackJob(ctx, client, "render_job_created", job, 0)
		}
		if onUpdate != nil {
			onUpdate(job)
		}
	}

	out, err := client.Render(ctx, req, homeai.RenderOptions{Poll: poll})
	if out == nil || (err != nil && !out.Job.Status.IsTerminal()) {
		return err
	}
	if err != nil {
		a.logger.Warn("render finished but bootstrap refresh failed", slog.String("error", err.Error()))
	}
	if out.Job.Status.IsTerminal() {
		a.trackJob(ctx, client, "render_job_finished", out.Job, time.Since(start))
	}
	if perr := a.printJob(out.Job); perr != nil {
		return perr
	}
	if out.Snapshot != nil && a.format == "table" {
		if balance, ok := out.Snapshot.Profile.Balance(); ok {
			fmt.Fprintf(a.out, "Credits:  %d\n", balance)
		}
	}
	return a.finishWait(out.Job, out.Poll)
}

func renderRequest(cmd *cobra.Command) homeai.RenderJobRequest {
	f := cmd.Flags()
	imageURL, _ := f.GetString("image-url")
	style, _ := f.GetString("style")
	operation, _ := f.GetString("operation")
	tier, _ := f.GetString("tier")
	parts, _ := f.GetStringSlice("parts")
	project, _ := f.GetString("project")
	maskURL, _ := f.GetString("mask-url")
	prompt, _ := f.GetStringToString("prompt")

	req := homeai.RenderJobRequest{
		ProjectID: project,
		ImageURL:  imageURL,
		StyleID:   style,
		Operation: homeai.Operation(strings.ToLower(operation)),
		Tier:      homeai.Tier(strings.ToLower(tier)),
		MaskURL:   maskURL,
	}
	for _, p := range parts {
		req.TargetParts = append(req.TargetParts, homeai.TargetPart(strings.ToLower(strings.TrimSpace(p))))
	}
	if len(prompt) > 0 {
		req.PromptOverrides = make(map[string]interface{}, len(prompt))
		for k, v := range prompt {
			req.PromptOverrides[k] = v
		}
	}
	return req
}

func newRenderGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show the current status of a render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			job, err := client.RenderJobs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJob(job)
		},
	}
}

func newRenderWaitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a render job until it finishes or the attempt budget runs out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.apiClient(ctx)
			if err != nil {
				return err
			}

			poll := a.pollOptions(cmd)
			poll.Immediate = true
			res, err := client.RenderJobs.PollUntilTerminal(ctx, args[0], poll)
			if err != nil {
				return err
			}
			if err := a.printJob(res.Job); err != nil {
				return err
			}
			return a.finishWait(res.Job, res)
		},
	}
	addPollFlags(cmd)
	return cmd
}

func newRenderCancelCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a render job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.apiClient(cmd.Context())
			if err != nil {
				return err
			}
			res, err := client.RenderJobs.Cancel(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return a.print(res, func(w io.Writer) error {
				if res.Canceled {
					fmt.Fprintf(w, "%s Job %s canceled\n", colorGreen("✓"), res.ID)
					return nil
				}
				fmt.Fprintf(w, "%s Job %s was already %s\n", colorYellow("ℹ"), res.ID, res.Status)
				return nil
			})
		},
	}
}

func (a *app) printJob(job *homeai.RenderJob) error {
	return a.print(job, func(w io.Writer) error {
		fmt.Fprintf(w, "ID:       %s\n", job.ID)
		fmt.Fprintf(w, "Status:   %s\n", formatStatus(job.Status))
		if job.ProjectID != "" {
			if created, ok := homeai.ProjectCreatedAt(job.ProjectID); ok {
				fmt.Fprintf(w, "Project:  %s (started %s)\n", job.ProjectID, formatTime(&created))
			} else {
				fmt.Fprintf(w, "Project:  %s\n", job.ProjectID)
			}
		}
		if job.StyleID != "" {
			fmt.Fprintf(w, "Style:    %s (%s, %s)\n", job.StyleID, job.Operation, job.Tier)
		}
		fmt.Fprintf(w, "Provider: %s %s\n", job.Provider, job.ProviderModel)
		if job.EstimatedCostUSD != nil {
			fmt.Fprintf(w, "Cost:     $%.4f\n", *job.EstimatedCostUSD)
		}
		if job.OutputURL != nil {
			fmt.Fprintf(w, "Output:   %s\n", *job.OutputURL)
		}
		if job.ErrorCode != nil {
			fmt.Fprintf(w, "Error:    %s\n", *job.ErrorCode)
		}
		fmt.Fprintf(w, "Updated:  %s\n", formatTime(job.UpdatedAt))
		return nil
	})
}

// finishWait turns the end of a wait into the command result: a failed job is
// an error, an exhausted budget is reported but is not.
func (a *app) finishWait(job *homeai.RenderJob, res *homeai.PollResult) error {
	if res != nil && res.Outcome == homeai.PollExhausted {
		fmt.Fprintf(a.errOut, "%s job %s still %s after %d checks; resume with: homeai render wait %s\n",
			colorYellow("⚠"), job.ID, job.Status, res.Attempts, job.ID)
		return nil
	}
	if job.Status == homeai.JobFailed {
		code := "unknown"
		if job.ErrorCode != nil {
			code = *job.ErrorCode
		}
		return fmt.Errorf("render job %s failed: %s", job.ID, code)
	}
	return nil
}

func formatStatus(s homeai.JobStatus) string {
	switch s {
	case homeai.JobCompleted:
		return colorGreen(string(s))
	case homeai.JobFailed:
		return colorRed(string(s))
	case homeai.JobCanceled:
		return colorYellow(string(s))
	}
	return string(s)
}

// trackJob reports a job event. Telemetry never fails the command.
func (a *app) trackJob(ctx context.Context, client *homeai.Client, name string, job *homeai.RenderJob, latency time.Duration) {
	ev := homeai.Event{
		Name:      name,
		Provider:  job.Provider,
		Operation: job.Operation,
		Status:    job.Status,
		CostUSD:   job.EstimatedCostUSD,
	}
	if latency > 0 {
		ms := latency.Milliseconds()
		ev.LatencyMS = &ms
	}
	client.Telemetry.Track(ctx, ev)
}
