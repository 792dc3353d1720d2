package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/pffise-create/PinhighAI-sub003/internal/projection"
	"github.com/pffise-create/PinhighAI-sub003/internal/queue"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const defaultQueueKey = "swing:triggers"

type triggerResult struct {
	JobID   string           `json:"job_id"`
	Outcome string           `json:"outcome,omitempty"`
	Reason  string           `json:"reason,omitempty"`
	View    *projection.View `json:"analysis,omitempty"`
}

func newTriggerCmd(a *app) *cobra.Command {
	var (
		userID   string
		status   string
		wait     bool
		useQueue bool
	)
	c := &cobra.Command{
		Use:   "trigger <job-id>",
		Short: "Start AI analysis for a job whose frames are extracted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := models.Trigger{JobID: args[0], OwnerID: userID, Status: status}
			if useQueue {
				if wait {
					return fmt.Errorf("--wait cannot be combined with --queue")
				}
				return publishTrigger(cmd, a, t)
			}

			path := "/api/v1/triggers"
			if wait {
				path += "?wait=true"
			}
			var res triggerResult
			if err := a.client().do(cmd.Context(), "POST", path, t, &res); err != nil {
				return err
			}
			if a.jsonOutput() {
				return printJSON(a.out, res)
			}
			if res.Outcome == "" {
				fmt.Fprintf(a.out, "Analysis of %s dispatched\n", res.JobID)
				return nil
			}
			table := tablewriter.NewWriter(a.out)
			table.Header("Job ID", "Outcome", "Reason", "Status")
			st := ""
			if res.View != nil {
				st = res.View.Status
			}
			table.Append(res.JobID, res.Outcome, res.Reason, st)
			return table.Render()
		},
	}
	c.Flags().StringVar(&userID, "user", "", "owner id of the job (required)")
	c.Flags().StringVar(&status, "status", string(models.StatusCompleted), "extraction status reported with the trigger: COMPLETED or READY_FOR_AI")
	c.Flags().BoolVar(&wait, "wait", false, "run the analysis inline and print the outcome")
	c.Flags().BoolVar(&useQueue, "queue", false, "publish to the Redis trigger queue instead of calling the API")
	c.Flags().String("redis-url", "redis://localhost:6379", "Redis URL used with --queue")
	c.Flags().String("queue-key", defaultQueueKey, "Redis list used with --queue")
	_ = c.MarkFlagRequired("user")
	_ = a.v.BindPFlag("redis_url", c.Flags().Lookup("redis-url"))
	_ = a.v.BindPFlag("queue_key", c.Flags().Lookup("queue-key"))
	return c
}

func publishTrigger(cmd *cobra.Command, a *app, t models.Trigger) error {
	opts, err := redis.ParseURL(a.v.GetString("redis_url"))
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	q := queue.NewRedisQueue(client, a.v.GetString("queue_key"), 0)
	if err := q.Publish(cmd.Context(), t); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Trigger for %s queued on %s\n", t.JobID, a.v.GetString("queue_key"))
	return nil
}
