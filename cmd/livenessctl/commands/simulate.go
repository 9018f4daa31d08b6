package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/cobra"

	jwttoken "liveness/internal/jwt_token"
	"liveness/internal/liveness/backend"
	"liveness/internal/liveness/capture"
	"liveness/internal/liveness/credentials"
	"liveness/internal/liveness/eventbridge"
	"liveness/internal/liveness/flow"
	"liveness/internal/liveness/launcher"
	"liveness/internal/liveness/models"
	"liveness/internal/liveness/poller"
	"liveness/internal/liveness/staging"
	"liveness/internal/liveness/store/attempt"
	"liveness/internal/liveness/surface"
	"liveness/internal/platform/logger"
)

type simulateOptions struct {
	document       string
	maxSize        string
	outcome        string
	failureMessage string
	resultStatus   string
	resultReason   string
	outcomeTimeout time.Duration
	deadline       time.Duration
}

func simulateCmd() *cobra.Command {
	opts := simulateOptions{}
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive one flow end to end against the in-memory backend and a simulated surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd.Context(), opts, cmd.OutOrStdout(), log)
		},
	}
	cmd.Flags().StringVarP(&opts.document, "document", "d", "", "path to the identity document image")
	cmd.Flags().StringVar(&opts.maxSize, "max-size", "10MiB", "largest accepted document")
	cmd.Flags().StringVar(&opts.outcome, "outcome", "complete", "surface outcome: complete, failed or silent")
	cmd.Flags().StringVar(&opts.failureMessage, "failure-message", "user cancelled", "message of a failed surface outcome")
	cmd.Flags().StringVar(&opts.resultStatus, "result-status", "SUCCESS", "status the backend reports for the session")
	cmd.Flags().StringVar(&opts.resultReason, "result-reason", "", "status reason the backend reports, e.g. FACE_MISMATCH")
	cmd.Flags().DurationVar(&opts.outcomeTimeout, "outcome-timeout", 10*time.Second, "how long to wait for the surface outcome")
	cmd.Flags().DurationVar(&opts.deadline, "deadline", time.Minute, "overall time limit")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}

func scriptFor(opts simulateOptions) (surface.Script, error) {
	switch strings.ToLower(opts.outcome) {
	case "complete":
		return surface.AlwaysComplete(), nil
	case "failed":
		return surface.AlwaysFail(opts.failureMessage), nil
	case "silent":
		return surface.NeverRespond(), nil
	default:
		return nil, fmt.Errorf("unknown outcome %q", opts.outcome)
	}
}

// runSimulation runs one flow to a terminal stage and prints every snapshot.
// A failed flow is reported as an error.
func runSimulation(ctx context.Context, opts simulateOptions, out io.Writer, log *slog.Logger) error {
	if log == nil {
		log = logger.NewWithWriter(io.Discard, "error")
	}
	script, err := scriptFor(opts)
	if err != nil {
		return err
	}
	maxBytes, err := units.RAMInBytes(opts.maxSize)
	if err != nil {
		return fmt.Errorf("max size: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.deadline)
	defer cancel()

	fake := backend.NewFake(backend.WithDefaultResult(models.ResultRecord{
		Status:       opts.resultStatus,
		StatusReason: opts.resultReason,
	}))
	bridge := eventbridge.New(eventbridge.WithLogger(log))
	defer bridge.Close()
	attempts := attempt.NewInMemoryStore()

	const owner = "simulated-user"
	token, err := jwttoken.NewJWTService("livenessctl-simulate", "livenessctl", "liveness-api").
		GenerateAccessToken(owner, opts.deadline)
	if err != nil {
		return fmt.Errorf("sign simulated user token: %w", err)
	}

	m, err := flow.New(owner, flow.Dependencies{
		Scanner:     capture.NewFileScanner(opts.document, maxBytes),
		Stager:      staging.New(fake, fake, staging.WithMaxDocumentBytes(maxBytes), staging.WithLogger(log)),
		Credentials: credentials.New(fake, credentials.WithLogger(log)),
		Launcher:    launcher.New(surface.NewSimulated(bridge, script, log), launcher.WithLogger(log)),
		Results:     poller.New(fake, log),
		Bridge:      bridge,
		Tokens:      func(context.Context) string { return token },
	},
		flow.WithLogger(log),
		flow.WithAttempts(attempts),
		flow.WithAutoLaunch(true),
		flow.WithOutcomeTimeout(opts.outcomeTimeout),
	)
	if err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = m.Run(runCtx) }()

	updates, unwatch := m.Watch()
	defer unwatch()

	if err := m.StartCapture(ctx); err != nil {
		return err
	}

	var final models.Snapshot
	for final.Stage == "" || !final.Stage.IsTerminal() {
		select {
		case <-ctx.Done():
			return fmt.Errorf("flow did not finish: %w", ctx.Err())
		case snap, ok := <-updates:
			if !ok {
				return errors.New("flow stopped before finishing")
			}
			printSnapshot(out, snap)
			final = snap
			if snap.Stage == models.StageIdle && snap.Error != nil {
				return fmt.Errorf("capture ended: %s", snap.Error)
			}
		}
	}

	stop()
	<-m.Done()
	if list, err := attempts.ListByOwner(ctx, m.Owner()); err == nil && len(list) > 0 {
		a := list[0]
		fmt.Fprintf(out, "attempt %s: final=%s document=%s duration=%s\n",
			a.ID, a.FinalStage, units.HumanSize(float64(a.DocumentBytes)), a.FinishedAt.Sub(a.StartedAt).Round(time.Millisecond))
	}
	if final.Stage == models.StageFailed {
		return fmt.Errorf("verification failed: %s", final.Error)
	}
	return nil
}

func printSnapshot(out io.Writer, s models.Snapshot) {
	line := fmt.Sprintf("%-21s screen=%-8s action=%-6s loading=%t", s.Stage, s.Screen(), s.PrimaryAction(), s.Loading())
	if s.SessionID != "" {
		line += " session=" + s.SessionID.String()
	}
	if s.Error != nil {
		line += " error=" + s.Error.Error()
	}
	if s.Verdict != nil {
		line += " verdict=" + string(s.Verdict.Status)
	}
	fmt.Fprintln(out, line)
}
