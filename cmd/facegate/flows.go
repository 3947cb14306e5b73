package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-facegate/internal/log"
	"github.com/teslashibe/go-facegate/pkg/capture"
	"github.com/teslashibe/go-facegate/pkg/detection"
	"github.com/teslashibe/go-facegate/pkg/status"
)

var verifyAccount string

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Capture one frame and enroll it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runFlow(cmd.Context(), func(ctx context.Context, c *capture.Controller) (*capture.Outcome, error) {
			return c.Enroll(ctx)
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Capture one frame and verify it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runFlow(cmd.Context(), func(ctx context.Context, c *capture.Controller) (*capture.Outcome, error) {
			return c.Verify(ctx, verifyAccount)
		})
	},
}

func init() {
	rootCmd.AddCommand(enrollCmd, verifyCmd)

	verifyCmd.Flags().StringVar(&verifyAccount, "account", "", "Account to verify against (optional)")
}

type flowFunc func(ctx context.Context, c *capture.Controller) (*capture.Outcome, error)

// runFlow starts the camera, runs one flow and waits for its redirect, if
// any. The camera is released on every path.
func runFlow(parent context.Context, flow flowFunc) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := log.Component("cli")

	redirected := make(chan string, 1)
	nav := capture.NavigatorFunc(func(target string) {
		select {
		case redirected <- target:
		default:
		}
	})
	onFace := func(ev detection.Event) {
		logger.Info("face presence changed", "present", ev.Present, "faces", ev.Count)
	}

	ctrl, release, err := newController(ctx, status.NewLogSink(log.Component("status")), nav, nil, onFace)
	if err != nil {
		return err
	}
	defer release()

	if err := ctrl.StartCamera(ctx); err != nil {
		return err
	}

	out, err := flow(ctx, ctrl)
	if err != nil {
		var ce *capture.Error
		if errors.As(err, &ce) && ce.Message != "" {
			return fmt.Errorf("%s: %s", ce.Kind, ce.Message)
		}
		return err
	}
	if out.Response != nil {
		fmt.Println(out.Response.Message)
	}
	if out.Redirect == nil {
		return nil
	}

	select {
	case target := <-redirected:
		fmt.Printf("next: %s\n", target)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
