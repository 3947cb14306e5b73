package capture

import (
	"context"
	"errors"
	"time"

	"github.com/teslashibe/go-facegate/pkg/recognition"
	"github.com/teslashibe/go-facegate/pkg/schedule"
)

// Outcome is the result of an enrollment or verification flow.
type Outcome struct {
	Response *recognition.Response `json:"response,omitempty"`
	Target   string                `json:"target,omitempty"`

	// Redirect is the scheduled navigation to Target, or nil.
	Redirect *schedule.Action `json:"-"`
}

// RedirectAt returns when the redirect is due, or the zero time.
func (o *Outcome) RedirectAt() time.Time {
	if o == nil || o.Redirect == nil {
		return time.Time{}
	}
	return o.Redirect.Due()
}

// Enroll captures a frame and submits it to the enrollment page. On success
// a redirect to the listing page is scheduled.
func (c *Controller) Enroll(ctx context.Context) (*Outcome, error) {
	payload, err := c.captureForSubmit()
	if err != nil {
		return nil, err
	}

	resp, err := c.process(ctx, payload, c.pagePath, nil, msgEnrolled)
	if err != nil {
		return outcomeOf(resp), err
	}
	return &Outcome{
		Response: resp,
		Target:   c.listingPath,
		Redirect: c.scheduleRedirect(c.listingPath),
	}, nil
}

// Verify captures a frame and submits it to the login endpoint, naming the
// account when one is given. On success a redirect to the target returned
// by the backend is scheduled.
func (c *Controller) Verify(ctx context.Context, account string) (*Outcome, error) {
	payload, err := c.captureForSubmit()
	if err != nil {
		return nil, err
	}

	var fields map[string]string
	if account != "" {
		fields = map[string]string{FieldAccount: account}
	}

	resp, err := c.process(ctx, payload, c.loginPath, fields, msgVerified)
	if err != nil {
		return outcomeOf(resp), err
	}

	out := &Outcome{Response: resp}
	if resp.HasRedirect() {
		out.Target = resp.RedirectURL
		out.Redirect = c.scheduleRedirect(resp.RedirectURL)
	}
	return out, nil
}

func outcomeOf(resp *recognition.Response) *Outcome {
	if resp == nil {
		return nil
	}
	return &Outcome{Response: resp}
}

// captureForSubmit grabs a frame and runs the quality gate on it.
func (c *Controller) captureForSubmit() (string, error) {
	payload, frame, cerr := c.capture()
	if cerr != nil {
		return "", c.fail(cerr)
	}
	if c.gate == nil {
		return payload, nil
	}

	res := c.gate.Check(frame)
	if !res.OK() {
		c.logger.Info("frame rejected by quality gate",
			"reason", res.Reason.String(),
			"sharpness", res.Sharpness,
			"entropy", res.Entropy)
		return "", c.fail(newError(LowQuality, errors.New(res.Reason.String())))
	}
	return payload, nil
}

// scheduleRedirect replaces any pending redirect with one to target.
func (c *Controller) scheduleRedirect(target string) *schedule.Action {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.redirect.Cancel()
	c.redirectTarget = target
	c.redirect = c.sched.After(c.redirectDelay, func() { c.navigate(target) })
	return c.redirect
}

func (c *Controller) navigate(target string) {
	c.mu.Lock()
	if c.redirectTarget == target {
		c.redirect = nil
		c.redirectTarget = ""
	}
	c.mu.Unlock()

	c.logger.Info("navigating", "target", target)
	if c.nav != nil {
		c.nav.Navigate(target)
	}
}

// CancelRedirect cancels a pending redirect. It reports whether one was
// pending.
func (c *Controller) CancelRedirect() bool {
	c.mu.Lock()
	pending := c.redirect
	c.redirect = nil
	c.redirectTarget = ""
	c.mu.Unlock()
	return pending.Cancel()
}
