package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const maxBodyRead = 1 << 20

// Login authenticates with the configured credentials and stores the user ID.
// It fails with *AuthError when the server rejects the login or the response
// carries no ID.
func (c *Client) Login(ctx context.Context) (int, error) {
	form := url.Values{}
	form.Set("remember-me", "1")
	form.Set("username", c.cfg.Username)
	form.Set("password", c.cfg.Password)

	var uid int
	err := c.withRetry(ctx, "login", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.endpoint("/login?remember-me=1"), strings.NewReader(form.Encode()))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		status, body, err := c.roundTrip(req)
		if err != nil {
			return err
		}
		if status >= 500 {
			return &StatusError{Op: "login", StatusCode: status, Body: SummarizeBody(string(body))}
		}
		if status != http.StatusOK {
			return &AuthError{StatusCode: status, Message: SummarizeBody(string(body))}
		}

		var lr loginResponse
		if err := json.Unmarshal(body, &lr); err != nil || lr.ID == 0 {
			return &AuthError{StatusCode: status, Message: "user id not found in response"}
		}
		uid = int(lr.ID)
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.SetUserID(uid)
	c.log.Info().Int("user_id", uid).Msg("logged in")
	return uid, nil
}

// FetchAccruals returns the subject IDs the user is enrolled in.
func (c *Client) FetchAccruals(ctx context.Context) ([]int, error) {
	uid := c.UserID()
	if uid == 0 {
		return nil, ErrNotLoggedIn
	}

	var resp accrualsResponse
	if err := c.getJSON(ctx, "accruals", c.endpoint("/finance/accruals/%d", uid), &resp); err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(resp.Accruals))
	for _, a := range resp.Accruals {
		if a.ID != 0 {
			ids = append(ids, int(a.ID))
		}
	}
	c.log.Debug().Int("subjects", len(ids)).Msg("accruals loaded")
	return ids, nil
}

// FetchSchedule returns the schedule document of one subject.
func (c *Client) FetchSchedule(ctx context.Context, subjectID int) (*ScheduleDocument, error) {
	uid := c.UserID()
	if uid == 0 {
		return nil, ErrNotLoggedIn
	}

	var doc ScheduleDocument
	op := fmt.Sprintf("schedule %d", subjectID)
	if err := c.getJSON(ctx, op, c.endpoint("/registration/student/%d/schedule/%d", uid, subjectID), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// RegisterLessons posts the lesson IDs for one subject. It never returns an
// error: transport failures are reported as status 0 with the error text.
// It is not retried here; the attempt loop owns retries for writes.
func (c *Client) RegisterLessons(ctx context.Context, subjectID int, lessonIDs []int) (int, string) {
	uid := c.UserID()
	if uid == 0 {
		return 0, ErrNotLoggedIn.Error()
	}
	if lessonIDs == nil {
		lessonIDs = []int{}
	}
	payload, err := json.Marshal(lessonIDs)
	if err != nil {
		return 0, err.Error()
	}

	var trace RequestTrace
	req, err := http.NewRequestWithContext(withTrace(ctx, &trace), http.MethodPost,
		c.endpoint("/registration/student/%d/schedule/%d/save", uid, subjectID), bytes.NewReader(payload))
	if err != nil {
		return 0, err.Error()
	}
	req.Header.Set("Content-Type", "application/json")

	trace.begin()
	status, body, err := c.roundTrip(req)
	trace.finish()
	if err != nil {
		return 0, err.Error()
	}

	c.log.Debug().
		Int("subject", subjectID).
		Int("status", status).
		Bool("reused", trace.ConnectionReused).
		Dur("ttfb", trace.GotFirstResponseByte).
		Dur("total", trace.TotalDuration).
		Msg("registration write")
	return status, strings.TrimSpace(string(body))
}

func (c *Client) getJSON(ctx context.Context, op, endpoint string, out any) error {
	return c.withRetry(ctx, op, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		status, body, err := c.roundTrip(req)
		if err != nil {
			return err
		}
		if status != http.StatusOK {
			return &StatusError{Op: op, StatusCode: status, Body: SummarizeBody(string(body))}
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
		return nil
	})
}

// roundTrip sends req and reads the whole (bounded) body.
func (c *Client) roundTrip(req *http.Request) (int, []byte, error) {
	resp, err := c.do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		return 0, nil, &transportError{err: err}
	}
	return resp.StatusCode, body, nil
}
