package slackapi

import (
	"context"
	"errors"
	"net"

	"github.com/slack-go/slack"

	"github.com/jibinmichael/paperforslack/internal/platform"
)

// mapError translates a slack-go failure into the platform error taxonomy.
// Slack reports API errors as bare strings, so classification is by error
// code string.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		return platform.NewError(platform.ErrCodeRateLimit, op, "rate limited", err)
	}

	var slackErr slack.SlackErrorResponse
	code := err.Error()
	if errors.As(err, &slackErr) {
		code = slackErr.Err
	}

	switch code {
	case "channel_not_found", "is_archived", "not_in_channel":
		return platform.NewError(platform.ErrCodeChannelGone, op, "channel is gone or inaccessible", err)
	case "canvas_not_found", "file_not_found":
		return platform.NewError(platform.ErrCodeCanvasStale, op, "canvas no longer exists", err)
	case "access_denied", "missing_scope", "restricted_action", "free_team_not_allowed":
		return platform.NewError(platform.ErrCodeAccessDenied, op, "operation not permitted", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return platform.NewError(platform.ErrCodeConnection, op, "transient network failure", err)
	}

	return platform.NewError(platform.ErrCodeInternal, op, "unexpected platform failure", err)
}
