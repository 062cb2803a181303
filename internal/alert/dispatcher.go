package alert

import "context"

// Dispatcher delivers one alert. The pipeline only needs the boolean
// outcome for the run log; retries and backoff are the dispatcher's
// concern.
type Dispatcher interface {
	Send(ctx context.Context, subject, body string) error
}
