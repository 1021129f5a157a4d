package server

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"

	"github.com/keyward/keyward/internal"
)

// setupSentry initializes error tracking. With no DSN configured the sentry
// client stays disabled and every capture below is a no-op.
func setupSentry(dsn string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:     dsn,
		Release: "keyward@" + internal.FullVersion(),
	})
}

// reportToSentry forwards unexpected errors, such as a panicking provider
// client, to the error tracking sink.
func reportToSentry(err error) {
	sentry.CaptureException(err)
}

func recoverWithSentry(c *gin.Context, recovered interface{}) {
	hub := sentry.CurrentHub().Clone()
	hub.Scope().SetRequest(c.Request)
	hub.RecoverWithContext(c.Request.Context(), recovered)
}

func closeSentry() {
	sentry.Flush(2 * time.Second)
}
