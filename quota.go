package emberauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/emberauth/emberauth/notify"
)

// lowQuotaDebounce is the minimum spacing between low-quota notifications
// for one app.
const lowQuotaDebounce = 24 * time.Hour

// consumeQuota is the gate entered before any challenge is issued. The
// Unlimited flag short-circuits the whole component, consuming nothing.
//
// Owner notifications here are secondary: once quota state has been
// touched, a delivery failure is logged and never fails the caller's
// authentication flow. The exhaustion case notifies and then fails the
// request as a service-unavailable condition.
func (e *Engine) consumeQuota(ctx context.Context, app *App) error {
	if app.Unlimited {
		return nil
	}

	remaining, err := e.apps.ConsumeQuota(ctx, app.ID)
	if err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			e.metricInc(MetricQuotaExhausted)
			e.notifyOwner(ctx, app, notify.Message{
				To:       app.Owner,
				Subject:  fmt.Sprintf("%s is out of authentications", app.Name),
				Text:     fmt.Sprintf("The authentication quota for %s is exhausted. Sign-in requests are being refused until the quota is raised.", app.Name),
				FromName: app.Name,
			})
			return ErrQuotaExhausted
		}
		return err
	}

	if remaining < app.LowQuotaThreshold {
		e.notifyLowQuota(ctx, app, remaining)
	}
	return nil
}

// notifyLowQuota sends the debounced low-quota warning. The store-side
// compare-and-swap on the notification timestamp guarantees at most one
// send per debounce window even under concurrent requests.
func (e *Engine) notifyLowQuota(ctx context.Context, app *App, remaining int64) {
	now := time.Now()
	marked, err := e.apps.MarkQuotaNotified(ctx, app.ID, now.Add(-lowQuotaDebounce), now)
	if err != nil {
		e.logger.Warn("low quota notification mark failed",
			zap.String("app_id", app.ID), zap.Error(err))
		return
	}
	if !marked {
		return
	}

	e.metricInc(MetricLowQuotaNotified)
	e.notifyOwner(ctx, app, notify.Message{
		To:       app.Owner,
		Subject:  fmt.Sprintf("%s is running low on authentications", app.Name),
		Text:     fmt.Sprintf("Only %d authentications remain for %s.", remaining, app.Name),
		FromName: app.Name,
	})
}

// notifyOwner delivers a secondary notification best-effort.
func (e *Engine) notifyOwner(ctx context.Context, app *App, msg notify.Message) {
	if err := e.sender.Send(ctx, msg); err != nil {
		e.metricInc(MetricNotifyFailed)
		e.logger.Warn("owner notification dropped",
			zap.String("app_id", app.ID), zap.String("subject", msg.Subject), zap.Error(err))
	}
}
