// Package alert flags transfers that have waited too long. It never changes
// a transfer.
package alert

import (
	"fmt"
	"sort"
	"time"

	"github.com/erazemk/prenos/internal/model"
)

// Rule names.
const (
	RulePendingCustomer = "pending_customer_present"
	RuleUnconfirmed     = "delivered_unconfirmed"
	RuleStale           = "stale"
)

// Thresholds are the ages at which each rule fires.
type Thresholds struct {
	PendingCustomer time.Duration
	Unconfirmed     time.Duration
	Stale           time.Duration
}

// DefaultThresholds are 30 minutes, 2 hours and 24 hours.
var DefaultThresholds = Thresholds{
	PendingCustomer: 30 * time.Minute,
	Unconfirmed:     2 * time.Hour,
	Stale:           24 * time.Hour,
}

func (th Thresholds) withDefaults() Thresholds {
	if th.PendingCustomer <= 0 {
		th.PendingCustomer = DefaultThresholds.PendingCustomer
	}
	if th.Unconfirmed <= 0 {
		th.Unconfirmed = DefaultThresholds.Unconfirmed
	}
	if th.Stale <= 0 {
		th.Stale = DefaultThresholds.Stale
	}
	return th
}

// Sweep returns the alerts raised by transfers at now, most severe first and
// oldest first within a severity. One transfer can raise several alerts.
// Zero thresholds fall back to DefaultThresholds.
func Sweep(now time.Time, transfers []model.Transfer, th Thresholds) []model.Alert {
	th = th.withDefaults()

	var alerts []model.Alert
	for i := range transfers {
		t := &transfers[i]
		if t.Status.Terminal() {
			continue
		}

		if t.Status == model.StatusPending && t.Urgency == model.UrgencyCustomerPresent {
			if age := now.Sub(t.CreatedAt); age > th.PendingCustomer {
				alerts = append(alerts, newAlert(t, model.SeverityHigh, RulePendingCustomer, age,
					"customer waiting, transfer not accepted for %s"))
			}
		}

		if t.Status == model.StatusDelivered && t.DeliveredAt != nil {
			if age := now.Sub(*t.DeliveredAt); age > th.Unconfirmed {
				alerts = append(alerts, newAlert(t, model.SeverityMedium, RuleUnconfirmed, age,
					"delivered but reception not confirmed for %s"))
			}
		}

		if age := now.Sub(t.CreatedAt); age > th.Stale {
			alerts = append(alerts, newAlert(t, model.SeverityReview, RuleStale, age,
				"transfer open for %s"))
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		if ri, rj := alerts[i].Severity.Rank(), alerts[j].Severity.Rank(); ri != rj {
			return ri < rj
		}
		return alerts[i].Age > alerts[j].Age
	})
	return alerts
}

func newAlert(t *model.Transfer, sev model.Severity, rule string, age time.Duration, format string) model.Alert {
	return model.Alert{
		TransferID: t.ID,
		Severity:   sev,
		Rule:       rule,
		Status:     t.Status,
		Age:        age,
		Message:    fmt.Sprintf(format, age.Truncate(time.Minute)),
	}
}
