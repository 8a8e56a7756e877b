package adyen

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// NotificationAccepted is the body Adyen expects back; anything else makes
// it resend the notification.
const NotificationAccepted = "[accepted]"

// ParseNotification reads an HTTP POST notification form.
func ParseNotification(form url.Values) (*Notification, error) {
	n := &Notification{
		Live:                parseBool(form.Get("live")),
		EventCode:           strings.TrimSpace(form.Get("eventCode")),
		PSPReference:        strings.TrimSpace(form.Get("pspReference")),
		OriginalReference:   form.Get("originalReference"),
		MerchantReference:   form.Get("merchantReference"),
		MerchantAccountCode: form.Get("merchantAccountCode"),
		Success:             parseBool(form.Get("success")),
		PaymentMethod:       form.Get("paymentMethod"),
		Operations:          form.Get("operations"),
		Reason:              form.Get("reason"),
		Currency:            form.Get("currency"),
	}

	if n.EventCode == "" || n.PSPReference == "" {
		return nil, fmt.Errorf("%w: eventCode and pspReference are required", ErrInvalidNotification)
	}

	if v := form.Get("value"); v != "" {
		value, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %q", ErrInvalidNotification, v)
		}
		n.Value = value
	}

	if d := form.Get("eventDate"); d != "" {
		t, err := time.Parse(time.RFC3339, d)
		if err != nil {
			return nil, fmt.Errorf("%w: eventDate %q", ErrInvalidNotification, d)
		}
		n.EventDate = &t
	}

	return n, nil
}

func parseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
