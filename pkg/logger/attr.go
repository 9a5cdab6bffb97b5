package logger

import "log/slog"

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// AccountID records the account identifier under the key "account_id".
// If id is nil, it returns an empty Attr.
func AccountID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("account_id", id)
}

// SubscriptionID records the provider subscription identifier under the key "subscription_id".
func SubscriptionID(id string) slog.Attr {
	return slog.String("subscription_id", id)
}

// ItemID records the provider item (price) identifier under the key "item_id".
func ItemID(id string) slog.Attr {
	return slog.String("item_id", id)
}

// EventType records the webhook event type under the key "event_type".
func EventType(eventType string) slog.Attr {
	return slog.String("event_type", eventType)
}

// ArtifactKind records the cached artifact kind under the key "artifact_kind".
func ArtifactKind(kind string) slog.Attr {
	return slog.String("artifact_kind", kind)
}

// Year records a calendar year under the key "year".
func Year(year int) slog.Attr {
	return slog.Int("year", year)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}
