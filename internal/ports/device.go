package ports

import "context"

type deviceKey struct{}

// WithDeviceID returns a child context naming the browser device a backend call is made for.
// Adapters that hold per-device state (backend cookies) key it by this id.
func WithDeviceID(ctx context.Context, deviceID string) context.Context {
	if deviceID == "" {
		return ctx
	}
	return context.WithValue(ctx, deviceKey{}, deviceID)
}

// DeviceIDFromContext returns the device id set by WithDeviceID.
func DeviceIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(deviceKey{}).(string)
	return id, ok && id != ""
}
