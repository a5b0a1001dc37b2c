package realtime

import "zarigaas/pkg/errors"

// userMessage turns a subscription failure into a banner string.
func userMessage(err error) string {
	switch errors.KindOf(err) {
	case errors.KindTransient:
		return "Connection is unstable. Showing the last data we received."
	case errors.KindPermission:
		return "You do not have permission to view this data."
	case errors.KindSchema:
		return "This view cannot be loaded right now. Please contact support."
	}
	return "Something went wrong while loading data."
}
