package routing

import (
	"voice-receptionist/internal/calls"
	"voice-receptionist/internal/telephony"
)

// Classify decides how a call reached us.
// Precedence: a forwarding number beats a dialed number; with neither the
// caller has to be prompted for who they want.
func Classify(p telephony.Payload) calls.Route {
	switch {
	case p.Get(telephony.FieldForwardedFrom) != "":
		return calls.RouteForwarded
	case p.Get(telephony.FieldTo) != "":
		return calls.RouteDirect
	default:
		return calls.RoutePrompted
	}
}

// lookupNumber is the number a business is registered under for this route.
func lookupNumber(route calls.Route, p telephony.Payload) string {
	switch route {
	case calls.RouteForwarded:
		return p.Get(telephony.FieldForwardedFrom)
	case calls.RouteDirect:
		return p.Get(telephony.FieldTo)
	default:
		return ""
	}
}
