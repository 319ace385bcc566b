package event

import "encoding/json"

// Forward wires local's every emission to also be delivered on global with
// sessionId merged into the payload, preserving order (component behavior: "the
// global bus must receive every event that the local bus delivered, in the
// same order, with sessionId attribution"). It returns a Handle whose
// Cancel detaches the forwarder; this is what lets a Chat Session's local
// bus cleanly stop forwarding on session end without outliving the session.
func Forward(local, global *Bus, sessionID string) *Handle {
	return local.OnAll(func(ev Event) {
		global.Emit(Event{
			Name:    ev.Name,
			Payload: withSessionID(ev.Payload, sessionID),
		})
	})
}

// withSessionID merges sessionId into payload. If payload is nil, a bare
// {sessionId} struct is synthesized.
func withSessionID(payload any, sessionID string) any {
	if payload == nil {
		return struct {
			SessionID string `json:"sessionId"`
		}{SessionID: sessionID}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return payload
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		// Not a JSON object (e.g. a scalar or array payload): leave it
		// untouched rather than discard it.
		return payload
	}
	fields["sessionId"] = sessionID
	return fields
}
