// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the match gateway.
// These provide more specific reasons for closure than standard codes.
const (
	BadSubprotocolError   websocket.StatusCode = 4000 // Client connected with an unsupported subprotocol.
	InvalidSeatTokenError websocket.StatusCode = 4001 // Seat token was missing, invalid, or expired.
	MatchNotFoundError    websocket.StatusCode = 4002 // Match id in the WS URL does not exist.
	NotSeatedError        websocket.StatusCode = 4003 // Token names a player who is not seated in this match.
	MatchMismatchError    websocket.StatusCode = 4004 // Token was issued for a different match.
)
