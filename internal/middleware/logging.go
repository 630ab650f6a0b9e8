// internal/middleware/logging.go

package middleware

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// statusRecorder remembers the first status code written to the response.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	if sr.status == 0 {
		sr.status = code
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	return sr.ResponseWriter.Write(b)
}

// LogMiddleware is an HTTP middleware that logs incoming requests using Logrus.
// Logs the method, path, response status and duration of each request.
// Websocket upgrades bypass it; they are logged by the gateway instead, since
// a hijacked connection has no final status to report.
func LogMiddleware(logger *logrus.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := r.URL.Path
			method := r.Method

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			logger.WithFields(logrus.Fields{
				"method":   method,
				"path":     path,
				"status":   rec.status,
				"duration": time.Since(start),
				"remote":   r.RemoteAddr,
			}).Info("HTTP Request")
		})
	}
}

// LogWebSocketConnect logs a player's websocket attach to a match.
// Called by the gateway once the seat is authenticated and registered.
func LogWebSocketConnect(logger *logrus.Logger, matchID, player, remoteAddr string) {
	logger.WithFields(logrus.Fields{
		"match_id": matchID,
		"player":   player,
		"remote":   remoteAddr,
	}).Info("WebSocket connected")
}

// LogWebSocketDisconnect logs the close of a player's websocket, carrying
// the read error when the closure was not clean.
func LogWebSocketDisconnect(logger *logrus.Logger, matchID, player string, err error) {
	fields := logrus.Fields{
		"match_id": matchID,
		"player":   player,
	}
	if err != nil {
		fields["error"] = err
	}
	logger.WithFields(fields).Info("WebSocket disconnected")
}
