package api

import (
	"net/http"
)

// handleWebSocket authenticates the browser from the token query parameter
// and hands the connection to the browser pilot.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	subject, err := s.validateToken(r.URL.Query().Get("token"))
	if err != nil {
		s.logger.Warn("browser rejected", "error", err, "remote", r.RemoteAddr)
		writeUnauthorized(w, err.Error())
		return
	}

	if err := s.browsers.Serve(w, r, subject); err != nil {
		// The upgrader already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err, "subject", subject)
		return
	}
	s.logger.Debug("browser connected", "subject", subject, "remote", r.RemoteAddr)
}
