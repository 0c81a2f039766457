package server

import (
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

func NewSocketAcceptor(sessionHolder *SessionHolder, config *Config, pipeline *Pipeline, stats *Stats, logger *Logger) func(http.ResponseWriter, *http.Request) {
	upgrader := &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {

		//A missing or invalid token doesn't reject the connection, its events are dropped by the pipeline
		identity, ok := parseToken([]byte(config.AuthConfig.JWTSecret), requestToken(r, config))
		if ok && identity.Nickname == "" {
			identity.Nickname = pipeline.guestNickname(identity.IntraID)
		}

		clientAddr := ""
		clientIP := ""
		clientPort := ""
		if ips := r.Header.Get("x-forwarded-for"); len(ips) > 0 {
			clientAddr = strings.Split(ips, ",")[0]
		} else {
			clientAddr = r.RemoteAddr
		}

		clientAddr = strings.TrimSpace(clientAddr)
		if host, port, err := net.SplitHostPort(clientAddr); err == nil {
			clientIP = host
			clientPort = port
		} else if addrErr, ok := err.(*net.AddrError); ok && addrErr.Err == "missing port in address" {
			clientIP = clientAddr
		} else {
			logger.Warnw("Could not extract client address from request.", "error", errors.WithStack(err))
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Errorw("Websocket upgrade was failed", "error", errors.WithStack(err))
			return
		}

		s := NewSession(identity, clientIP, clientPort, conn, config, sessionHolder, stats, logger)

		logger.Infow("New socket connection was established", "id", s.ID().String(), "intraID", s.IntraID(), "authenticated", identity != nil)

		sessionHolder.add(s)
		pipeline.Connect(s)

		//Incoming requests will be handled in sessions Consume method and will be passed to pipeline to run logic part of the each request
		s.Consume(pipeline.handleSocketRequests)

		pipeline.Disconnect(s)

	}
}

//requestToken reads the identity token from the query, then from the cookie
func requestToken(r *http.Request, config *Config) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie(config.AuthConfig.CookieName); err == nil {
		return cookie.Value
	}
	return ""
}
