package server

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

//tokenIdentity is what a valid identity token binds to a connection
type tokenIdentity struct {
	IntraID  int64
	Nickname string
	Expiry   int64
}

type Server struct {
	httpServer *http.Server
	config     *Config
	logger     *Logger
}

func (s *Server) Stop() {
	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.Errorw("Couldn't shutdown http server", "error", err)
	}
}

func StartServer(sessionHolder *SessionHolder, config *Config, pipeline *Pipeline, stats *Stats, logger *Logger) *Server {

	s := &Server{
		config: config,
		logger: logger,
		httpServer: &http.Server{
			MaxHeaderBytes: 5120,
			Handler:        NewHandler(sessionHolder, config, pipeline, stats, logger),
		},
	}

	logger.Infow("Starting server for HTTP requests", "port", config.Port)
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.Port))
	if err != nil {
		logger.Fatalw("Error while creating listener for http server", "error", err)
	}
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			logger.Fatalw("Error while serving http server", "error", err)
		}
	}()

	return s

}

//NewHandler builds the router with every route of the server
func NewHandler(sessionHolder *SessionHolder, config *Config, pipeline *Pipeline, stats *Stats, logger *Logger) http.Handler {

	router := mux.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			stats.IncrRequest()
			next.ServeHTTP(w, r)
		})
	})

	router.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) }).Methods("GET")
	router.HandleFunc("/ws", NewSocketAcceptor(sessionHolder, config, pipeline, stats, logger)).Methods("GET")
	router.Handle("/metrics", stats.Handler()).Methods("GET")

	router.HandleFunc("/v1/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, pipeline.Overview(), logger)
	}).Methods("GET")

	router.HandleFunc("/v1/games/{intraId}", func(w http.ResponseWriter, r *http.Request) {
		intraID, err := strconv.ParseInt(mux.Vars(r)["intraId"], 10, 64)
		if err != nil {
			http.Error(w, "Invalid intra id", http.StatusBadRequest)
			return
		}
		results, err := pipeline.results.ListByIntraID(intraID)
		if err != nil {
			logger.Errorw("Could not list game results", "intraID", intraID, "error", err)
			http.Error(w, "Could not list games", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, results, logger)
	}).Methods("GET")

	// Enable CORS on all requests.
	CORSHeaders := handlers.AllowedHeaders([]string{"Authorization", "Content-Type", "User-Agent"})
	CORSOrigins := handlers.AllowedOrigins([]string{"*"})
	CORSMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "DELETE"})
	return handlers.CORS(CORSHeaders, CORSOrigins, CORSMethods)(router)

}

func writeJSON(w http.ResponseWriter, status int, v interface{}, logger *Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("Could not write response", "error", err)
	}
}

//parseToken verifies an HS256 token carrying intraId, nickname and exp claims
func parseToken(hmacSecretByte []byte, tokenString string) (*tokenIdentity, bool) {
	if tokenString == "" || len(hmacSecretByte) == 0 {
		return nil, false
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if s, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || s.Hash != crypto.SHA256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return hmacSecretByte, nil
	})
	if err != nil {
		return nil, false
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, false
	}
	intraID, ok := claims["intraId"].(float64)
	if !ok || intraID <= 0 {
		return nil, false
	}
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, false
	}
	nickname, _ := claims["nickname"].(string)
	return &tokenIdentity{
		IntraID:  int64(intraID),
		Nickname: nickname,
		Expiry:   int64(exp),
	}, true
}
