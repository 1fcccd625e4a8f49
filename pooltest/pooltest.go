// Copyright (c) 2019 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package pooltest provides an in-process stake pool serving the pool API
// over HTTPS, for use in tests of pool clients.
package pooltest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"github.com/decred/dcrpoolclient/poolapi"
	"github.com/decred/dcrpoolclient/votebits"
	"github.com/dgrijalva/jwt-go"
	"github.com/gorilla/securecookie"
	"github.com/zenazn/goji/web"
	gojimw "github.com/zenazn/goji/web/middleware"
	"google.golang.org/grpc/codes"
)

// User is a registered account of the pool.
type User struct {
	ID              int64
	PubKeyAddr      string
	FeeAddress      string
	Script          string
	TicketAddress   string
	VoteBits        uint16
	VoteBitsVersion uint32
}

// Config describes the pool to serve.
type Config struct {
	// Versions lists the API versions the pool answers.  Defaults to 1
	// and 2.
	Versions []int

	// PoolFees is the fee percentage reported by getpurchaseinfo, e.g.
	// "2.50".
	PoolFees string

	// Network is reported by the stats call.
	Network string

	// Agendas constrain which vote bits the voting call accepts.  Vote
	// bits are checked against no agendas when nil.
	Agendas []votebits.Agenda
}

// Server is a stake pool serving the pool API.  The embedded
// httptest.Server's Client trusts the pool's certificate.
type Server struct {
	*httptest.Server

	secret   []byte
	versions []int
	poolFees json.Number
	network  string
	agendas  []votebits.Agenda

	mu           sync.Mutex
	users        map[int64]*User
	nextID       int64
	failStatus   int
	rawPurchase  json.RawMessage
	rawStats     json.RawMessage
	requestCount map[string]int
}

// apiResponse is the envelope written by the pool.
type apiResponse struct {
	Status  string      `json:"status"`
	Code    codes.Code  `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewServer starts a pool.  A nil cfg serves the defaults.  Close must be
// called when done.
func NewServer(cfg *Config) *Server {
	if cfg == nil {
		cfg = new(Config)
	}
	s := &Server{
		secret:       securecookie.GenerateRandomKey(32),
		versions:     cfg.Versions,
		poolFees:     json.Number(cfg.PoolFees),
		network:      cfg.Network,
		agendas:      cfg.Agendas,
		users:        make(map[int64]*User),
		nextID:       1,
		requestCount: make(map[string]int),
	}
	if s.versions == nil {
		s.versions = []int{1, 2}
	}
	if s.poolFees == "" {
		s.poolFees = "0"
	}

	mux := web.New()
	mux.Use(gojimw.EnvInit)
	mux.Use(s.applyFailures)
	mux.Use(s.applyAPI)
	mux.Get("/api/:version/:command", s.apiHandler)
	mux.Post("/api/:version/:command", s.apiHandler)
	mux.NotFound(s.apiInvalidHandler)
	mux.Compile()

	s.Server = httptest.NewTLSServer(mux)
	return s
}

// AddUser registers u with the pool and returns the API token for it.  The
// user's ID is assigned by the pool.
func (s *Server) AddUser(u User) (int64, string, error) {
	s.mu.Lock()
	u.ID = s.nextID
	s.nextID++
	s.users[u.ID] = &u
	s.mu.Unlock()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"loggedInAs": u.ID,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return 0, "", err
	}
	return u.ID, signed, nil
}

// User returns a copy of the user's current record.
func (s *Server) User(id int64) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

// FailRequests makes every following API request fail with the HTTP status
// code.  A zero status restores normal operation.
func (s *Server) FailRequests(status int) {
	s.mu.Lock()
	s.failStatus = status
	s.mu.Unlock()
}

// SetRawPurchaseInfo replaces the data of successful getpurchaseinfo
// responses.  A nil raw message restores normal operation.
func (s *Server) SetRawPurchaseInfo(raw json.RawMessage) {
	s.mu.Lock()
	s.rawPurchase = raw
	s.mu.Unlock()
}

// SetRawStats replaces the data of stats responses.  A nil raw message
// restores normal operation.
func (s *Server) SetRawStats(raw json.RawMessage) {
	s.mu.Lock()
	s.rawStats = raw
	s.mu.Unlock()
}

// Requests returns how many times command was requested.
func (s *Server) Requests(command string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount[command]
}

func (s *Server) applyFailures(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		status := s.failStatus
		s.mu.Unlock()
		if status != 0 {
			http.Error(w, http.StatusText(status), status)
			return
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

// applyAPI verifies the header's API token and ensures it belongs to a user.
func (s *Server) applyAPI(c *web.C, h http.Handler) http.Handler {
	fn := func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if strings.HasPrefix(authHeader, "Bearer ") {
			userID, err := s.validateToken(authHeader)
			if err == nil {
				s.mu.Lock()
				_, ok := s.users[userID]
				s.mu.Unlock()
				if ok {
					c.Env["APIUserID"] = userID
				}
			} else {
				c.Env["AuthErrorMessage"] = err.Error()
			}
		}
		h.ServeHTTP(w, r)
	}
	return http.HandlerFunc(fn)
}

func (s *Server) validateToken(authHeader string) (int64, error) {
	apitoken := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(apitoken, func(token *jwt.Token) (interface{}, error) {
		// validate signing algorithm
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return -1, fmt.Errorf("invalid token: %v", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return -1, errors.New("invalid token")
	}
	id, ok := claims["loggedInAs"].(float64)
	if !ok {
		return -1, errors.New("invalid token claims")
	}
	return int64(id), nil
}

func (s *Server) supportsVersion(version string) bool {
	if !strings.HasPrefix(version, "v") {
		return false
	}
	v, err := strconv.Atoi(version[1:])
	if err != nil {
		return false
	}
	for _, supported := range s.versions {
		if v == supported {
			return true
		}
	}
	return false
}

func (s *Server) apiHandler(c web.C, w http.ResponseWriter, r *http.Request) {
	version, command := c.URLParams["version"], c.URLParams["command"]
	if !s.supportsVersion(version) {
		s.apiInvalidHandler(w, r)
		return
	}

	s.mu.Lock()
	s.requestCount[command]++
	s.mu.Unlock()

	var code codes.Code
	var response, status string
	var data interface{}
	var err error

	switch r.Method {
	case http.MethodGet:
		switch command {
		case "getpurchaseinfo":
			data, code, response, err = s.purchaseInfo(c)
		case "stats":
			data, code, response, err = s.stats()
		default:
			s.apiInvalidHandler(w, r)
			return
		}
	case http.MethodPost:
		switch command {
		case "address":
			code, response, err = s.address(c, r)
		case "voting":
			if version == "v1" {
				s.apiInvalidHandler(w, r)
				return
			}
			code, response, err = s.voting(c, r)
		default:
			s.apiInvalidHandler(w, r)
			return
		}
	}

	if err != nil {
		status = "error"
		response = response + " - " + err.Error()
	} else {
		status = "success"
	}
	writeAPIResponse(&apiResponse{status, code, response, data}, http.StatusOK, w)
}

func (s *Server) authenticatedUser(c web.C) (*User, bool) {
	id, ok := c.Env["APIUserID"].(int64)
	if !ok {
		return nil, false
	}
	u, ok := s.users[id]
	return u, ok
}

func (s *Server) address(c web.C, r *http.Request) (codes.Code, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.authenticatedUser(c)
	if !ok {
		return codes.Unauthenticated, "address error", errors.New("invalid api token")
	}
	if user.PubKeyAddr != "" {
		return codes.AlreadyExists, "address error", errors.New("address already submitted")
	}
	userPubKeyAddr := r.FormValue("UserPubKeyAddr")
	if len(userPubKeyAddr) < 40 {
		return codes.InvalidArgument, "address error", errors.New("address too short")
	}
	if len(userPubKeyAddr) > 65 {
		return codes.InvalidArgument, "address error", errors.New("address too long")
	}
	user.PubKeyAddr = userPubKeyAddr
	return codes.OK, "address successfully imported", nil
}

func (s *Server) voting(c web.C, r *http.Request) (codes.Code, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.authenticatedUser(c)
	if !ok {
		return codes.Unauthenticated, "voting error", errors.New("invalid api token")
	}
	vbi, err := strconv.ParseUint(r.FormValue("VoteBits"), 10, 16)
	if err != nil {
		return codes.InvalidArgument, "voting error", errors.New("unable to convert votebits to uint16")
	}
	userVoteBits := uint16(vbi)
	if !votebits.IsValid(s.agendas, userVoteBits) {
		return codes.InvalidArgument, "voting error", errors.New("votebits invalid for current agendas")
	}
	user.VoteBits = userVoteBits
	return codes.OK, "successfully updated voting preferences", nil
}

func (s *Server) purchaseInfo(c web.C) (interface{}, codes.Code, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.authenticatedUser(c)
	if !ok {
		return nil, codes.Unauthenticated, "purchaseinfo error", errors.New("invalid api token")
	}
	if user.PubKeyAddr == "" {
		return nil, codes.FailedPrecondition, "purchaseinfo error", errors.New("no address submitted")
	}
	if s.rawPurchase != nil {
		return s.rawPurchase, codes.OK, "purchaseinfo successfully retrieved", nil
	}
	return &poolapi.PurchaseInfo{
		PoolAddress:     user.FeeAddress,
		PoolFees:        s.poolFees,
		Script:          user.Script,
		TicketAddress:   user.TicketAddress,
		VoteBits:        user.VoteBits,
		VoteBitsVersion: user.VoteBitsVersion,
	}, codes.OK, "purchaseinfo successfully retrieved", nil
}

func (s *Server) stats() (interface{}, codes.Code, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rawStats != nil {
		return s.rawStats, codes.OK, "stats successfully retrieved", nil
	}
	fees, _ := s.poolFees.Float64()
	return &poolapi.Stats{
		APIVersionsSupported: s.versions,
		Network:              s.network,
		PoolFees:             fees,
		PoolStatus:           "Open",
		UserCount:            int64(len(s.users)),
	}, codes.OK, "stats successfully retrieved", nil
}

// apiInvalidHandler responds to invalid requests.
func (s *Server) apiInvalidHandler(w http.ResponseWriter, _ *http.Request) {
	resp := &apiResponse{Status: "error",
		Code:    codes.InvalidArgument,
		Message: "invalid API command or version",
	}
	writeAPIResponse(resp, http.StatusNotFound, w)
}

// writeAPIResponse marshals resp into w and sets the HTTP status code.
func writeAPIResponse(resp *apiResponse, code int, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	// The client may already be gone.
	_ = json.NewEncoder(w).Encode(resp)
}
