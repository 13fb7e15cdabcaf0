package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"job-relay/backend/app/dto"
	jwtutil "job-relay/backend/app/jwt"
	"job-relay/backend/app/services"
	"job-relay/backend/global"
)

type AuthController struct {
	Operators *services.OperatorService
	Signer    *jwtutil.Signer
}

func NewAuthController(operators *services.OperatorService, signer *jwtutil.Signer) *AuthController {
	return &AuthController{Operators: operators, Signer: signer}
}

// Login exchanges operator credentials for a bearer token.
// POST /auth/login {username, password}
func (c *AuthController) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}
	o, err := c.Operators.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		global.Logger.Error().Err(err).Str("username", req.Username).Msg("operator lookup")
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	token, err := c.Signer.Sign(o.Username, o.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}
	global.Logger.Info().Str("username", o.Username).Str("role", o.Role).Msg("operator logged in")
	writeJSON(w, http.StatusOK, dto.TokenResponse{AccessToken: token})
}

// CreateOperator adds an account. POST /admin/operators
func (c *AuthController) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateOperatorRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	if err := c.Operators.Create(req.Username, req.Password, req.Role); err != nil {
		if errors.Is(err, services.ErrOperatorExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListOperators GET /admin/operators
func (c *AuthController) ListOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := c.Operators.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	out := make([]dto.OperatorSummary, 0, len(ops))
	for _, o := range ops {
		out = append(out, dto.OperatorSummary{Username: o.Username, Role: o.Role})
	}
	writeJSON(w, http.StatusOK, out)
}
