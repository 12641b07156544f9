// Package httpapi maps the wire contracts onto Engine operations. It is a
// thin routing layer: all semantics live in the engine, this package only
// decodes requests, loads the tenant app, and translates sentinel errors
// into status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/emberauth/emberauth"
	"github.com/emberauth/emberauth/notify"
)

// Server exposes the engine over HTTP.
type Server struct {
	engine *emberauth.Engine
	logger *zap.Logger
}

// New constructs the HTTP surface. A nil logger falls back to a no-op.
func New(engine *emberauth.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{engine: engine, logger: logger}
}

// Routes builds the request mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /otp/request/{app_id}", s.handleOTPRequest)
	mux.HandleFunc("POST /otp/confirm/{app_id}", s.handleOTPConfirm)
	mux.HandleFunc("POST /magic/request/{app_id}", s.handleMagicRequest)
	mux.HandleFunc("GET /magic/confirm/{app_id}", s.handleMagicConfirm)
	mux.HandleFunc("POST /token/verify/{app_id}", s.handleTokenVerify)
	mux.HandleFunc("POST /token/refresh/{app_id}", s.handleTokenRefresh)
	mux.HandleFunc("POST /token/revoke/{app_id}", s.handleTokenRevoke)
	mux.HandleFunc("POST /token/revoke_all/{app_id}", s.handleTokenRevokeAll)
	mux.HandleFunc("GET /app/{app_id}", s.handleAppInfo)
	mux.HandleFunc("GET /app/{app_id}/public_key", s.handleAppPublicKey)

	return mux
}

type emailRequest struct {
	Email string `json:"email"`
}

type otpConfirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type verifyRequest struct {
	IDToken string `json:"idToken"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ackResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) loadApp(w http.ResponseWriter, r *http.Request) (*emberauth.App, bool) {
	app, err := s.engine.App(r.Context(), r.PathValue("app_id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return app, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps engine sentinels onto status codes. Authentication
// failures share one message so the API never explains which check failed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, emberauth.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, emberauth.ErrChallengeInvalid),
		errors.Is(err, emberauth.ErrTokenVerification):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication failed"})
	case errors.Is(err, emberauth.ErrTokenCreation):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "operation not enabled for this app"})
	case errors.Is(err, emberauth.ErrQuotaExhausted),
		errors.Is(err, emberauth.ErrSecretStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"})
	case errors.Is(err, notify.ErrDelivery):
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "delivery failed"})
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.engine.StartOTP(r.Context(), app, req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Message: "Check your email for a login code"})
}

func (s *Server) handleOTPConfirm(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}
	var req otpConfirmRequest
	if !decode(w, r, &req) {
		return
	}

	tokens, err := s.engine.ConfirmOTP(r.Context(), app, req.Email, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleMagicRequest(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.engine.StartMagicLink(r.Context(), app, req.Email); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Message: "Check your email for a sign in link"})
}

// handleMagicConfirm completes the link flow in the user's browser: success
// redirects to the app with tokens appended, failure redirects to the app's
// failure URL when one is configured.
func (s *Server) handleMagicConfirm(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	result, err := s.engine.ConfirmMagicLink(r.Context(), app, query.Get("id"), query.Get("secret"))
	if err != nil {
		if app.FailureRedirectURL != "" {
			http.Redirect(w, r, app.FailureRedirectURL, http.StatusFound)
			return
		}
		s.writeError(w, r, err)
		return
	}

	target, err := url.Parse(app.RedirectURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	params := target.Query()
	params.Set("idToken", result.Tokens.IDToken)
	if result.Tokens.RefreshToken != "" {
		params.Set("refreshToken", result.Tokens.RefreshToken)
	}
	target.RawQuery = params.Encode()

	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) handleTokenVerify(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}

	verified, err := s.engine.Verify(r.Context(), app, req.IDToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verified)
}

func (s *Server) handleTokenRefresh(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}

	tokens, err := s.engine.Refresh(r.Context(), app, req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokens)
}

// bearerSubject verifies the Authorization header's identity token and
// returns its subject. Revocation endpoints use it as proof the caller owns
// the subject being revoked.
func (s *Server) bearerSubject(r *http.Request, app *emberauth.App) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", emberauth.ErrTokenVerification
	}

	verified, err := s.engine.Verify(r.Context(), app, token)
	if err != nil {
		return "", err
	}
	return verified.Claims.Subject, nil
}

func (s *Server) handleTokenRevoke(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}
	subject, err := s.bearerSubject(r, app)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req refreshRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.engine.Revoke(r.Context(), app, req.RefreshToken, subject); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTokenRevokeAll(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}
	subject, err := s.bearerSubject(r, app)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.engine.RevokeAll(r.Context(), app, subject); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type appInfoResponse struct {
	AppID       string `json:"appId"`
	Name        string `json:"name"`
	RedirectURL string `json:"redirectUrl"`
}

func (s *Server) handleAppInfo(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, appInfoResponse{
		AppID:       app.ID,
		Name:        app.Name,
		RedirectURL: app.RedirectURL,
	})
}

func (s *Server) handleAppPublicKey(w http.ResponseWriter, r *http.Request) {
	app, ok := s.loadApp(w, r)
	if !ok {
		return
	}
	jwk, err := s.engine.PublicKey(app)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jwk)
}
