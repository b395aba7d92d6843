package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/FACorreiaa/go-user-accounts/internal/api"
)

const credentialsErrorMsg = "Could not validate credentials"
const duplicateErrorMsg = "Username or Email already registered"

type AuthHandler struct {
	authService AuthService
	logger      *slog.Logger
}

func NewAuthHandler(authService AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		logger:      logger,
		authService: authService,
	}
}

// Register handles POST /register/. Missing fields yield a 422 with a
// field-level detail list; a username or email collision yields a flat 400.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Register"))

	var req api.RegisterRequest
	if err := api.DecodeJSONBody(w, r, &req); err != nil {
		l.WarnContext(ctx, "Failed to decode request", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if ve := validateRegisterRequest(&req); ve != nil {
		l.WarnContext(ctx, "Registration request failed validation")
		api.ValidationErrorResponse(w, r, ve)
		return
	}

	publicUser, err := h.authService.Register(ctx, req.Username, req.Email, req.FullName, req.Password)
	if err != nil {
		if errors.Is(err, api.ErrConflict) {
			api.ErrorResponse(w, r, http.StatusBadRequest, duplicateErrorMsg)
			return
		}
		l.ErrorContext(ctx, "Registration failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to register user")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, publicUser)
}

// Login handles POST /token. The body is form-encoded (password-grant shape):
// username=...&password=... Both failure causes share one generic 401.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := h.logger.With(slog.String("handler", "Login"))

	if err := r.ParseForm(); err != nil {
		l.WarnContext(ctx, "Failed to parse form body", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid form body")
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")

	ve := &api.ValidationError{}
	if username == "" {
		ve.Fields = append(ve.Fields, api.MissingField("username"))
	}
	if password == "" {
		ve.Fields = append(ve.Fields, api.MissingField("password"))
	}
	if len(ve.Fields) > 0 {
		api.ValidationErrorResponse(w, r, ve)
		return
	}

	token, err := h.authService.Login(ctx, username, password)
	if err != nil {
		if errors.Is(err, api.ErrUnauthenticated) {
			api.ErrorResponse(w, r, http.StatusUnauthorized, credentialsErrorMsg)
			return
		}
		l.ErrorContext(ctx, "Login failed", slog.Any("error", err))
		api.ErrorResponse(w, r, http.StatusInternalServerError, "Failed to log in")
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, api.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
	})
}

func validateRegisterRequest(req *api.RegisterRequest) *api.ValidationError {
	ve := &api.ValidationError{}
	if req.Username == "" {
		ve.Fields = append(ve.Fields, api.MissingField("username"))
	}
	if req.Email == "" {
		ve.Fields = append(ve.Fields, api.MissingField("email"))
	}
	if req.FullName == "" {
		ve.Fields = append(ve.Fields, api.MissingField("full_name"))
	}
	if req.Password == "" {
		ve.Fields = append(ve.Fields, api.MissingField("password"))
	}
	if len(ve.Fields) == 0 {
		return nil
	}
	return ve
}
