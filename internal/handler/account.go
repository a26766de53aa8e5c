package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kolosafo/bookflow/internal/apperr"
	"github.com/kolosafo/bookflow/internal/auth"
	"github.com/kolosafo/bookflow/internal/dispatch"
	"github.com/kolosafo/bookflow/internal/email"
	"github.com/kolosafo/bookflow/internal/model"
	"github.com/kolosafo/bookflow/internal/plan"
	"github.com/kolosafo/bookflow/internal/store"
	"github.com/kolosafo/bookflow/internal/validate"
)

// JobGrantFreeTrial is the dispatcher handler name for the post-verification
// trial grant.
const JobGrantFreeTrial = "grant_free_trial"

type AccountHandler struct {
	users      *store.UserStore
	usage      *store.UsageStore
	otps       *store.OTPStore
	support    *store.SupportStore
	mailer     *email.Client
	issuer     *auth.Issuer
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

func NewAccountHandler(
	users *store.UserStore,
	usage *store.UsageStore,
	otps *store.OTPStore,
	support *store.SupportStore,
	mailer *email.Client,
	issuer *auth.Issuer,
	dispatcher *dispatch.Dispatcher,
	logger *slog.Logger,
) *AccountHandler {
	return &AccountHandler{
		users:      users,
		usage:      usage,
		otps:       otps,
		support:    support,
		mailer:     mailer,
		issuer:     issuer,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

type registerRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	Password2 string `json:"password2" validate:"required"`
}

// Register handles POST /api/auth/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}
	if req.Password != req.Password2 {
		writeError(w, h.logger, apperr.New(apperr.Conflict, "passwords do not match"))
		return
	}

	existing, err := h.users.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing != nil {
		writeError(w, h.logger, apperr.New(apperr.Conflict, "an account with this email already exists"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.Create(req.Email, hash)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.usage.Create(user.ID, plan.Free); err != nil {
		writeError(w, h.logger, err)
		return
	}

	otp, err := h.otps.Issue(user.Email, model.PurposeEmailVerification)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	go func() {
		if err := h.mailer.SendVerificationCode(user.Email, otp.Code); err != nil {
			h.logger.Error("send verification email", "error", err)
		}
	}()

	pair, err := h.issuer.IssueUserPair(user)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":    user,
		"refresh": pair.Refresh,
		"access":  pair.Access,
	}, "account created, verification code sent")
}

type confirmEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

// ConfirmEmail handles POST /api/auth/confirm_email
func (h *AccountHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req confirmEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "account not found"))
		return
	}
	if user.Status == model.StatusActivated {
		// Re-confirming is a no-op; the outstanding code is left alone.
		writeJSON(w, http.StatusOK, map[string]any{"status": user.Status}, "email already verified")
		return
	}

	ok, err := h.otps.Validate(req.Email, req.Code, model.PurposeEmailVerification)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "invalid verification code"))
		return
	}

	if err := h.users.UpdateStatus(user.ID, model.StatusActivated); err != nil {
		writeError(w, h.logger, err)
		return
	}

	err = h.dispatcher.ScheduleOnce(
		"free-trial:"+user.ID, JobGrantFreeTrial,
		map[string]string{"user_id": user.ID}, 0,
	)
	if err != nil {
		h.logger.Error("schedule free trial grant", "user_id", user.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": model.StatusActivated}, "email verified")
}

type resendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendOTP handles POST /api/auth/resend_otp
func (h *AccountHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req resendOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "account not found"))
		return
	}

	// Only the most recent outstanding code is replaced.
	if err := h.otps.DeleteLatest(req.Email, model.PurposeEmailVerification); err != nil {
		writeError(w, h.logger, err)
		return
	}
	otp, err := h.otps.Issue(req.Email, model.PurposeEmailVerification)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	go func() {
		if err := h.mailer.SendVerificationCode(req.Email, otp.Code); err != nil {
			h.logger.Error("resend verification email", "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, nil, "verification code sent")
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"device_id"`
}

// Login handles POST /api/auth/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, h.logger, apperr.New(apperr.Authentication, "invalid email or password"))
		return
	}
	if user.Status == model.StatusBlocked || !user.IsActive {
		writeError(w, h.logger, apperr.New(apperr.Authorization, "account is blocked"))
		return
	}

	if req.DeviceID != "" {
		if err := h.users.UpdateDeviceID(user.ID, req.DeviceID); err != nil {
			h.logger.Error("update device id", "user_id", user.ID, "error", err)
		} else {
			user.DeviceID = &req.DeviceID
		}
	}

	pair, err := h.issuer.IssueUserPair(user)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":    user,
		"refresh": pair.Refresh,
		"access":  pair.Access,
	}, "login successful")
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ForgotPassword handles POST /api/auth/forgot_password
func (h *AccountHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "account not found"))
		return
	}
	if user.Status == model.StatusSuspended {
		writeError(w, h.logger, apperr.New(apperr.Validation, "account is suspended"))
		return
	}

	if err := h.otps.DeleteLatest(req.Email, model.PurposePasswordReset); err != nil {
		writeError(w, h.logger, err)
		return
	}
	otp, err := h.otps.Issue(req.Email, model.PurposePasswordReset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	go func() {
		if err := h.mailer.SendPasswordResetCode(req.Email, otp.Code); err != nil {
			h.logger.Error("send password reset email", "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, nil, "password reset code sent")
}

type resetPasswordRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Code      string `json:"code" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
	Password2 string `json:"password2" validate:"required"`
	DeviceID  string `json:"device_id"`
}

// ResetPassword handles POST /api/auth/reset_password
func (h *AccountHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}
	if req.Password != req.Password2 {
		writeError(w, h.logger, apperr.New(apperr.Validation, "passwords do not match"))
		return
	}

	user, err := h.users.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "account not found"))
		return
	}

	ok, err := h.otps.Validate(req.Email, req.Code, model.PurposePasswordReset)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.Validation, "invalid reset code"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var deviceID *string
	if req.DeviceID != "" {
		deviceID = &req.DeviceID
	}
	if err := h.users.UpdatePassword(user.ID, hash, deviceID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, nil, "password updated")
}

type deleteAccountRequest struct {
	Reason             string `json:"reason"`
	AdditionalFeedback string `json:"additional_feedback"`
}

// DeleteAccount handles DELETE /api/account
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req deleteAccountRequest
	// Feedback body is optional on deletion.
	_ = decodeBestEffort(r, &req)
	if req.Reason != "" {
		var additional *string
		if req.AdditionalFeedback != "" {
			additional = &req.AdditionalFeedback
		}
		if err := h.support.RecordDeleteFeedback(req.Reason, additional); err != nil {
			h.logger.Error("record delete feedback", "error", err)
		}
	}

	if err := h.users.Delete(userID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, nil, "account deleted")
}

type interestsRequest struct {
	Interests []string `json:"interests" validate:"required"`
}

// UpdateInterests handles PATCH /api/account/interests
func (h *AccountHandler) UpdateInterests(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req interestsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	if err := h.users.UpdateInterests(userID, req.Interests); err != nil {
		writeError(w, h.logger, err)
		return
	}
	user, err := h.users.GetByID(userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, user, "interests updated")
}

type notificationTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// UpdateNotificationToken handles PATCH /api/account/notification_token. The
// mobile client registers its Expo push token here after login.
func (h *AccountHandler) UpdateNotificationToken(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req notificationTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	if err := h.users.UpdateNotificationToken(userID, req.Token); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, nil, "notification token updated")
}

// Usage handles GET /api/account/usage
func (h *AccountHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	user, err := h.users.GetByID(userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if user == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "account not found"))
		return
	}
	usage, err := h.usage.Get(userID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	limits, err := plan.UserLimits(user.EffectiveSubscription())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"plan":      user.EffectiveSubscription(),
		"remaining": usage,
		"limits":    limits,
	}, "usage")
}

// GrantFreeTrialJob returns the dispatcher handler that activates the 30-day
// trial after email verification and sends the congratulation email.
func GrantFreeTrialJob(users *store.UserStore, mailer *email.Client, logger *slog.Logger) dispatch.HandlerFunc {
	return func(ctx context.Context, raw json.RawMessage) error {
		var args struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return fmt.Errorf("decode free trial args: %w", err)
		}
		user, err := users.GetByID(args.UserID)
		if err != nil {
			return err
		}
		if user == nil || user.FreeTrial {
			return nil
		}
		if err := users.GrantFreeTrial(user.ID, time.Now().AddDate(0, 0, 30)); err != nil {
			return err
		}
		if err := mailer.SendFreeTrialGranted(user.Email, user.Email); err != nil {
			logger.Error("send free trial email", "user_id", user.ID, "error", err)
		}
		return nil
	}
}
