package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/kolosafo/bookflow/internal/ai"
	"github.com/kolosafo/bookflow/internal/apperr"
	"github.com/kolosafo/bookflow/internal/auth"
	"github.com/kolosafo/bookflow/internal/email"
	"github.com/kolosafo/bookflow/internal/model"
	"github.com/kolosafo/bookflow/internal/plan"
	"github.com/kolosafo/bookflow/internal/store"
	"github.com/kolosafo/bookflow/internal/validate"
)

// testKeyBatchSize is how many fresh trial keys a rotation mints.
const testKeyBatchSize = 50

type VendorHandler struct {
	vendors  *store.VendorStore
	accounts *store.VendorAccountStore
	testKeys *store.TestKeyStore
	widget   *store.WidgetUsageStore
	rois     *store.ROIStore
	otps     *store.OTPStore
	ai       *ai.Client
	mailer   *email.Client
	issuer   *auth.Issuer
	logger   *slog.Logger
}

func NewVendorHandler(
	vendors *store.VendorStore,
	accounts *store.VendorAccountStore,
	testKeys *store.TestKeyStore,
	widget *store.WidgetUsageStore,
	rois *store.ROIStore,
	otps *store.OTPStore,
	aiClient *ai.Client,
	mailer *email.Client,
	issuer *auth.Issuer,
	logger *slog.Logger,
) *VendorHandler {
	return &VendorHandler{
		vendors:  vendors,
		accounts: accounts,
		testKeys: testKeys,
		widget:   widget,
		rois:     rois,
		otps:     otps,
		ai:       aiClient,
		mailer:   mailer,
		issuer:   issuer,
		logger:   logger,
	}
}

type roiRequest struct {
	BookTitle       string `json:"book_title" validate:"required"`
	Author          string `json:"author"`
	ReaderGoal      string `json:"reader_goal" validate:"required"`
	ReaderChallenge string `json:"reader_challenge" validate:"required"`
	AvailableTime   string `json:"available_time" validate:"required"`
}

// BookROI handles POST /api/vendor/book-rio/{vendor_id}. The vendor id in the
// path doubles as the API key.
func (h *VendorHandler) BookROI(w http.ResponseWriter, r *http.Request) {
	vendorID := r.PathValue("vendor_id")
	if vendorID == "" {
		writeError(w, h.logger, apperr.New(apperr.Authentication, "missing API key"))
		return
	}

	vendor, err := h.vendors.GetActive(vendorID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if vendor == nil {
		writeError(w, h.logger, apperr.New(apperr.Authorization, "unknown or inactive API key"))
		return
	}

	// Daily counters reset lazily, only when a request arrives on a new day.
	if err := h.vendors.ResetIfNewDay(vendor.ID, time.Now()); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ok, err := h.vendors.ReserveDailyUse(vendor.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"plan":        vendor.Plan,
			"daily_limit": vendor.DailyUsageLimit,
		}, "daily usage limit reached")
		return
	}

	var req roiRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	roi, err := h.scoreAndSave(r, req, &vendor.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, roi, "book value analysis")
}

// MissingKey answers gateway calls that omit the API key path segment.
func (h *VendorHandler) MissingKey(w http.ResponseWriter, r *http.Request) {
	writeError(w, h.logger, apperr.New(apperr.Authentication, "missing API key"))
}

type testBookValueRequest struct {
	TestKey         string `json:"test_key" validate:"required"`
	BookTitle       string `json:"book_title" validate:"required"`
	Author          string `json:"author"`
	ReaderGoal      string `json:"reader_goal" validate:"required"`
	ReaderChallenge string `json:"reader_challenge" validate:"required"`
	AvailableTime   string `json:"available_time" validate:"required"`
}

// TestBookValue handles POST /api/vendor/test-book-value. Trial keys bypass
// the vendor records entirely; they are gated by a per-key lifetime cap and
// a global per-day cap.
func (h *VendorHandler) TestBookValue(w http.ResponseWriter, r *http.Request) {
	var req testBookValueRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	key, err := h.testKeys.GetByKey(req.TestKey)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if key == nil || !key.IsActive {
		writeError(w, h.logger, apperr.New(apperr.Authentication, "invalid test key"))
		return
	}
	if key.UsageCount >= model.TestKeyMaxUses {
		writeError(w, h.logger, apperr.New(apperr.Authorization, "test key has no uses left"))
		return
	}

	ok, err := h.widget.ReserveUse(time.Now())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.RateLimit, "the trial service is at capacity today, try again tomorrow"))
		return
	}

	ok, err = h.testKeys.ReserveUse(req.TestKey)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if !ok {
		writeError(w, h.logger, apperr.New(apperr.Authorization, "test key has no uses left"))
		return
	}

	roi, err := h.scoreAndSave(r, roiRequest{
		BookTitle:       req.BookTitle,
		Author:          req.Author,
		ReaderGoal:      req.ReaderGoal,
		ReaderChallenge: req.ReaderChallenge,
		AvailableTime:   req.AvailableTime,
	}, nil)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"analysis":       roi,
		"remaining_uses": model.TestKeyMaxUses - key.UsageCount - 1,
	}, "trial book value analysis")
}

func (h *VendorHandler) scoreAndSave(r *http.Request, req roiRequest, vendorID *string) (*model.BookROI, error) {
	result, err := h.ai.ScoreROI(r.Context(), ai.ROIRequest{
		BookTitle:       req.BookTitle,
		Author:          req.Author,
		ReaderGoal:      req.ReaderGoal,
		ReaderChallenge: req.ReaderChallenge,
		AvailableTime:   req.AvailableTime,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Upstream, "book value analysis failed", err)
	}

	var author *string
	if req.Author != "" {
		author = &req.Author
	}
	roi, err := h.rois.Save(&model.BookROI{
		VendorID:              vendorID,
		BookTitle:             req.BookTitle,
		Author:                author,
		ReaderGoal:            req.ReaderGoal,
		ReaderChallenge:       req.ReaderChallenge,
		AvailableTime:         req.AvailableTime,
		ROIScore:              result.ROIScore,
		MatchReasoning:        result.MatchReasoning,
		RelevantTakeaways:     result.RelevantTakeaways,
		TimeAnalysis:          result.TimeAnalysis,
		EstimatedReadingHours: result.EstimatedReadingHours,
		Recommendation:        result.Recommendation,
	})
	if err != nil {
		return nil, err
	}
	return roi, nil
}

// ManageTestKeys handles POST /api/vendor/manage-test-keys (staff only).
// Exhausted keys are deleted and a fresh batch minted.
func (h *VendorHandler) ManageTestKeys(w http.ResponseWriter, r *http.Request) {
	deleted, created, err := h.testKeys.Rotate(testKeyBatchSize)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	keys := make([]string, 0, len(created))
	for _, k := range created {
		keys = append(keys, k.Key)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deleted": deleted,
		"created": keys,
	}, "test keys rotated")
}

// AssignTestKey handles POST /api/vendor/assign-test-key (staff only).
func (h *VendorHandler) AssignTestKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.testKeys.AssignNext()
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if key == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "no unassigned test keys left"))
		return
	}

	writeJSON(w, http.StatusOK, key, "test key assigned")
}

type vendorSignupRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	CompanyName string `json:"company_name" validate:"required"`
	WebsiteURL  string `json:"website_url" validate:"omitempty,url"`
}

// Signup handles POST /api/vendor/signup
func (h *VendorHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req vendorSignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	existing, err := h.accounts.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if existing != nil {
		writeError(w, h.logger, apperr.New(apperr.Conflict, "a vendor account with this email already exists"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	var website *string
	if req.WebsiteURL != "" {
		website = &req.WebsiteURL
	}
	account, err := h.accounts.Create(req.Email, hash, req.CompanyName, website)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	otp, err := h.otps.Issue(account.Email, model.PurposeEmailVerification)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	go func() {
		if err := h.mailer.SendVerificationCode(account.Email, otp.Code); err != nil {
			h.logger.Error("send vendor verification email", "error", err)
		}
	}()

	writeJSON(w, http.StatusCreated, account, "vendor account created, verification code sent")
}

type vendorVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required"`
}

// VerifyEmail handles POST /api/vendor/verify-email. Verification is what
// creates the API vendor record; the returned id is the API key.
func (h *VendorHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req vendorVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	account, err := h.accounts.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if account == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "vendor account not found"))
		return
	}
	if account.Status == model.StatusActivated {
		writeJSON(w, http.StatusOK, map[string]any{"api_key": account.VendorID}, "email already verified")
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

	dailyLimit, err := plan.VendorDailyLimit(plan.VendorFree)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	vendor, err := h.vendors.Create(account.CompanyName, account.Email, plan.VendorFree, dailyLimit)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.accounts.Activate(account.ID, vendor.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"api_key": vendor.ID}, "email verified")
}

type vendorSigninRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Signin handles POST /api/vendor/signin
func (h *VendorHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req vendorSigninRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	account, err := h.accounts.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if account == nil || !auth.CheckPassword(account.PasswordHash, req.Password) {
		writeError(w, h.logger, apperr.New(apperr.Authentication, "invalid email or password"))
		return
	}
	if account.Status == model.StatusNotActivated {
		writeError(w, h.logger, apperr.New(apperr.Authorization, "email not verified"))
		return
	}
	if account.Status == model.StatusSuspended || !account.IsActive {
		writeError(w, h.logger, apperr.New(apperr.Authorization, "account is suspended"))
		return
	}

	pair, err := h.issuer.IssueVendorPair(account)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"account": account,
		"refresh": pair.Refresh,
		"access":  pair.Access,
	}, "signin successful")
}

type vendorResendOTPRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ResendOTP handles POST /api/vendor/resend-otp
func (h *VendorHandler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req vendorResendOTPRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields, ok := validate.Struct(req); !ok {
		writeFieldErrors(w, fields)
		return
	}

	account, err := h.accounts.GetByEmail(req.Email)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if account == nil {
		writeError(w, h.logger, apperr.New(apperr.NotFound, "vendor account not found"))
		return
	}

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
			h.logger.Error("resend vendor verification email", "error", err)
		}
	}()

	writeJSON(w, http.StatusOK, nil, "verification code sent")
}
