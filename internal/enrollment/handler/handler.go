// Package handler exposes the enrollment wizard over HTTP. Every route lives
// under the double-encoded branch prefix printed on the enrollment QR
// posters; session identity rides in the snapshot cookie, never in the URL.
package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Space2024/chitenv/internal/enrollment/models"
	"github.com/Space2024/chitenv/internal/enrollment/qr"
	"github.com/Space2024/chitenv/internal/enrollment/service"
	"github.com/Space2024/chitenv/internal/imaging"
	dErrors "github.com/Space2024/chitenv/pkg/domain-errors"
	"github.com/Space2024/chitenv/pkg/requestcontext"
)

// maxUploadBytes bounds photo uploads before compression.
const maxUploadBytes = 15 << 20

// Handler handles the wizard endpoints.
type Handler struct {
	svc    *service.Service
	logger *slog.Logger
}

// New creates the enrollment Handler.
func New(svc *service.Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the wizard routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/{branch}", func(r chi.Router) {
		r.Use(h.withBranch)
		r.Route("/session", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Put("/fields", h.handleUpdateFields)
			r.Post("/advance", h.handleAdvance)
			r.Post("/retreat", h.handleRetreat)
			r.Post("/submit", h.handleSubmit)
			r.Route("/photos/{slot}", func(r chi.Router) {
				r.Post("/", h.handleAttachPhoto)
				r.Post("/capture", h.handleCapturePhoto)
				r.Delete("/", h.handleRemovePhoto)
			})
			r.Post("/otp/verify", h.handleVerifyOTP)
			r.Post("/otp/resend", h.handleResendOTP)
			r.Get("/qr", h.handleQR)
		})
	})
}

// withBranch decodes the branch prefix and rejects malformed links before
// any session work happens.
func (h *Handler) withBranch(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		branch, err := DecodeBranch(chi.URLParam(r, "branch"))
		if err != nil {
			h.logger.WarnContext(r.Context(), "rejected branch link",
				"param", chi.URLParam(r, "branch"),
			)
			writeError(w, err)
			return
		}
		ctx := requestcontext.WithBranch(r.Context(), branch)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) *service.WizardSession {
	return h.svc.Resolve(w, r, requestcontext.Branch(r.Context()))
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess := h.resolve(w, r)
	h.svc.FlushPendingClear(w, sess)
	writeJSON(w, http.StatusOK, h.svc.View(r.Context(), sess))
}

type updateFieldsRequest struct {
	Fields map[string]string `json:"fields"`
}

type updateFieldsResponse struct {
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
	View        service.View      `json:"view"`
}

func (h *Handler) handleUpdateFields(w http.ResponseWriter, r *http.Request) {
	var req updateFieldsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Fields) == 0 {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sess := h.resolve(w, r)
	fieldErrors := h.svc.UpdateFields(r.Context(), w, sess, req.Fields)
	writeJSON(w, http.StatusOK, updateFieldsResponse{
		FieldErrors: fieldErrors,
		View:        h.svc.View(r.Context(), sess),
	})
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	sess := h.resolve(w, r)
	if err := h.svc.Advance(r.Context(), w, sess); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.View(r.Context(), sess))
}

func (h *Handler) handleRetreat(w http.ResponseWriter, r *http.Request) {
	sess := h.resolve(w, r)
	h.svc.Retreat(r.Context(), w, sess)
	writeJSON(w, http.StatusOK, h.svc.View(r.Context(), sess))
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess := h.resolve(w, r)
	if err := h.svc.Submit(r.Context(), w, sess); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.View(r.Context(), sess))
}

type attachPhotoResponse struct {
	Asset *models.ImageAsset `json:"asset"`
	View  service.View       `json:"view"`
}

// handleAttachPhoto accepts either a multipart upload with a "file" part or
// raw image bytes in the body.
func (h *Handler) handleAttachPhoto(w http.ResponseWriter, r *http.Request) {
	slot, err := models.ParsePhotoSlot(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := readImageBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	sess := h.resolve(w, r)
	asset, err := h.svc.AttachPhoto(r.Context(), w, sess, slot, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachPhotoResponse{
		Asset: asset,
		View:  h.svc.View(r.Context(), sess),
	})
}

type capturePhotoRequest struct {
	Facing string `json:"facing"`
}

func (h *Handler) handleCapturePhoto(w http.ResponseWriter, r *http.Request) {
	slot, err := models.ParsePhotoSlot(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, err)
		return
	}
	var req capturePhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	facing := imaging.Facing(req.Facing)
	if facing == "" {
		// Mobile devices front the selfie camera first.
		if requestcontext.DeviceMobile(r.Context()) {
			facing = imaging.FacingUser
		} else {
			facing = imaging.FacingEnvironment
		}
	}

	sess := h.resolve(w, r)
	asset, err := h.svc.CapturePhoto(r.Context(), w, sess, slot, facing)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, attachPhotoResponse{
		Asset: asset,
		View:  h.svc.View(r.Context(), sess),
	})
}

func (h *Handler) handleRemovePhoto(w http.ResponseWriter, r *http.Request) {
	slot, err := models.ParsePhotoSlot(chi.URLParam(r, "slot"))
	if err != nil {
		writeError(w, err)
		return
	}
	sess := h.resolve(w, r)
	if err := h.svc.RemovePhoto(r.Context(), w, sess, slot); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.View(r.Context(), sess))
}

type verifyOTPRequest struct {
	Code string `json:"code"`
}

type verifyOTPResponse struct {
	Verified bool         `json:"verified"`
	Pending  bool         `json:"pending,omitempty"`
	QR       *qr.Artifact `json:"qr,omitempty"`
	View     service.View `json:"view"`
}

// handleVerifyOTP verifies a complete code immediately. A partial code is
// recorded for the debounced auto-verify and acknowledged without a result.
func (h *Handler) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	sess := h.resolve(w, r)
	if len(req.Code) < 6 {
		h.svc.OfferOTP(sess, req.Code)
		writeJSON(w, http.StatusAccepted, verifyOTPResponse{
			Pending: true,
			View:    h.svc.View(r.Context(), sess),
		})
		return
	}

	verified, err := h.svc.VerifyOTP(r.Context(), w, sess, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := verifyOTPResponse{
		Verified: verified,
		View:     h.svc.View(r.Context(), sess),
	}
	if verified {
		// The snapshot cookie is cleared on success, so the artifact is
		// handed over in the same response it was issued in.
		if artifact, err := h.svc.QRArtifact(r.Context(), sess); err == nil {
			resp.QR = artifact
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	sess := h.resolve(w, r)
	if err := h.svc.ResendOTP(r.Context(), sess); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.View(r.Context(), sess))
}

func (h *Handler) handleQR(w http.ResponseWriter, r *http.Request) {
	sess := h.resolve(w, r)
	h.svc.FlushPendingClear(w, sess)
	artifact, err := h.svc.QRArtifact(r.Context(), sess)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

// readImageBody extracts photo bytes from a multipart "file" part or the raw
// request body.
func readImageBody(r *http.Request) ([]byte, error) {
	ct := r.Header.Get("Content-Type")
	if len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid upload")
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "missing file upload")
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
		if err != nil {
			return nil, dErrors.New(dErrors.CodeBadRequest, "invalid upload")
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil || len(data) == 0 {
		return nil, dErrors.New(dErrors.CodeBadRequest, "missing image data")
	}
	return data, nil
}
