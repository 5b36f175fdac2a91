package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"shortly/pkg/logging"
	"shortly/pkg/metrics"
	"shortly/pkg/middleware"
	"shortly/pkg/service"
	"shortly/pkg/storage"
)

type Handler struct {
	links    *service.LinkService
	resolver *service.Resolver
	metrics  *metrics.Metrics
	logger   *logging.Logger
	baseURL  string
}

func NewHandler(links *service.LinkService, resolver *service.Resolver, m *metrics.Metrics, logger *logging.Logger, baseURL string) *Handler {
	return &Handler{
		links:    links,
		resolver: resolver,
		metrics:  m,
		logger:   logger,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}
}

type createLinkRequest struct {
	OriginalURL string     `json:"original_url"`
	CustomAlias *string    `json:"custom_alias,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Password    *string    `json:"password,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

type updateLinkRequest struct {
	OriginalURL *string    `json:"original_url,omitempty"`
	Title       *string    `json:"title,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

type linkView struct {
	ShortCode      string     `json:"short_code"`
	ShortURL       string     `json:"short_url"`
	OriginalURL    string     `json:"original_url"`
	Title          *string    `json:"title,omitempty"`
	Clicks         int64      `json:"clicks"`
	HasPassword    bool       `json:"has_password"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	IsActive       bool       `json:"is_active"`
	IsCustom       bool       `json:"is_custom"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
}

type pageView struct {
	Data       []linkView `json:"data"`
	Page       int        `json:"page"`
	Size       int        `json:"size"`
	Total      int64      `json:"total"`
	TotalPages int        `json:"total_pages"`
}

type errorResponse struct {
	Error            string `json:"error"`
	PasswordRequired bool   `json:"password_required,omitempty"`
}

func (h *Handler) view(l *storage.Link) linkView {
	return linkView{
		ShortCode:      l.ShortCode,
		ShortURL:       h.baseURL + "/r/" + l.ShortCode,
		OriginalURL:    l.OriginalURL,
		Title:          l.Title,
		Clicks:         l.Clicks,
		HasPassword:    l.HasPassword(),
		ExpiresAt:      l.ExpiresAt,
		IsActive:       l.IsActive,
		IsCustom:       l.IsCustom,
		CreatedAt:      l.CreatedAt,
		UpdatedAt:      l.UpdatedAt,
		LastAccessedAt: l.LastAccessedAt,
	}
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	if owner == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	var req createLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	link, err := h.links.Shorten(r.Context(), service.ShortenRequest{
		OwnerID:     owner,
		OriginalURL: req.OriginalURL,
		CustomAlias: req.CustomAlias,
		Title:       req.Title,
		Password:    req.Password,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.metrics.LinksCreatedTotal.Inc()
	writeJSON(w, http.StatusCreated, h.view(link))
}

func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	code := chi.URLParam(r, "code")

	link, err := h.links.GetLink(r.Context(), code, owner)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(link))
}

func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	if owner == uuid.Nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "authentication required"})
		return
	}

	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))

	result, err := h.links.ListLinks(r.Context(), owner, page, size, q.Get("sort_by"), q.Get("order"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	views := make([]linkView, 0, len(result.Links))
	for _, l := range result.Links {
		views = append(views, h.view(l))
	}
	writeJSON(w, http.StatusOK, pageView{
		Data:       views,
		Page:       result.Page,
		Size:       result.Size,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	})
}

func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	code := chi.URLParam(r, "code")

	var req updateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	link, err := h.links.UpdateLink(r.Context(), code, owner, service.UpdateRequest{
		OriginalURL: req.OriginalURL,
		Title:       req.Title,
		ExpiresAt:   req.ExpiresAt,
		IsActive:    req.IsActive,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(link))
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	owner := middleware.OwnerID(r.Context())
	code := chi.URLParam(r, "code")

	if err := h.links.DeleteLink(r.Context(), code, owner); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Redirect is the hot path. Password-protected links take the password from
// the query string or a form field.
func (h *Handler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	password := r.URL.Query().Get("password")
	if password == "" {
		password = r.PostFormValue("password")
	}

	destination, err := h.resolver.Resolve(r.Context(), code, password, service.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Referer:   r.Referer(),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	http.Redirect(w, r, destination, http.StatusFound)
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// writeError maps the service error taxonomy to transport status codes in
// one place.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	resp := errorResponse{}

	switch {
	case errors.Is(err, service.ErrLinkNotFound), errors.Is(err, service.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrLinkExpired):
		status = http.StatusGone
	case errors.Is(err, service.ErrShortCodeTaken):
		status = http.StatusConflict
	case errors.Is(err, service.ErrInvalidAlias), errors.Is(err, service.ErrInvalidURL):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrPasswordRequired):
		status = http.StatusUnauthorized
		resp.PasswordRequired = true
	case errors.Is(err, service.ErrInvalidPassword):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrLimitExceeded):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrUnavailable):
		status = http.StatusServiceUnavailable
		h.logger.Error(r.Context(), "dependency unavailable", "error", err)
	default:
		status = http.StatusInternalServerError
		h.logger.Error(r.Context(), "unhandled error", "error", err)
	}

	resp.Error = err.Error()
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.IndexByte(forwarded, ','); idx >= 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndexByte(ip, ':'); idx >= 0 {
		ip = ip[:idx]
	}
	return ip
}
