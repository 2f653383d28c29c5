package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"
	"strconv"
	"time"

	"cbt-exam-service/internal/app"
	"cbt-exam-service/internal/domain"
	"github.com/go-playground/validator/v10"
)

// SubmissionFile exposes the export log as a downloadable document.
type SubmissionFile interface {
	Bytes(ctx context.Context) ([]byte, error)
	ContentType() string
	FileName() string
}

type ExamHandler struct {
	service            *app.ExamService
	sessions           *SessionIssuer
	submissions        SubmissionFile
	adminKey           string
	usernameAsPassword bool
	validate           *validator.Validate
}

func NewExamHandler(service *app.ExamService, sessions *SessionIssuer, submissions SubmissionFile) *ExamHandler {
	return &ExamHandler{
		service:     service,
		sessions:    sessions,
		submissions: submissions,
		validate:    validator.New(),
	}
}

// WithAdminKey requires the X-Admin-Key header on admin routes. An empty key leaves them open.
func (h *ExamHandler) WithAdminKey(key string) *ExamHandler {
	h.adminKey = key
	return h
}

// WithUsernameAsPassword lets a quiz taker sign in with the username alone.
func (h *ExamHandler) WithUsernameAsPassword(enabled bool) *ExamHandler {
	h.usernameAsPassword = enabled
	return h
}

// Register mounts the exam routes on mux.
func (h *ExamHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("GET /exam", h.requireSession(h.Exam))
	mux.HandleFunc("POST /exam", h.requireSession(h.Submit))
	mux.HandleFunc("GET /admin/download-submissions", h.RequireAdmin(h.DownloadSubmissions))
}

type loginRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type examQuestion struct {
	ID      int64           `json:"id"`
	Text    string          `json:"text"`
	Options []domain.Option `json:"options"`
}

type examResponse struct {
	Questions []examQuestion `json:"questions"`
}

type submitRequest struct {
	Answers map[string]string `json:"answers" validate:"dive,keys,numeric,endkeys,max=8"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *ExamHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid login payload"})
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid login form"})
			return
		}
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	}
	if req.Password == "" && h.usernameAsPassword {
		req.Password = req.Username
	}
	if err := h.validate.Struct(req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	account, err := h.service.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) || errors.Is(err, domain.ErrInvalidCredentials) {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid username"})
			return
		}
		writeError(w, err)
		return
	}

	token, expires, err := h.sessions.Issue(account)
	if err != nil {
		log.Printf("issue session for %q: %v", account.Username, err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not start session"})
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Username: account.Username, ExpiresAt: expires})
}

// Exam lists the questions without their answer keys.
func (h *ExamHandler) Exam(w http.ResponseWriter, r *http.Request, session Session) {
	questions, err := h.service.StartExam(r.Context(), session.AccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := examResponse{Questions: make([]examQuestion, 0, len(questions))}
	for _, q := range questions {
		resp.Questions = append(resp.Questions, examQuestion{ID: q.ID, Text: q.Text, Options: q.Options()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Submit grades the attempt. A failed export is logged but the committed score is still returned.
func (h *ExamHandler) Submit(w http.ResponseWriter, r *http.Request, session Session) {
	answers, err := h.decodeAnswers(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	result, err := h.service.SubmitAttempt(r.Context(), session.AccountID, answers)
	if err != nil && !errors.Is(err, domain.ErrExportFailed) {
		writeError(w, err)
		return
	}
	if err != nil {
		log.Printf("submission by %q committed without export: %v", session.Username, err)
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ExamHandler) decodeAnswers(r *http.Request) (map[int64]string, error) {
	answers := make(map[int64]string)
	if isJSON(r) {
		var req submitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errors.New("invalid answers payload")
		}
		if err := h.validate.Struct(req); err != nil {
			return nil, err
		}
		for key, label := range req.Answers {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				return nil, errors.New("invalid question id " + strconv.Quote(key))
			}
			answers[id] = label
		}
		return answers, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, errors.New("invalid answers form")
	}
	for key, values := range r.PostForm {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil || len(values) == 0 {
			continue
		}
		answers[id] = values[0]
	}
	return answers, nil
}

func (h *ExamHandler) DownloadSubmissions(w http.ResponseWriter, r *http.Request) {
	data, err := h.submissions.Bytes(r.Context())
	if errors.Is(err, domain.ErrLogNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "No submissions file found yet."})
		return
	}
	if err != nil {
		log.Printf("read submissions: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "could not read submissions"})
		return
	}
	w.Header().Set("Content-Type", h.submissions.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": h.submissions.FileName()}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *ExamHandler) requireSession(next func(http.ResponseWriter, *http.Request, Session)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := h.sessions.FromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "please log in"})
			return
		}
		next(w, r, session)
	}
}

// RequireAdmin guards admin routes with the configured key.
func (h *ExamHandler) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminKey != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Admin-Key")), []byte(h.adminKey)) != 1 {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "admin key required"})
			return
		}
		next(w, r)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrAlreadyAttempted):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "You have already attempted the exam."})
	case errors.Is(err, domain.ErrAccountNotFound):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "please log in"})
	case errors.Is(err, domain.ErrStorageUnavailable):
		log.Printf("storage unavailable: %v", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "storage unavailable, please retry"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "request timed out, please retry"})
	default:
		log.Printf("unexpected error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
