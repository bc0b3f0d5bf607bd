package services

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/krshsl/mensetsu/backend/models"
)

const maxAudioUploadBytes = 25 << 20

type SessionEndpoints struct {
	sessions *SessionService
}

func NewSessionEndpoints(sessions *SessionService) *SessionEndpoints {
	return &SessionEndpoints{sessions: sessions}
}

type ProcessAnswerRequest struct {
	InterviewID string `json:"interviewId"`
	AnswerText  string `json:"answerText"`
}

// InterviewView is the camelCase shape the dashboard reads.
type InterviewView struct {
	ID                   string          `json:"id"`
	CreatedAt            string          `json:"createdAt"`
	Setup                map[string]any  `json:"setup"`
	Transcript           []models.Turn   `json:"transcript"`
	LastQuestion         string          `json:"lastQuestion"`
	LastQuestionAudioURL string          `json:"lastQuestionAudioUrl"`
	Mode                 string          `json:"mode"`
	SummaryReport        *models.Summary `json:"summaryReport"`
}

func newInterviewView(interview *models.Interview) InterviewView {
	return InterviewView{
		ID:                   interview.ID,
		CreatedAt:            interview.CreatedAt,
		Setup:                interview.Setup,
		Transcript:           interview.Transcript,
		LastQuestion:         interview.LastQuestion,
		LastQuestionAudioURL: interview.LastQuestionAudioURL,
		Mode:                 interview.Mode,
		SummaryReport:        interview.SummaryReport,
	}
}

func (e *SessionEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/interviews", func(r chi.Router) {
		r.Post("/start", e.StartHandler)
		r.Post("/process", e.ProcessAnswerHandler)
		r.Post("/process_audio", e.ProcessAudioHandler)
		r.Get("/", e.ListHandler)
		r.Get("/stats", e.StatsHandler)
		r.Delete("/clear", e.ClearHandler)
		r.Get("/{interviewID}", e.GetHandler)
		r.Post("/{interviewID}/finish", e.FinishHandler)
	})
	r.Post("/chat", e.ChatHandler)
}

// currentUser reads the id set by AuthService.Middleware.
func currentUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Not authenticated")
	}
	return userID, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}

func (e *SessionEndpoints) StartHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req StartRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := e.sessions.Start(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (e *SessionEndpoints) ProcessAnswerHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req ProcessAnswerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := e.sessions.ProcessAnswer(r.Context(), userID, req.InterviewID, req.AnswerText)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *SessionEndpoints) ProcessAudioHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUploadBytes)
	if err := r.ParseMultipartForm(maxAudioUploadBytes); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "Invalid multipart form")
		return
	}
	interviewID := strings.TrimSpace(r.FormValue("interviewId"))
	if interviewID == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "interviewId is required")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		slog.Error("Failed to read audio upload", "error", err)
		writeDetail(w, http.StatusBadRequest, "Failed to read audio")
		return
	}

	result, err := e.sessions.ProcessAudio(r.Context(), userID, interviewID, audio, header.Header.Get("Content-Type"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *SessionEndpoints) ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req ChatRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := e.sessions.Chat(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *SessionEndpoints) ListHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	interviews, err := e.sessions.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	views := make([]InterviewView, 0, len(interviews))
	for i := range interviews {
		views = append(views, newInterviewView(&interviews[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (e *SessionEndpoints) GetHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	interview, err := e.sessions.Get(r.Context(), userID, chi.URLParam(r, "interviewID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newInterviewView(interview))
}

func (e *SessionEndpoints) StatsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	stats, err := e.sessions.Stats(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (e *SessionEndpoints) FinishHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	summary, err := e.sessions.Finish(r.Context(), userID, chi.URLParam(r, "interviewID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (e *SessionEndpoints) ClearHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	message, err := e.sessions.Clear(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}
