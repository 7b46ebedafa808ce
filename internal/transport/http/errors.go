package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golekquiz-service/internal/domain"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorTable lists every client-visible domain error. Messages are shown to
// players as is.
var errorTable = []errorMapping{
	{domain.ErrSessionNotFound, http.StatusNotFound, "session_not_found", "Sesi tidak ditemukan"},
	{domain.ErrSessionClosed, http.StatusConflict, "session_closed", "Sesi sudah berakhir"},
	{domain.ErrNicknameTaken, http.StatusConflict, "nickname_taken", "Nama panggilan sudah dipakai, coba nama lain"},
	{domain.ErrDuplicateResponse, http.StatusConflict, "duplicate_response", "Kamu sudah menjawab pertanyaan ini"},
	{domain.ErrInvalidPin, http.StatusNotFound, "invalid_pin", "PIN permainan tidak valid"},
	{domain.ErrPinTaken, http.StatusServiceUnavailable, "pin_unavailable", "Gagal membuat PIN permainan, coba lagi"},
	{domain.ErrInvalidTransition, http.StatusConflict, "invalid_transition", "Aksi ini tidak bisa dilakukan sekarang"},
	{domain.ErrParticipantNotFound, http.StatusNotFound, "participant_not_found", "Peserta tidak ditemukan"},
	{domain.ErrParticipantGone, http.StatusGone, "participant_left", "Kamu sudah keluar dari sesi ini"},
	{domain.ErrQuizNotFound, http.StatusNotFound, "quiz_not_found", "Kuis tidak ditemukan"},
	{domain.ErrQuestionNotFound, http.StatusNotFound, "question_not_found", "Pertanyaan tidak ditemukan"},
	{domain.ErrAnswerNotFound, http.StatusNotFound, "answer_not_found", "Jawaban tidak ditemukan"},
	{domain.ErrNotHost, http.StatusForbidden, "not_host", "Hanya host yang dapat melakukan aksi ini"},
	{domain.ErrNotSubmarine, http.StatusConflict, "not_submarine", "Sesi ini tidak memakai mode kapal selam"},
	{domain.ErrInsufficientCharges, http.StatusConflict, "insufficient_charges", "Muatan api belum cukup"},
	{domain.ErrInvalidNickname, http.StatusBadRequest, "invalid_nickname", "Nama panggilan harus 1 sampai 32 karakter"},
	{domain.ErrInvalidMessage, http.StatusBadRequest, "invalid_message", "Pesan harus 1 sampai 500 karakter"},
	{domain.ErrMessageNotFound, http.StatusNotFound, "message_not_found", "Pesan tidak ditemukan"},
	{domain.ErrInvalidQuiz, http.StatusUnprocessableEntity, "invalid_quiz", "Isi kuis tidak valid"},
}

func classify(err error) errorMapping {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m
		}
	}
	return errorMapping{err: err, status: http.StatusInternalServerError, code: "internal", message: "Terjadi kesalahan, silakan coba lagi"}
}

func writeError(c *gin.Context, err error) {
	m := classify(err)
	if m.status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	c.AbortWithStatusJSON(m.status, errorResponse{Error: m.code, Message: m.message})
}

func badRequest(c *gin.Context, err error) {
	log.Debug().Err(err).Str("path", c.FullPath()).Msg("invalid request body")
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: "Permintaan tidak valid"})
}
