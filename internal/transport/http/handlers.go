package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golekquiz-service/internal/app"
	"golekquiz-service/internal/domain"
)

// participantTokenTTL outlives the longest game plus its lobby.
const participantTokenTTL = 12 * time.Hour

// Handler exposes the session coordinator and chat over REST.
type Handler struct {
	sessions *app.SessionService
	chat     *app.ChatService
	auth     *Authenticator
}

func NewHandler(sessions *app.SessionService, chat *app.ChatService, auth *Authenticator) *Handler {
	return &Handler{sessions: sessions, chat: chat, auth: auth}
}

type createSessionRequest struct {
	QuizID              string `json:"quizId" binding:"required"`
	GameMode            string `json:"gameMode" binding:"omitempty,oneof=classic submarine"`
	TotalTimeMinutes    int    `json:"totalTimeMinutes" binding:"min=0,max=600"`
	AllowJoinAfterStart bool   `json:"allowJoinAfterStart"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	session, err := h.sessions.CreateSession(c.Request.Context(), app.CreateSessionParams{
		QuizID:              req.QuizID,
		HostID:              currentUser(c),
		Mode:                domain.GameMode(req.GameMode),
		TotalTimeMinutes:    req.TotalTimeMinutes,
		AllowJoinAfterStart: req.AllowJoinAfterStart,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handler) GetSession(c *gin.Context) {
	snapshot, err := h.sessions.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *Handler) FindByPin(c *gin.Context) {
	session, err := h.sessions.FindByPin(c.Request.Context(), c.Param("pin"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	if err := h.sessions.DeleteSession(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) StartCountdown(c *gin.Context) {
	session, err := h.sessions.StartCountdown(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Activate lets the host start the game at once. Anyone else may only nudge a
// session whose countdown has already run out.
func (h *Handler) Activate(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	session, err := h.sessions.GetSession(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if user := currentUser(c); user != "" && user == session.HostID {
		session, err = h.sessions.Activate(ctx, id)
	} else {
		session, err = h.sessions.ActivateIfDue(ctx, id)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

// Finish ends the game for the host. Anyone else may only close a session
// whose time is up.
func (h *Handler) Finish(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	session, err := h.sessions.GetSession(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if user := currentUser(c); user != "" && user == session.HostID {
		session, err = h.sessions.EndSession(ctx, id, user)
	} else {
		session, err = h.sessions.FinishIfExpired(ctx, id)
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) AdvanceQuestion(c *gin.Context) {
	session, err := h.sessions.AdvanceQuestion(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (h *Handler) Leaderboard(c *gin.Context) {
	ranking, err := h.sessions.ComputeRank(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ranking": ranking})
}

type joinRequest struct {
	Pin      string `json:"pin" binding:"required"`
	Nickname string `json:"nickname" binding:"required"`
}

// joinResponse adds the participant credential to the joined participant.
type joinResponse struct {
	domain.Participant
	Token string `json:"token"`
}

func (h *Handler) Join(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	participant, err := h.sessions.JoinByPin(c.Request.Context(), req.Pin, req.Nickname, currentUser(c))
	if err != nil {
		writeError(c, err)
		return
	}
	token, err := h.auth.IssueParticipantToken(participant.ID, participant.SessionID, participantTokenTTL)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, joinResponse{Participant: participant, Token: token})
}

// actingParticipant resolves the participant the token speaks for and aborts
// with 403 when the token belongs to another session or another player than
// the one the request names.
func actingParticipant(c *gin.Context, sessionID, named string) (string, bool) {
	participantID, tokenSession := currentParticipant(c)
	if participantID == "" {
		abortUnauthorized(c, "Token peserta diperlukan, silakan gabung ke sesi")
		return "", false
	}
	if (sessionID != "" && tokenSession != sessionID) || (named != "" && named != participantID) {
		abortForbidden(c, "Kamu hanya bisa bertindak sebagai dirimu sendiri")
		return "", false
	}
	return participantID, true
}

func (h *Handler) Leave(c *gin.Context) {
	participantID, ok := actingParticipant(c, "", c.Param("id"))
	if !ok {
		return
	}
	if err := h.sessions.Leave(c.Request.Context(), participantID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Score(c *gin.Context) {
	id := c.Param("id")
	score, err := h.sessions.ComputeScore(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participantId": id, "score": score})
}

type answerRequest struct {
	ParticipantID  string `json:"participantId"`
	QuestionID     string `json:"questionId" binding:"required"`
	AnswerID       string `json:"answerId" binding:"required"`
	ResponseTimeMs int64  `json:"responseTimeMs" binding:"min=0"`
}

func (h *Handler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	participantID, ok := actingParticipant(c, c.Param("id"), req.ParticipantID)
	if !ok {
		return
	}
	outcome, err := h.sessions.SubmitAnswer(c.Request.Context(), app.SubmitAnswerParams{
		SessionID:      c.Param("id"),
		ParticipantID:  participantID,
		QuestionID:     req.QuestionID,
		AnswerID:       req.AnswerID,
		ResponseTimeMs: req.ResponseTimeMs,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, outcome)
}

type holdRequest struct {
	ParticipantID string `json:"participantId"`
	Progress      int    `json:"progress"`
}

func (h *Handler) Hold(c *gin.Context) {
	var req holdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	participantID, ok := actingParticipant(c, c.Param("id"), req.ParticipantID)
	if !ok {
		return
	}
	state, err := h.sessions.Hold(c.Request.Context(), app.HoldParams{
		SessionID:     c.Param("id"),
		ParticipantID: participantID,
		Progress:      req.Progress,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *Handler) ChatHistory(c *gin.Context) {
	before, err := strconv.ParseInt(c.DefaultQuery("before", "0"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		badRequest(c, err)
		return
	}
	page, err := h.chat.History(c.Request.Context(), c.Param("id"), before, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type chatRequest struct {
	Nickname    string `json:"nickname"`
	Message     string `json:"message" binding:"required"`
	IsImportant bool   `json:"isImportant"`
}

func (h *Handler) SendChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	// Signed-in users speak for themselves. Players speak through their
	// participant token under their stored nickname.
	sender, nickname := currentUser(c), req.Nickname
	if sender == "" {
		participantID, ok := actingParticipant(c, c.Param("id"), "")
		if !ok {
			return
		}
		participant, err := h.sessions.GetParticipant(ctx, participantID)
		if err != nil {
			writeError(c, err)
			return
		}
		sender, nickname = participant.ID, participant.Nickname
	}
	message, err := h.chat.Send(ctx, app.SendChatParams{
		SessionID:   c.Param("id"),
		SenderID:    sender,
		Nickname:    nickname,
		Message:     req.Message,
		IsImportant: req.IsImportant,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *Handler) MarkRead(c *gin.Context) {
	reader := currentUser(c)
	if reader == "" {
		participantID, ok := actingParticipant(c, "", "")
		if !ok {
			return
		}
		reader = participantID
	}
	if err := h.chat.MarkRead(c.Request.Context(), c.Param("messageId"), reader); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Receipts(c *gin.Context) {
	receipts, err := h.chat.Receipts(c.Request.Context(), c.Param("messageId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"receipts": receipts})
}
