package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
	"golekquiz-service/internal/domain"
)

// Constraint names from the migrations, mapped to domain errors.
const (
	openPinConstraint          = "game_sessions_open_pin_key"
	nicknameConstraint         = "game_participants_nickname_key"
	participantQuestionUnique  = "game_responses_participant_question_key"
	participantSessionFKey     = "game_participants_session_id_fkey"
	responseParticipantFKey    = "game_responses_participant_id_fkey"
	receiptMessageFKey         = "chat_read_receipts_message_id_fkey"
	pgUniqueViolationSQLState  = "23505"
	pgForeignKeyViolationState = "23503"
)

// Store persists sessions, participants, responses and chat in Postgres through bun.
// Uniqueness and the status compare-and-swap are enforced by the database.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	if _, err := s.db.NewInsert().Model(newSessionRow(session)).Exec(ctx); err != nil {
		return mapError(err, "insert session")
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).Where("gs.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	return row.domain(), nil
}

func (s *Store) GetSessionByPin(ctx context.Context, pin string) (domain.Session, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).
		Where("gs.game_pin = ?", pin).
		Where("gs.status <> ?", string(domain.StatusFinished)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session by pin: %w", err)
	}
	return row.domain(), nil
}

func (s *Store) ListOpenSessions(ctx context.Context) ([]domain.Session, error) {
	var rows []sessionRow
	err := s.db.NewSelect().Model(&rows).
		Where("gs.status <> ?", string(domain.StatusFinished)).
		Order("gs.created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open sessions: %w", err)
	}
	sessions := make([]domain.Session, len(rows))
	for i := range rows {
		sessions[i] = rows[i].domain()
	}
	return sessions, nil
}

func (s *Store) UpdateSession(ctx context.Context, session domain.Session, expected domain.SessionStatus) (bool, error) {
	res, err := s.db.NewUpdate().Model(newSessionRow(session)).
		Column("status", "current_question_index", "countdown_started_at", "started_at",
			"ended_at", "total_time_minutes", "finalized_at").
		WherePK().
		Where("status = ?", string(expected)).
		Exec(ctx)
	if err != nil {
		return false, mapError(err, "update session")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update session: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	exists, err := s.db.NewSelect().Model((*sessionRow)(nil)).Where("gs.id = ?", session.ID).Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	if !exists {
		return false, domain.ErrSessionNotFound
	}
	return false, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*sessionRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, participant domain.Participant) error {
	participant.Score = 0
	if _, err := s.db.NewInsert().Model(newParticipantRow(participant)).Exec(ctx); err != nil {
		return mapError(err, "insert participant")
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	return getParticipant(ctx, s.db, id)
}

func getParticipant(ctx context.Context, db bun.IDB, id string) (domain.Participant, error) {
	row := new(participantRow)
	err := db.NewSelect().Model(row).Where("gp.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return row.domain(), nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().Model(&rows).
		Where("gp.session_id = ?", sessionID).
		Order("gp.joined_at ASC", "gp.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	participants := make([]domain.Participant, len(rows))
	for i := range rows {
		participants[i] = rows[i].domain()
	}
	return participants, nil
}

// MutateParticipant applies apply to the participant row under SELECT ... FOR
// UPDATE, so concurrent writers on any instance queue behind each other.
func (s *Store) MutateParticipant(ctx context.Context, id string, apply func(*domain.Participant) error) (domain.Participant, error) {
	var updated domain.Participant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		participant, err := lockParticipant(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := apply(&participant); err != nil {
			return err
		}
		if err := updateCounters(ctx, tx, participant); err != nil {
			return err
		}
		updated, err = getParticipant(ctx, tx, id)
		return err
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return updated, nil
}

func lockParticipant(ctx context.Context, tx bun.Tx, id string) (domain.Participant, error) {
	row := new(participantRow)
	err := tx.NewSelect().Model(row).Where("gp.id = ?", id).For("UPDATE").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("lock participant: %w", err)
	}
	return row.domain(), nil
}

func updateCounters(ctx context.Context, db bun.IDB, participant domain.Participant) error {
	res, err := db.NewUpdate().Model(newParticipantRow(participant)).
		Column(counterColumns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

func (s *Store) DeleteParticipant(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*participantRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete participant: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrParticipantNotFound
	}
	return nil
}

// RecordResponse locks the participant row, applies the counter update to it,
// inserts the response and recomputes the score in one transaction. The row
// lock is taken before the insert so the foreign key check never races it.
func (s *Store) RecordResponse(ctx context.Context, response domain.Response, apply func(*domain.Participant) error) (domain.Participant, error) {
	var updated domain.Participant
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		participant, err := lockParticipant(ctx, tx, response.ParticipantID)
		if err != nil {
			return err
		}
		if _, err := tx.NewInsert().Model(newResponseRow(response)).Exec(ctx); err != nil {
			return mapError(err, "insert response")
		}
		if apply != nil {
			if err := apply(&participant); err != nil {
				return err
			}
			if err := updateCounters(ctx, tx, participant); err != nil {
				return err
			}
		}
		if _, err := refreshScore(ctx, tx, response.ParticipantID); err != nil {
			return err
		}
		updated, err = getParticipant(ctx, tx, response.ParticipantID)
		return err
	})
	if err != nil {
		return domain.Participant{}, err
	}
	return updated, nil
}

func (s *Store) ListResponses(ctx context.Context, sessionID string) ([]domain.Response, error) {
	var rows []responseRow
	err := s.db.NewSelect().Model(&rows).
		Where("gr.session_id = ?", sessionID).
		Order("gr.created_at ASC", "gr.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	responses := make([]domain.Response, len(rows))
	for i := range rows {
		responses[i] = rows[i].domain()
	}
	return responses, nil
}

func (s *Store) SumPoints(ctx context.Context, participantID string) (int, error) {
	var sum int
	err := s.db.NewSelect().Model((*responseRow)(nil)).
		ColumnExpr("COALESCE(SUM(gr.points_earned), 0)").
		Where("gr.participant_id = ?", participantID).
		Scan(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("sum points: %w", err)
	}
	return sum, nil
}

func (s *Store) RefreshScore(ctx context.Context, participantID string) (int, error) {
	return refreshScore(ctx, s.db, participantID)
}

func refreshScore(ctx context.Context, db bun.IDB, participantID string) (int, error) {
	var score int
	res, err := db.NewUpdate().Model((*participantRow)(nil)).
		Set("score = (SELECT COALESCE(SUM(r.points_earned), 0) FROM game_responses AS r WHERE r.participant_id = ?)", participantID).
		Where("id = ?", participantID).
		Returning("score").
		Exec(ctx, &score)
	if err != nil {
		return 0, fmt.Errorf("refresh score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, domain.ErrParticipantNotFound
	}
	return score, nil
}

func (s *Store) AppendMessage(ctx context.Context, message domain.ChatMessage) (domain.ChatMessage, error) {
	row := &chatMessageRow{
		ID:          message.ID,
		SessionID:   message.SessionID,
		SenderID:    message.SenderID,
		Nickname:    message.Nickname,
		Message:     message.Message,
		IsImportant: message.IsImportant,
		CreatedAt:   message.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(row).Returning("seq").Exec(ctx); err != nil {
		return domain.ChatMessage{}, mapError(err, "insert chat message")
	}
	return row.domain(), nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (domain.ChatMessage, error) {
	row := new(chatMessageRow)
	err := s.db.NewSelect().Model(row).Where("cm.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ChatMessage{}, domain.ErrMessageNotFound
	}
	if err != nil {
		return domain.ChatMessage{}, fmt.Errorf("select chat message: %w", err)
	}
	return row.domain(), nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID string, before int64, limit int) ([]domain.ChatMessage, error) {
	var rows []chatMessageRow
	q := s.db.NewSelect().Model(&rows).
		Where("cm.session_id = ?", sessionID).
		Order("cm.seq DESC").
		Limit(limit)
	if before > 0 {
		q = q.Where("cm.seq < ?", before)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	messages := make([]domain.ChatMessage, len(rows))
	for i := range rows {
		messages[i] = rows[i].domain()
	}
	return messages, nil
}

func (s *Store) UpsertReceipt(ctx context.Context, receipt domain.ReadReceipt) (bool, error) {
	row := &readReceiptRow{MessageID: receipt.MessageID, UserID: receipt.UserID, ReadAt: receipt.ReadAt}
	res, err := s.db.NewInsert().Model(row).On("CONFLICT (message_id, user_id) DO NOTHING").Exec(ctx)
	if err != nil {
		return false, mapError(err, "insert read receipt")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert read receipt: %w", err)
	}
	return n == 1, nil
}

func (s *Store) ListReceipts(ctx context.Context, messageID string) ([]domain.ReadReceipt, error) {
	var rows []readReceiptRow
	err := s.db.NewSelect().Model(&rows).
		Where("cr.message_id = ?", messageID).
		Order("cr.read_at ASC", "cr.user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list read receipts: %w", err)
	}
	receipts := make([]domain.ReadReceipt, len(rows))
	for i, row := range rows {
		receipts[i] = domain.ReadReceipt{MessageID: row.MessageID, UserID: row.UserID, ReadAt: row.ReadAt}
	}
	return receipts, nil
}

// mapError turns constraint violations into domain errors and wraps the rest.
func mapError(err error, op string) error {
	var pgErr pgdriver.Error
	if !errors.As(err, &pgErr) || !pgErr.IntegrityViolation() {
		return fmt.Errorf("%s: %w", op, err)
	}
	switch pgErr.Field('C') {
	case pgUniqueViolationSQLState:
		switch pgErr.Field('n') {
		case openPinConstraint:
			return domain.ErrPinTaken
		case nicknameConstraint:
			return domain.ErrNicknameTaken
		case participantQuestionUnique:
			return domain.ErrDuplicateResponse
		}
	case pgForeignKeyViolationState:
		switch pgErr.Field('n') {
		case participantSessionFKey:
			return domain.ErrSessionNotFound
		case responseParticipantFKey:
			return domain.ErrParticipantNotFound
		case receiptMessageFKey:
			return domain.ErrMessageNotFound
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
