package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/db"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

var (
	ErrMaxRetriesExceeded    = errors.New("maximum retry attempts exceeded")
	ErrInvalidMessage        = errors.New("invalid message: message cannot be nil")
	ErrInvalidConversationID = errors.New("invalid conversation ID: cannot be empty")
	ErrOperationTimeout      = errors.New("operation timeout exceeded")
)

const (
	// Timeouts
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	// Retry configuration
	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	// History page size
	historyPageSize = 50
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

type MessageRepository interface {
	InsertMessage(ctx context.Context, msg *model.Message) error
	History(ctx context.Context, conversationID, before string) ([]model.Message, bool, error)
	UpdateStatus(ctx context.Context, conversationID, messageID string, status model.MessageStatus, at time.Time) error
	MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]string, error)
	CountUnread(ctx context.Context, conversationID, userID string) (int64, error)
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// InsertMessage
// -----------------------------------------------------------------------------

func (m *messageRepository) InsertMessage(ctx context.Context, msg *model.Message) error {
	if err := m.validateMessage(msg); err != nil {
		return err
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return err
			}
		}

		_, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			m.logger.Debug("message inserted",
				zap.String("message_id", msg.ID),
				zap.String("conversation_id", msg.ConversationID),
				zap.Int("attempt", attempt+1),
			)
			return nil
		}
		if mongo.IsDuplicateKeyError(err) {
			// Same id written twice (a retried send); the stored copy wins.
			m.logger.Debug("duplicate message insert ignored", zap.String("message_id", msg.ID))
			return nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_id", msg.ConversationID),
	)
	return fmt.Errorf("insert message failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

// History returns one page of a conversation's messages in ascending
// creation order. A non-empty before cursor (a message id) pages backwards
// from that message; hasMore reports whether older messages remain.
func (m *messageRepository) History(ctx context.Context, conversationID, before string) ([]model.Message, bool, error) {
	if conversationID == "" {
		return nil, false, ErrInvalidConversationID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_id", conversationID)
	if before != "" {
		anchor, err := m.mongoRepo.FindByID(ctx, before)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("resolve cursor %q: %w", before, err)
		}
		filter.Lt("created_at", anchor.CreatedAt)
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(historyPageSize + 1)

	page, err := m.mongoRepo.Find(ctx, filter.Build(), opts)
	if err != nil {
		return nil, false, m.handleReadError(err, conversationID)
	}

	hasMore := len(page) > historyPageSize
	if hasMore {
		page = page[:historyPageSize]
	}

	// Newest-first from the query; callers want oldest-first.
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}

	m.logger.Debug("history page",
		zap.String("conversation_id", conversationID),
		zap.Int("count", len(page)),
		zap.Bool("has_more", hasMore),
	)
	return page, hasMore, nil
}

// -----------------------------------------------------------------------------
// Status updates
// -----------------------------------------------------------------------------

// UpdateStatus advances one message's status. The filter refuses regressions
// for the read state, which is terminal.
func (m *messageRepository) UpdateStatus(ctx context.Context, conversationID, messageID string, status model.MessageStatus, at time.Time) error {
	if conversationID == "" {
		return ErrInvalidConversationID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{"status": status}
	switch status {
	case model.StatusDelivered:
		update["delivered_at"] = at
	case model.StatusRead:
		update["read_at"] = at
	}

	filter := db.NewFilter().
		Eq("_id", messageID).
		Eq("conversation_id", conversationID).
		Ne("status", model.StatusRead).
		Build()

	if _, err := m.mongoRepo.Update(ctx, filter, update); err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	return nil
}

// MarkConversationRead marks every message not sent by readerID as read and
// returns the ids of the messages affected, so receipts can be fanned out
// per message.
func (m *messageRepository) MarkConversationRead(ctx context.Context, conversationID, readerID string, at time.Time) ([]string, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_id", conversationID).
		Ne("sender_id", readerID).
		Ne("status", model.StatusRead).
		Build()

	unread, err := m.mongoRepo.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}
	if len(unread) == 0 {
		return nil, nil
	}

	if _, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{
		"status":  model.StatusRead,
		"read_at": at,
	}); err != nil {
		return nil, fmt.Errorf("mark conversation read: %w", err)
	}

	ids := make([]string, 0, len(unread))
	for i := range unread {
		ids = append(ids, unread[i].ID)
	}
	return ids, nil
}

// CountUnread counts messages in the conversation the user has not read.
func (m *messageRepository) CountUnread(ctx context.Context, conversationID, userID string) (int64, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_id", conversationID).
		Ne("sender_id", userID).
		Ne("status", model.StatusRead).
		Build()
	return m.mongoRepo.Count(ctx, filter)
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ConversationID == "" {
		return ErrInvalidConversationID
	}
	return nil
}

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	// Check for MongoDB transient errors
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return true
	}

	return false
}

func (m *messageRepository) handleReadError(err error, conversationID string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("conversation_id", conversationID))
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled", zap.String("conversation_id", conversationID))
		return err
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("conversation_id", conversationID))
	return fmt.Errorf("load history failed: %w", err)
}
