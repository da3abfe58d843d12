package repo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/db"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

type conversationRepository struct {
	mongoRepo *db.Repository[model.Conversation]
	logger    *zap.Logger
}

type ConversationRepository interface {
	Get(ctx context.Context, conversationID string) (*model.Conversation, error)
	ListForUser(ctx context.Context, userID string) ([]model.Conversation, error)
	Create(ctx context.Context, conv *model.Conversation) error
	TouchLastMessage(ctx context.Context, conversationID string, preview *model.LastMessage) error
}

func NewConversationRepository(repo *db.Repository[model.Conversation], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// Get fetches a conversation by ID; it returns (nil, nil) when absent.
func (r *conversationRepository) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	if conversationID == "" {
		return nil, ErrInvalidConversationID
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	conversation, err := r.mongoRepo.FindByID(ctx, conversationID)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			r.logger.Debug("conversation not found",
				zap.String("conversation_id", conversationID),
			)
			return nil, nil
		}
		r.logger.Error("failed to fetch conversation",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to fetch conversation: %w", err)
	}

	return conversation, nil
}

// ListForUser returns the user's conversations, most recently updated first.
func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Elem("participants", bson.M{"user_id": userID}).
		Build()
	opts := options.Find().SetSort(bson.M{"updated_at": -1})

	conversations, err := r.mongoRepo.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("failed to list conversations",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}

	r.logger.Debug("conversations retrieved",
		zap.String("user_id", userID),
		zap.Int("count", len(conversations)),
	)
	return conversations, nil
}

// Create inserts a new conversation document.
func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return ErrInvalidConversationID
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	if _, err := r.mongoRepo.Create(ctx, *conv); err != nil {
		r.logger.Error("failed to create conversation",
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

// TouchLastMessage refreshes the preview and recency after a message lands.
func (r *conversationRepository) TouchLastMessage(ctx context.Context, conversationID string, preview *model.LastMessage) error {
	if conversationID == "" {
		return ErrInvalidConversationID
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{
		"last_message": preview,
		"updated_at":   preview.SentAt,
	}
	if _, err := r.mongoRepo.Update(ctx, bson.M{"_id": conversationID}, update); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func (r *conversationRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
