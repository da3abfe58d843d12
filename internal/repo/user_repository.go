package repo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/db"
	"github.com/chenjeraimunyaradzi05-art/Ngurra-sub003/internal/model"
)

type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
}

type userRepository struct {
	mongoRepo *db.Repository[model.User]
}

func NewUserRepository(repo *db.Repository[model.User]) UserRepository {
	return &userRepository{
		mongoRepo: repo,
	}
}

func (r *userRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return r.mongoRepo.FindOne(ctx, bson.M{"user_id": userID})
}
