package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/accountd/internal/models"
)

// Store is the persistence port for users and their verification tokens.
type Store interface {
	FindUserByID(ctx context.Context, id string) (*models.User, error)
	FindUserForUpdate(ctx context.Context, id string) (*models.User, error)
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UserExists(ctx context.Context, username, email string) (bool, error)
	CreateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, id string) error
	UpdatePassword(ctx context.Context, userID, hash string) error
	MarkEmailVerified(ctx context.Context, userID string) (bool, error)

	CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error
	FindVerificationToken(ctx context.Context, value string) (*models.VerificationToken, error)
	ListVerificationTokens(ctx context.Context, userID string) ([]models.VerificationToken, error)
	DeleteVerificationToken(ctx context.Context, id string) error
	DeleteVerificationTokens(ctx context.Context, userID string) (int64, error)
	PruneVerificationTokens(ctx context.Context, olderThan time.Time) (int64, error)

	// WithTx runs fn inside a single transaction. fn must only use the Store it receives.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// GormStore implements Store on top of gorm.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// New constructs a GormStore.
func New(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("store: db is required")
	}
	return &GormStore{db: db}, nil
}

// DB exposes the underlying handle for health probes.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

func (s *GormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(s.db.WithContext(ctx), "id = ?", id)
}

// FindUserForUpdate loads a user and takes a row lock on dialects that support one.
// SQLite serialises writers at the database level, so no lock clause is added there.
func (s *GormStore) FindUserForUpdate(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(s.locking(ctx), "id = ?", id)
}

func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.findUser(s.db.WithContext(ctx), "normalized_username = ?", models.NormalizeKey(username))
}

func (s *GormStore) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(s.db.WithContext(ctx), "normalized_email = ?", models.NormalizeKey(email))
}

func (s *GormStore) findUser(db *gorm.DB, query string, arg any) (*models.User, error) {
	var user models.User
	if err := db.Where(query, arg).Take(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *GormStore) UserExists(ctx context.Context, username, email string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("normalized_username = ? OR normalized_email = ?", models.NormalizeKey(username), models.NormalizeKey(email)).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: check user exists: %w", err)
	}
	return count > 0, nil
}

// CreateUser inserts the user together with any attached verification tokens.
func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("store: user is required")
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("store: create user: %w", translate(err))
	}
	return nil
}

// DeleteUser removes a user and its verification tokens.
func (s *GormStore) DeleteUser(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		if err := db.Where("user_id = ?", id).Delete(&models.VerificationToken{}).Error; err != nil {
			return err
		}
		result := db.Where("id = ?", id).Delete(&models.User{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("store: delete user: %w", err)
	}
	return nil
}

func (s *GormStore) UpdatePassword(ctx context.Context, userID, hash string) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Update("password", hash)
	if result.Error != nil {
		return fmt.Errorf("store: update password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkEmailVerified flips email_verified from false to true. It reports whether this
// call performed the transition, which makes it safe to race.
func (s *GormStore) MarkEmailVerified(ctx context.Context, userID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND email_verified = ?", userID, false).
		Update("email_verified", true)
	if result.Error != nil {
		return false, fmt.Errorf("store: mark verified: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) CreateVerificationToken(ctx context.Context, token *models.VerificationToken) error {
	if token == nil {
		return errors.New("store: verification token is required")
	}
	if err := s.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("store: create verification token: %w", translate(err))
	}
	return nil
}

func (s *GormStore) FindVerificationToken(ctx context.Context, value string) (*models.VerificationToken, error) {
	var token models.VerificationToken
	if err := s.locking(ctx).Where("token = ?", value).Take(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

// ListVerificationTokens returns a user's tokens oldest first.
func (s *GormStore) ListVerificationTokens(ctx context.Context, userID string) ([]models.VerificationToken, error) {
	var tokens []models.VerificationToken
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&tokens).Error
	if err != nil {
		return nil, fmt.Errorf("store: list verification tokens: %w", err)
	}
	return tokens, nil
}

func (s *GormStore) DeleteVerificationToken(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.VerificationToken{}).Error; err != nil {
		return fmt.Errorf("store: delete verification token: %w", err)
	}
	return nil
}

func (s *GormStore) DeleteVerificationTokens(ctx context.Context, userID string) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.VerificationToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("store: delete verification tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PruneVerificationTokens removes tokens that can no longer be used: every token owned by
// a verified user, and tokens created before olderThan that are not their owner's newest.
func (s *GormStore) PruneVerificationTokens(ctx context.Context, olderThan time.Time) (int64, error) {
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		verified := db.Model(&models.User{}).Select("id").Where("email_verified = ?", true)
		result := db.Where("user_id IN (?)", verified).Delete(&models.VerificationToken{})
		if result.Error != nil {
			return fmt.Errorf("delete tokens of verified users: %w", result.Error)
		}
		total += result.RowsAffected

		newer := db.Table("verification_tokens AS newer").
			Select("1").
			Where("newer.user_id = verification_tokens.user_id AND newer.created_at > verification_tokens.created_at")

		var ids []string
		err := db.Model(&models.VerificationToken{}).
			Where("verification_tokens.created_at < ?", olderThan).
			Where("EXISTS (?)", newer).
			Pluck("verification_tokens.id", &ids).Error
		if err != nil {
			return fmt.Errorf("find superseded tokens: %w", err)
		}
		if len(ids) == 0 {
			return nil
		}

		result = db.Where("id IN ?", ids).Delete(&models.VerificationToken{})
		if result.Error != nil {
			return fmt.Errorf("delete superseded tokens: %w", result.Error)
		}
		total += result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: prune verification tokens: %w", err)
	}
	return total, nil
}

func (s *GormStore) locking(ctx context.Context) *gorm.DB {
	db := s.db.WithContext(ctx)
	if db.Dialector.Name() == "sqlite" {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}
