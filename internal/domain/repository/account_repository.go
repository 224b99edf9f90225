package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authgate/internal/common"
	"authgate/internal/domain/model"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	FindByID(ctx context.Context, id string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// FindByVerificationToken and FindByResetToken match a stored token digest
	// only while its expiry is still in the future.
	FindByVerificationToken(ctx context.Context, digest string, now time.Time) (*model.Account, error)
	FindByResetToken(ctx context.Context, digest string, now time.Time) (*model.Account, error)

	SetRefreshToken(ctx context.Context, id, token string) error
	ClearRefreshToken(ctx context.Context, id string) error
	// RotateRefreshToken swaps old for new only if old is still the stored
	// token; returns common.ErrNotFound when the compare fails.
	RotateRefreshToken(ctx context.Context, id, old, next string) error

	SetVerificationToken(ctx context.Context, id, digest string, expiry time.Time) error
	MarkEmailVerified(ctx context.Context, id string) error
	SetResetToken(ctx context.Context, id, digest string, expiry time.Time) error
	UpdatePassword(ctx context.Context, id, hashedPassword string) error
	// ResetPassword replaces the password hash, clears the reset token pair and
	// drops the stored refresh token so existing sessions cannot be refreshed.
	ResetPassword(ctx context.Context, id, hashedPassword string) error
}

type mongoAccountRepository struct {
	coll *mongo.Collection
}

func NewMongoAccountRepository(db *mongo.Database) AccountRepository {
	return &mongoAccountRepository{coll: db.Collection("accounts")}
}

// EnsureIndexes creates the unique indexes backing the username/email
// uniqueness invariant. Racing registrations are resolved here, not by the
// service's pre-check.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection("accounts").Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create account indexes: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) Create(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, account)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("account with given username or email already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("mongoAccountRepository.Create: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) findOne(ctx context.Context, op string, filter bson.M) (*model.Account, error) {
	account := &model.Account{}
	err := r.coll.FindOne(ctx, filter).Decode(account)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("mongoAccountRepository.%s: %w", op, err)
	}
	return account, nil
}

func (r *mongoAccountRepository) FindByID(ctx context.Context, id string) (*model.Account, error) {
	return r.findOne(ctx, "FindByID", bson.M{"_id": id})
}

func (r *mongoAccountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return r.findOne(ctx, "FindByEmail", bson.M{"email": email})
}

func (r *mongoAccountRepository) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	return r.findOne(ctx, "FindByUsername", bson.M{"username": username})
}

func (r *mongoAccountRepository) FindByVerificationToken(ctx context.Context, digest string, now time.Time) (*model.Account, error) {
	return r.findOne(ctx, "FindByVerificationToken", bson.M{
		"emailVerificationToken":  digest,
		"emailVerificationExpiry": bson.M{"$gt": now},
	})
}

func (r *mongoAccountRepository) FindByResetToken(ctx context.Context, digest string, now time.Time) (*model.Account, error) {
	return r.findOne(ctx, "FindByResetToken", bson.M{
		"forgotPasswordToken":  digest,
		"forgotPasswordExpiry": bson.M{"$gt": now},
	})
}

func (r *mongoAccountRepository) updateByID(ctx context.Context, op, id string, update bson.M) error {
	set, _ := update["$set"].(bson.M)
	if set == nil {
		set = bson.M{}
		update["$set"] = set
	}
	set["updatedAt"] = time.Now().UTC()

	res, err := r.coll.UpdateByID(ctx, id, update)
	if err != nil {
		return fmt.Errorf("mongoAccountRepository.%s: %w", op, err)
	}
	if res.MatchedCount == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *mongoAccountRepository) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.updateByID(ctx, "SetRefreshToken", id, bson.M{
		"$set": bson.M{"refreshToken": token},
	})
}

func (r *mongoAccountRepository) ClearRefreshToken(ctx context.Context, id string) error {
	// Idempotent: clearing an already-missing account or token is not an error.
	_, err := r.coll.UpdateByID(ctx, id, bson.M{
		"$unset": bson.M{"refreshToken": ""},
		"$set":   bson.M{"updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return fmt.Errorf("mongoAccountRepository.ClearRefreshToken: %w", err)
	}
	return nil
}

func (r *mongoAccountRepository) RotateRefreshToken(ctx context.Context, id, old, next string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "refreshToken": old},
		bson.M{"$set": bson.M{"refreshToken": next, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("mongoAccountRepository.RotateRefreshToken: %w", err)
	}
	if res.MatchedCount == 0 {
		// Presented token lost the compare-and-swap (already rotated, revoked,
		// or never issued).
		return common.ErrNotFound
	}
	return nil
}

func (r *mongoAccountRepository) SetVerificationToken(ctx context.Context, id, digest string, expiry time.Time) error {
	return r.updateByID(ctx, "SetVerificationToken", id, bson.M{
		"$set": bson.M{
			"emailVerificationToken":  digest,
			"emailVerificationExpiry": expiry,
		},
	})
}

func (r *mongoAccountRepository) MarkEmailVerified(ctx context.Context, id string) error {
	return r.updateByID(ctx, "MarkEmailVerified", id, bson.M{
		"$set":   bson.M{"isEmailVerified": true},
		"$unset": bson.M{"emailVerificationToken": "", "emailVerificationExpiry": ""},
	})
}

func (r *mongoAccountRepository) SetResetToken(ctx context.Context, id, digest string, expiry time.Time) error {
	return r.updateByID(ctx, "SetResetToken", id, bson.M{
		"$set": bson.M{
			"forgotPasswordToken":  digest,
			"forgotPasswordExpiry": expiry,
		},
	})
}

func (r *mongoAccountRepository) UpdatePassword(ctx context.Context, id, hashedPassword string) error {
	return r.updateByID(ctx, "UpdatePassword", id, bson.M{
		"$set": bson.M{"password": hashedPassword},
	})
}

func (r *mongoAccountRepository) ResetPassword(ctx context.Context, id, hashedPassword string) error {
	return r.updateByID(ctx, "ResetPassword", id, bson.M{
		"$set":   bson.M{"password": hashedPassword},
		"$unset": bson.M{"forgotPasswordToken": "", "forgotPasswordExpiry": "", "refreshToken": ""},
	})
}
