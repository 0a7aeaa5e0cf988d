// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ChatMessage model (chat-on-report conversations).
//
// Functions:
//
//   - CreateChatMessage(ctx, db, researchID, userID, role, content) -> *domain.ChatMessage, error
//     Inserts a new message with UUID primary key and UTC timestamp.
//
//   - ListRecentChatMessages(ctx, db, researchID, limit) -> []domain.ChatMessage, error
//     Returns the newest limit messages of a conversation in chronological order.
//
//   - ListChatMessages(ctx, db, researchID) -> []domain.ChatMessage, error
//     Returns the full conversation, oldest first.
//
//   - CountUserChatMessages(ctx, db, researchID) -> (int64, error)
//     Counts the user-authored turns of a conversation.
//
// Usage:
//
//	msg, err := repo.CreateChatMessage(ctx, db, researchID, userID, "user", "Who is the biggest threat?")
//	if err != nil {
//	    // handle DB failure
//	}
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/shiporskip-backend/internal/domain"
)

// CreateChatMessage inserts a new message into the conversation attached to
// researchID. CreatedAt is set to UTC.
func CreateChatMessage(ctx context.Context, db *gorm.DB, researchID, userID, role, content string) (*domain.ChatMessage, error) {
	m := &domain.ChatMessage{
		ID:         uuid.NewString(),
		ResearchID: researchID,
		UserID:     userID,
		Role:       role,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit("Research").Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// ListRecentChatMessages returns at most limit of the newest messages for
// researchID, ordered oldest first so they can be replayed as history.
func ListRecentChatMessages(ctx context.Context, db *gorm.DB, researchID string, limit int) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("research_id = ?", researchID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ListChatMessages returns the whole conversation for researchID, oldest first.
func ListChatMessages(ctx context.Context, db *gorm.DB, researchID string) ([]domain.ChatMessage, error) {
	var out []domain.ChatMessage
	err := db.WithContext(ctx).
		Where("research_id = ?", researchID).
		Order("created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// CountUserChatMessages returns how many user-authored messages exist for
// researchID.
func CountUserChatMessages(ctx context.Context, db *gorm.DB, researchID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ChatMessage{}).
		Where("research_id = ? AND role = ?", researchID, "user").
		Count(&n).Error
	return n, err
}

// LockResearchForChat takes a write lock on the research row inside tx so
// concurrent sends on the same conversation are counted one at a time.
func LockResearchForChat(ctx context.Context, tx *gorm.DB, researchID string) error {
	return tx.WithContext(ctx).
		Model(&domain.Research{}).
		Where("id = ?", researchID).
		UpdateColumn("id", gorm.Expr("id")).Error
}
