package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pai-chat-client/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StateRow 是 chat_state 表中的一行，Key 取值为 KeyConversations 或 KeyActiveConversation。
type StateRow struct {
	Key       string         `gorm:"column:state_key;primaryKey;size:64"`
	Value     datatypes.JSON `gorm:"column:state_value;not null"`
	UpdatedAt time.Time
}

func (StateRow) TableName() string {
	return "chat_state"
}

type gormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository 基于 GORM（sqlite 或 mysql）创建仓库，并自动建表。
func NewGormConversationRepository(db *gorm.DB) (ConversationRepository, error) {
	if err := db.AutoMigrate(&StateRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chat_state: %w", err)
	}
	return &gormConversationRepository{db: db}, nil
}

func (r *gormConversationRepository) Load(ctx context.Context) (model.Conversations, string) {
	var rows []StateRow
	found := false
	var raw []byte
	active := ""
	readErr := r.db.WithContext(ctx).Find(&rows).Error
	for _, row := range rows {
		switch row.Key {
		case KeyConversations:
			raw = row.Value
			found = true
		case KeyActiveConversation:
			if err := json.Unmarshal(row.Value, &active); err != nil {
				active = ""
			}
		}
	}
	return healingLoad(ctx, "gorm", raw, found, readErr, active, func(ctx context.Context) error {
		return r.Save(ctx, model.Conversations{}, "")
	})
}

func (r *gormConversationRepository) Save(ctx context.Context, conversations model.Conversations, activeID string) error {
	data, err := encodeConversations(conversations)
	if err != nil {
		return persistErr("encode", err)
	}
	pointer, err := json.Marshal(activeID)
	if err != nil {
		return persistErr("encode", err)
	}
	rows := []StateRow{
		{Key: KeyConversations, Value: datatypes.JSON(data)},
		{Key: KeyActiveConversation, Value: datatypes.JSON(pointer)},
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "state_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"state_value", "updated_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return persistErr("gorm tx", err)
	}
	return nil
}

func (r *gormConversationRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
