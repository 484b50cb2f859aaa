package repositories

import (
	stderrors "errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"chat-relay/domain"
	"chat-relay/errors"
)

// ChatMessage mirrors the chat_messages table.
type ChatMessage struct {
	MessageID   string    `gorm:"column:message_id;primaryKey"`
	SenderID    string    `gorm:"column:sender_id;index"`
	SenderName  string    `gorm:"column:sender_name"`
	ReceiverID  string    `gorm:"column:receiver_id;index"`
	Content     string    `gorm:"column:content"`
	MessageType string    `gorm:"column:message_type;default:text"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (ChatMessage) TableName() string { return "chat_messages" }

// MessageStatus mirrors the message_status table. Append-only; the foreign
// key to chat_messages backs the referential check.
type MessageStatus struct {
	ID        uint         `gorm:"primaryKey;autoIncrement"`
	MessageID string       `gorm:"column:message_id;index"`
	Status    string       `gorm:"column:status"`
	Timestamp time.Time    `gorm:"column:timestamp"`
	UserID    string       `gorm:"column:user_id;index"`
	Message   *ChatMessage `gorm:"foreignKey:MessageID;references:MessageID"`
}

func (MessageStatus) TableName() string { return "message_status" }

// PostgresLog persists the message log in the relational store.
type PostgresLog struct {
	db *gorm.DB
}

// OpenPostgresLog connects and migrates the two tables.
func OpenPostgresLog(dsn string) (*PostgresLog, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", errors.ErrStorage, err)
	}
	if err := db.AutoMigrate(&ChatMessage{}, &MessageStatus{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %v", errors.ErrStorage, err)
	}
	return &PostgresLog{db: db}, nil
}

func NewPostgresLog(db *gorm.DB) *PostgresLog {
	return &PostgresLog{db: db}
}

func (l *PostgresLog) Append(message domain.Message) error {
	row := ChatMessage{
		MessageID:   message.ID,
		SenderID:    message.SenderID,
		SenderName:  message.SenderName,
		ReceiverID:  message.ReceiverID,
		Content:     message.Content,
		MessageType: message.Kind,
		CreatedAt:   message.CreatedAt,
		UpdatedAt:   message.UpdatedAt,
	}
	err := l.db.
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "message_id"}},
			DoNothing: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("%w: append %s: %v", errors.ErrStorage, message.ID, err)
	}
	return nil
}

func (l *PostgresLog) AppendStatus(event domain.StatusEvent) error {
	err := l.db.Transaction(func(tx *gorm.DB) error {
		var parent ChatMessage
		if err := tx.First(&parent, "message_id = ?", event.MessageID).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.ErrReferential
			}
			return err
		}
		row := MessageStatus{
			MessageID: event.MessageID,
			Status:    string(event.Status),
			Timestamp: event.At,
			UserID:    event.ParticipantID,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return tx.Model(&ChatMessage{}).
			Where("message_id = ?", event.MessageID).
			Update("updated_at", event.At).Error
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrReferential) {
			return fmt.Errorf("%w: %s", errors.ErrReferential, event.MessageID)
		}
		return fmt.Errorf("%w: append status %s: %v", errors.ErrStorage, event.MessageID, err)
	}
	return nil
}

func (l *PostgresLog) History(participantID string, limit int) ([]domain.Message, error) {
	query := l.db.
		Where("sender_id = ? OR receiver_id = ?", participantID, participantID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []ChatMessage
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("%w: history %s: %v", errors.ErrStorage, participantID, err)
	}
	return lo.Map(rows, func(row ChatMessage, _ int) domain.Message {
		return domain.Message{
			ID:         row.MessageID,
			SenderID:   row.SenderID,
			SenderName: row.SenderName,
			ReceiverID: row.ReceiverID,
			Content:    row.Content,
			Kind:       row.MessageType,
			CreatedAt:  row.CreatedAt,
			UpdatedAt:  row.UpdatedAt,
		}
	}), nil
}

func (l *PostgresLog) Statuses(messageID string) ([]domain.StatusEvent, error) {
	var rows []MessageStatus
	err := l.db.
		Where("message_id = ?", messageID).
		Order("timestamp ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: statuses %s: %v", errors.ErrStorage, messageID, err)
	}
	return lo.Map(rows, func(row MessageStatus, _ int) domain.StatusEvent {
		return domain.StatusEvent{
			MessageID:     row.MessageID,
			Status:        domain.Status(row.Status),
			ParticipantID: row.UserID,
			At:            row.Timestamp,
		}
	}), nil
}
