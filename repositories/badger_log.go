package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"chat-relay/domain"
	"chat-relay/errors"
)

// BadgerLog persists the message log in BadgerDB.
//
// Key layout:
//
//	msg:{message_id}                             -> message record
//	hist:{participant}:{timestamp_padded}:{id}   -> message_id
//	st:{message_id}:{timestamp_padded}:{id}      -> status record
//
// Timestamps use 19-digit zero padding so lexicographic order is
// chronological; the message id suffix disambiguates two writes landing on
// the same nanosecond. History reads are reverse prefix scans, so newest
// first comes for free.
type BadgerLog struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerLog(db *badger.DB, log *slog.Logger) *BadgerLog {
	return &BadgerLog{db: db, log: log}
}

func messageKey(id string) []byte {
	return []byte("msg:" + id)
}

func historyKey(participantID string, m domain.Message) []byte {
	return []byte(fmt.Sprintf("hist:%s:%019d:%s", participantID, m.CreatedAt.UnixNano(), m.ID))
}

func statusKey(e domain.StatusEvent) []byte {
	return []byte(fmt.Sprintf("st:%s:%019d:%s:%s", e.MessageID, e.At.UnixNano(), e.ParticipantID, e.Status))
}

func (l *BadgerLog) Append(message domain.Message) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(messageKey(message.ID))
		if err == nil {
			// Same identifier, already logged. Upsert is a no-op.
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		value, err := json.Marshal(fromMessage(message))
		if err != nil {
			return err
		}
		if err := txn.Set(messageKey(message.ID), value); err != nil {
			return err
		}
		if err := txn.Set(historyKey(message.SenderID, message), []byte(message.ID)); err != nil {
			return err
		}
		if message.ReceiverID != message.SenderID {
			if err := txn.Set(historyKey(message.ReceiverID, message), []byte(message.ID)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: append %s: %v", errors.ErrStorage, message.ID, err)
	}
	return nil
}

func (l *BadgerLog) AppendStatus(event domain.StatusEvent) error {
	err := l.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(messageKey(event.MessageID))
		if err == badger.ErrKeyNotFound {
			return errors.ErrReferential
		}
		if err != nil {
			return err
		}
		var record messageRecord
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		}); err != nil {
			return err
		}

		statusValue, err := json.Marshal(fromStatusEvent(event))
		if err != nil {
			return err
		}
		if err := txn.Set(statusKey(event), statusValue); err != nil {
			return err
		}

		record.UpdatedAt = event.At
		touched, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(messageKey(event.MessageID), touched)
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrReferential) {
			return fmt.Errorf("%w: %s", errors.ErrReferential, event.MessageID)
		}
		return fmt.Errorf("%w: append status %s: %v", errors.ErrStorage, event.MessageID, err)
	}
	return nil
}

func (l *BadgerLog) History(participantID string, limit int) ([]domain.Message, error) {
	var records []messageRecord
	err := l.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("hist:%s:", participantID))
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		// Seek past the newest possible timestamp, then walk backwards.
		seekKey := append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(records) == limit {
				break
			}
			var id []byte
			if err := it.Item().Value(func(value []byte) error {
				id = append(id, value...)
				return nil
			}); err != nil {
				return err
			}
			item, err := txn.Get(messageKey(string(id)))
			if err != nil {
				return err
			}
			var record messageRecord
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			}); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: history %s: %v", errors.ErrStorage, participantID, err)
	}
	return lo.Map(records, func(r messageRecord, _ int) domain.Message {
		return toMessage(r)
	}), nil
}

func (l *BadgerLog) Statuses(messageID string) ([]domain.StatusEvent, error) {
	var records []statusRecord
	err := l.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("st:%s:", messageID))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record statusRecord
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			}); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: statuses %s: %v", errors.ErrStorage, messageID, err)
	}
	return lo.Map(records, func(r statusRecord, _ int) domain.StatusEvent {
		return toStatusEvent(r)
	}), nil
}
