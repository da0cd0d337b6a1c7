package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) ChatCreate(ctx context.Context, c *Chat) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// ChatGet fetches a non-archived chat owned by userID with its messages and
// events eagerly loaded, messages in creation order.
func (r *Repo) ChatGet(ctx context.Context, chatID, userID uint64) (*Chat, error) {
	var c Chat
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("messages.created_at ASC, messages.id ASC")
		}).
		Preload("Events").
		Where("id = ? AND user_id = ? AND is_archived = ?", chatID, userID, false).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ChatGetAll lists non-archived chats, newest activity first. A nil userID
// lists every user's chats (admin view).
func (r *Repo) ChatGetAll(ctx context.Context, userID *uint64, page, perPage int) ([]Chat, int64, error) {
	q := r.db.WithContext(ctx).Model(&Chat{}).Where("is_archived = ?", false)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var chats []Chat
	err := q.
		Order("updated_at DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&chats).Error
	if err != nil {
		return nil, 0, err
	}
	return chats, total, nil
}

// ChatCount counts every chat a user owns, archived ones included: the
// anonymous one-chat cap must survive archiving.
func (r *Repo) ChatCount(ctx context.Context, userID uint64) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&Chat{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ChatEditFields selects which chat columns ChatEdit updates; nil fields are
// left untouched.
type ChatEditFields struct {
	Title                *string
	IsArchived           *bool
	TotalRequestTokens   *int
	TotalResponseTokens  *int
	CurrentRequestTokens *int
	CurrentEventChance   *float64
	UpdatedAt            *time.Time
	EventIDs             []uint64
}

// ChatEdit updates a non-archived chat. EventIDs not yet attached to the
// chat are appended to its association; attached ones are ignored.
func (r *Repo) ChatEdit(ctx context.Context, chatID uint64, fields ChatEditFields) (*Chat, error) {
	var out *Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c Chat
		err := tx.Preload("Events").
			Where("id = ? AND is_archived = ?", chatID, false).
			First(&c).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		if err := applyChatEdit(tx, &c, fields); err != nil {
			return err
		}
		out = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyChatEdit(tx *gorm.DB, c *Chat, fields ChatEditFields) error {
	if fields.Title != nil {
		c.Title = *fields.Title
	}
	if fields.IsArchived != nil {
		c.IsArchived = *fields.IsArchived
	}
	if fields.TotalRequestTokens != nil {
		c.TotalRequestTokens = *fields.TotalRequestTokens
	}
	if fields.TotalResponseTokens != nil {
		c.TotalResponseTokens = *fields.TotalResponseTokens
	}
	if fields.CurrentRequestTokens != nil {
		c.CurrentRequestTokens = *fields.CurrentRequestTokens
	}
	if fields.CurrentEventChance != nil {
		c.CurrentEventChance = *fields.CurrentEventChance
	}
	if fields.UpdatedAt != nil {
		c.UpdatedAt = *fields.UpdatedAt
	}

	if len(fields.EventIDs) > 0 {
		attached := make(map[uint64]bool, len(c.Events))
		for _, e := range c.Events {
			attached[e.ID] = true
		}
		var missing []uint64
		for _, id := range fields.EventIDs {
			if !attached[id] {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			var events []Event
			if err := tx.Where("id IN ?", missing).Find(&events).Error; err != nil {
				return err
			}
			if err := tx.Model(c).Association("Events").Append(&events); err != nil {
				return err
			}
		}
	}

	return tx.Save(c).Error
}

func (r *Repo) MessageCreate(ctx context.Context, chatID uint64, role, content string) (*Message, error) {
	m := &Message{ChatID: chatID, Role: role, Content: content}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// FlushState commits a snapshot's delta into the durable store in one
// transaction: unpersisted (nil-id) messages are inserted in their original
// order and assigned ids in place, then the chat's aggregate counters,
// chance and event set are brought up to date. Messages that already carry
// an id are skipped. The flush works on archived chats too: the archive
// path marks the row first and flushes after.
func (r *Repo) FlushState(ctx context.Context, st *ChatState) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range st.Messages {
			ms := &st.Messages[i]
			if ms.ID != nil {
				continue
			}
			row := Message{
				ChatID:    st.ID,
				Role:      ms.Role,
				Content:   ms.Content,
				CreatedAt: ms.CreatedAt,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
			id := row.ID
			ms.ID = &id
		}

		var c Chat
		err := tx.Preload("Events").First(&c, st.ID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		updatedAt := st.UpdatedAt
		return applyChatEdit(tx, &c, ChatEditFields{
			TotalRequestTokens:   &st.TotalRequestTokens,
			TotalResponseTokens:  &st.TotalResponseTokens,
			CurrentRequestTokens: &st.CurrentRequestTokens,
			CurrentEventChance:   &st.CurrentEventChance,
			UpdatedAt:            &updatedAt,
			EventIDs:             st.EventIDs(),
		})
	})
}

func (r *Repo) EventCreate(ctx context.Context, content string) (*Event, error) {
	e := &Event{Content: content}
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return nil, err
	}
	return e, nil
}

func (r *Repo) EventGetAll(ctx context.Context, page, perPage int) ([]Event, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&Event{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []Event
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&events).Error
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// EventList returns every event. The pool is a small curated set of
// scripted scenarios; random selection happens in the Engine.
func (r *Repo) EventList(ctx context.Context) ([]Event, error) {
	var events []Event
	err := r.db.WithContext(ctx).Order("id ASC").Find(&events).Error
	return events, err
}
