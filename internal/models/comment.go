package models

import "time"

// Comment is an append-only comment record. Only the soft-delete fields change after creation.
type Comment struct {
	ID          string     `json:"id" db:"id"`
	AuthorID    string     `json:"authorId" db:"author_id"`
	PageID      *string    `json:"pageId,omitempty" db:"page_id"`
	ParagraphID *string    `json:"paragraphId,omitempty" db:"paragraph_id"`
	ParentID    *string    `json:"parentId,omitempty" db:"parent_id"`
	Content     string     `json:"content" db:"content"`
	OriginIP    *string    `json:"-" db:"origin_ip"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	IsDeleted   bool       `json:"isDeleted" db:"is_deleted"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// CommentTarget addresses a comment at a page or at a single paragraph.
// Exactly one of PageID or ParagraphID is set.
type CommentTarget struct {
	PageID      *string
	ParagraphID *string
	ParentID    *string
}

// IsParagraph reports whether the target is a paragraph
func (t CommentTarget) IsParagraph() bool {
	return t.ParagraphID != nil && *t.ParagraphID != ""
}
