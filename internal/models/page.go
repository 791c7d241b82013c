package models

// PageInfo is the display information of a page owned by the page subsystem
type PageInfo struct {
	ID          string `json:"id" db:"id"`
	Title       string `json:"title" db:"title"`
	Slug        string `json:"slug" db:"slug"`
	ChapterSlug string `json:"chapterSlug" db:"chapter_slug"`
}

// Paragraph is a commentable paragraph of a page
type Paragraph struct {
	ID           string `json:"id" db:"id"`
	PageID       string `json:"pageId" db:"page_id"`
	CommentCount int    `json:"commentCount" db:"comment_count"`
}
