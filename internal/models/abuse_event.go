package models

import "time"

// AbuseEvent records one multi-account burst detected on an origin address
type AbuseEvent struct {
	OriginIP        string    `json:"originIp" ch:"origin_ip"`
	AuthorIDs       []string  `json:"authorIds" ch:"author_ids"`
	FrozenIDs       []string  `json:"frozenIds" ch:"frozen_ids"`
	DistinctAuthors int       `json:"distinctAuthors" ch:"distinct_authors"`
	FrozenUntil     time.Time `json:"frozenUntil" ch:"frozen_until"`
	DetectedAt      time.Time `json:"detectedAt" ch:"detected_at"`
}
