package models

import "time"

// CountBucket is one labelled count in an aggregate.
type CountBucket struct {
	Label string `db:"label" json:"label"`
	Count int    `db:"count" json:"count"`
}

// MonthlyCount is the number of submissions in one calendar month (YYYY-MM).
type MonthlyCount struct {
	Month string `db:"month" json:"month"`
	Count int    `db:"count" json:"count"`
}

// StatusTotals counts applications per review status.
type StatusTotals struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	UnderReview int `json:"underReview"`
	Approved    int `json:"approved"`
	Rejected    int `json:"rejected"`
}

// ApplicationStats is the administrative dashboard aggregate.
type ApplicationStats struct {
	Totals       StatusTotals   `json:"totals"`
	ByCategory   []CountBucket  `json:"byCategory"`
	ByProvince   []CountBucket  `json:"byProvince"`
	ByGender     []CountBucket  `json:"byGender"`
	ByUniversity []CountBucket  `json:"byUniversity"`
	GradeBuckets []CountBucket  `json:"gradeBuckets"`
	Monthly      []MonthlyCount `json:"monthly"`
	GeneratedAt  time.Time      `json:"generatedAt"`
}
