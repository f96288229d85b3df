package models

import "time"

// ReportKind enumerates generated report artifacts.
type ReportKind string

const (
	ReportKindDaily   ReportKind = "daily"
	ReportKindMonthly ReportKind = "monthly"
)

// ReportFile describes a generated report on disk together with its
// signed download URL.
type ReportFile struct {
	Kind        ReportKind `json:"kind"`
	Filename    string     `json:"filename"`
	DownloadURL string     `json:"download_url"`
	GeneratedAt time.Time  `json:"generated_at"`
}
