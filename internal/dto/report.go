package dto

// ReportFormat selects an export encoding.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// ExportedReport carries a rendered report file.
type ExportedReport struct {
	Filename    string
	ContentType string
	Content     []byte
}

// UpdatePolicyRequest replaces a course attendance policy.
type UpdatePolicyRequest struct {
	MaxAbsent    int `json:"maxAbsent" validate:"required,min=1,max=100"`
	LateToAbsent int `json:"lateToAbsent" validate:"required,min=1,max=100"`
}
