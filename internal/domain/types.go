package domain

import "time"

// AreaStatus is the inspection outcome of a single checklist area.
type AreaStatus string

const (
	StatusPending AreaStatus = "pending"
	StatusOK      AreaStatus = "ok"
	StatusProblem AreaStatus = "problem"
)

// Valid reports whether s is one of the known statuses.
func (s AreaStatus) Valid() bool {
	switch s {
	case StatusPending, StatusOK, StatusProblem:
		return true
	}
	return false
}

// AreaDef is one entry of the configured checklist.
type AreaDef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Attachment is an ingested photo. EncodedData is the transport form (base64,
// no data-URI prefix); PreviewData is a data URI for on-screen display only.
type Attachment struct {
	AreaID      string
	Name        string
	MimeType    string
	EncodedData string
	PreviewData string
}

type AreaRecord struct {
	AreaID      string
	Status      AreaStatus
	Note        string
	Attachments []Attachment
}

// Session is the data a flow identifier resolves to.
type Session struct {
	OK          bool   `json:"ok"`
	FlowID      string `json:"flowId"`
	Status      string `json:"status"`
	Building    string `json:"building"`
	Floor       string `json:"floor"`
	RoomID      string `json:"roomId"`
	TenantName  string `json:"tenantName,omitempty"`
	TenantPhone string `json:"tenantPhone,omitempty"`
	CheckinDate string `json:"checkinDate,omitempty"`
}

type TaskType string

const (
	TaskInspection TaskType = "INSPECTION"
	TaskFridge     TaskType = "FRIDGE"
	TaskCar        TaskType = "CAR"
)

type Task struct {
	TaskID string   `json:"taskId"`
	Type   TaskType `json:"type"`
	Status string   `json:"status"`
}

// FlowSummary is one move event as reported by the task inbox. Pointer fields
// are optional on the wire.
type FlowSummary struct {
	FlowID     string     `json:"flowId"`
	RoomID     string     `json:"roomId"`
	Tasks      []Task     `json:"tasks"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
	EscalateAt *time.Time `json:"escalateAt,omitempty"`
	Progress   *float64   `json:"progress,omitempty"`
	Overdue    *bool      `json:"overdue,omitempty"`
	DaysLeft   *int       `json:"daysLeft,omitempty"`
}

// FlowMeta is the flow header returned by the flow detail lookup.
type FlowMeta struct {
	FlowID     string     `json:"flowId"`
	RoomID     string     `json:"roomId"`
	DueAt      *time.Time `json:"dueAt,omitempty"`
	EscalateAt *time.Time `json:"escalateAt,omitempty"`
	Progress   *float64   `json:"progress,omitempty"`
}

type FlowDetail struct {
	OK    bool      `json:"ok"`
	Flow  *FlowMeta `json:"flow,omitempty"`
	Tasks []Task    `json:"tasks,omitempty"`
}

type TaskInbox struct {
	OK    bool          `json:"ok"`
	Flows []FlowSummary `json:"flows"`
}

// SubmitResult is the submission endpoint's reply.
type SubmitResult struct {
	OK           bool   `json:"ok"`
	RoomID       string `json:"roomId"`
	PDFURL       string `json:"pdfUrl"`
	SignatureURL string `json:"signatureUrl,omitempty"`
}

// Receipt records one successful submission.
type Receipt struct {
	ID           int64
	FlowID       string
	RoomID       string
	PDFURL       string
	Variant      string
	AreaCount    int
	ProblemCount int
	FileCount    int
	SubmittedAt  time.Time
}

// ArchivedFile is one evidence file copied to the photo store after a
// submission.
type ArchivedFile struct {
	ID         int64
	ReceiptID  int64
	AreaID     string
	Name       string
	StorageKey string
	MimeType   string
	ArchivedAt time.Time
}
