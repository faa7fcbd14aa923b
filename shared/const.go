package shared

const (
	UserID       = "user_id"
	DeviceID     = "device_id"
	SessionScope = "session_scope"
	DisplayName  = "display_name"
	Email        = "email"

	HeaderDeviceID = "X-Device-ID"

	CollectionProgress         = "userProgress"
	CollectionCertificates     = "certificates"
	CollectionCertificateSlots = "certificateSlots"
	CollectionCourses          = "courses"

	ContentTypePDF  = "application/pdf"
	ContentTypeJSON = "application/json"

	ItemTypeVideo = "video"
	ItemTypeText  = "text"
	ItemTypePDF   = "pdf"

	// CompletionRatio is the watched fraction an item must exceed to count as complete.
	CompletionRatio = 0.95

	SlotStatusPending = "pending"
	SlotStatusIssued  = "issued"

	ProgressEventTick  = "tick"
	ProgressEventPause = "pause"
	ProgressEventEnded = "ended"
)
