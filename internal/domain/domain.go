package domain

type Workspace struct {
	ID             string `json:"id"`
	OwnerProfileID string `json:"owner_profile_id"`
	Name           string `json:"name"`
	Type           string `json:"type" enum:"PRACTICE,COACHING,HOME"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type StaffProfile struct {
	ID                    string  `json:"id"`
	WorkspaceID           string  `json:"workspace_id"`
	FullName              string  `json:"full_name"`
	Email                 string  `json:"email,omitempty"`
	Phone                 string  `json:"phone,omitempty"`
	Role                  string  `json:"role" enum:"OWNER,THERAPIST,INTERN"`
	Status                string  `json:"status" enum:"active,inactive"`
	NotificationPrefsJSON *string `json:"notification_prefs_json,omitempty"`
	CreatedAt             string  `json:"created_at" format:"date-time"`
	UpdatedAt             string  `json:"updated_at" format:"date-time"`
}

type Referral struct {
	ID                  string  `json:"id"`
	WorkspaceID         string  `json:"workspace_id"`
	ClientName          string  `json:"client_name"`
	ClientPhone         string  `json:"client_phone,omitempty"`
	ClientEmail         string  `json:"client_email,omitempty"`
	AssignedToProfileID *string `json:"assigned_to_profile_id,omitempty"`
	CreatedByProfileID  string  `json:"created_by_profile_id"`
	Status              string  `json:"status" enum:"NEW,ACKNOWLEDGED,CONTACT_IN_PROGRESS,APPT_SCHEDULED,INTAKE_BLOCKED,INTAKE_READY"`
	AcknowledgeBy       string  `json:"acknowledge_by,omitempty" format:"date"`
	ContactBy           string  `json:"contact_by,omitempty" format:"date"`
	FirstSessionDate    *string `json:"first_session_date,omitempty" format:"date"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
	UpdatedAt           string  `json:"updated_at" format:"date-time"`
}

type ReferralChecklist struct {
	ReferralID               string  `json:"referral_id"`
	AckDone                  bool    `json:"ack_done"`
	ContactOutcome           *string `json:"contact_outcome,omitempty" enum:"SCHEDULED,PENDING,NO_CONTACT"`
	IntakeAckSignedInEHR     bool    `json:"intake_ack_signed_in_ehr"`
	IntakeMissingPaymentAuth bool    `json:"intake_missing_payment_auth"`
	IntakeMissingConsent     bool    `json:"intake_missing_consent"`
	IntakeMissingPrivacy     bool    `json:"intake_missing_privacy"`
	UpdatedAt                string  `json:"updated_at" format:"date-time"`
}

// StubTask is a lightweight attention item for the coaching and home radars.
type StubTask struct {
	ID                  string  `json:"id"`
	WorkspaceID         string  `json:"workspace_id"`
	Title               string  `json:"title"`
	Detail              string  `json:"detail,omitempty"`
	Label               string  `json:"label,omitempty"`
	Status              string  `json:"status" enum:"open,done"`
	DueDate             *string `json:"due_date,omitempty" format:"date"`
	AssignedToProfileID *string `json:"assigned_to_profile_id,omitempty"`
	CreatedAt           string  `json:"created_at" format:"date-time"`
	UpdatedAt           string  `json:"updated_at" format:"date-time"`
}

type Announcement struct {
	ID              string `json:"id"`
	WorkspaceID     string `json:"workspace_id"`
	Title           string `json:"title"`
	Body            string `json:"body,omitempty"`
	AuthorProfileID string `json:"author_profile_id"`
	Pinned          bool   `json:"pinned"`
	CreatedAt       string `json:"created_at" format:"date-time"`
}

// ViewRecord is one row of radar interaction history for a (viewer, item) pair.
type ViewRecord struct {
	ViewerID     string  `json:"viewer_id"`
	ItemID       string  `json:"item_id"`
	LastViewedAt *string `json:"last_viewed_at,omitempty" format:"date-time"`
	Drift        int     `json:"drift"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts" format:"date-time"`
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	ActorID     string `json:"actor_id"`
	Payload     string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
