package server

import (
	"encoding/json"

	"practiceflow/internal/config"
	"practiceflow/internal/domain"
	"practiceflow/internal/engine"
	"practiceflow/internal/radar"
)

// Request payloads

type CreateWorkspaceRequest struct {
	ID         *string `json:"id,omitempty"`
	Name       string  `json:"name"`
	Type       string  `json:"type,omitempty" enum:"PRACTICE,COACHING,HOME"`
	OwnerName  string  `json:"owner_name"`
	OwnerEmail string  `json:"owner_email,omitempty"`
}

type CreateReferralRequest struct {
	ID            *string `json:"id,omitempty"`
	ClientName    string  `json:"client_name"`
	ClientPhone   string  `json:"client_phone,omitempty"`
	ClientEmail   string  `json:"client_email,omitempty"`
	AssigneeID    *string `json:"assignee_id,omitempty"`
	AcknowledgeBy string  `json:"acknowledge_by,omitempty" format:"date"`
	ContactBy     string  `json:"contact_by,omitempty" format:"date"`
}

type UpdateReferralRequest struct {
	Status           *string `json:"status,omitempty" enum:"NEW,ACKNOWLEDGED,CONTACT_IN_PROGRESS,APPT_SCHEDULED,INTAKE_BLOCKED,INTAKE_READY"`
	AssigneeID       *string `json:"assignee_id,omitempty"`
	ClientPhone      *string `json:"client_phone,omitempty"`
	ClientEmail      *string `json:"client_email,omitempty"`
	ContactBy        *string `json:"contact_by,omitempty" format:"date"`
	FirstSessionDate *string `json:"first_session_date,omitempty" format:"date"`
}

type ContactOutcomeRequest struct {
	Outcome          string `json:"outcome" enum:"SCHEDULED,PENDING,NO_CONTACT"`
	FirstSessionDate string `json:"first_session_date,omitempty" format:"date"`
}

type UpdateChecklistRequest struct {
	AckSignedInEHR     *bool `json:"intake_ack_signed_in_ehr,omitempty"`
	MissingPaymentAuth *bool `json:"intake_missing_payment_auth,omitempty"`
	MissingConsent     *bool `json:"intake_missing_consent,omitempty"`
	MissingPrivacy     *bool `json:"intake_missing_privacy,omitempty"`
}

type CreateStaffRequest struct {
	ID       *string `json:"id,omitempty"`
	FullName string  `json:"full_name"`
	Email    string  `json:"email,omitempty"`
	Phone    string  `json:"phone,omitempty"`
	Role     string  `json:"role,omitempty" enum:"OWNER,THERAPIST,INTERN"`
}

type UpdateStaffRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Email    *string `json:"email,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	Role     *string `json:"role,omitempty" enum:"OWNER,THERAPIST,INTERN"`
	Status   *string `json:"status,omitempty" enum:"active,inactive"`
}

type CreateStubTaskRequest struct {
	ID         *string `json:"id,omitempty"`
	Title      string  `json:"title"`
	Detail     *string `json:"detail,omitempty"`
	Label      *string `json:"label,omitempty"`
	DueDate    *string `json:"due_date,omitempty" format:"date"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

type UpdateStubTaskRequest struct {
	Title      *string `json:"title,omitempty"`
	Detail     *string `json:"detail,omitempty"`
	Label      *string `json:"label,omitempty"`
	Status     *string `json:"status,omitempty" enum:"open,done"`
	DueDate    *string `json:"due_date,omitempty" format:"date"`
	AssigneeID *string `json:"assignee_id,omitempty"`
}

type CreateAnnouncementRequest struct {
	Title  string `json:"title"`
	Body   string `json:"body,omitempty"`
	Pinned bool   `json:"pinned,omitempty"`
}

type RoleChangeRequest struct {
	ActorID string `json:"actor_id"`
	RoleID  string `json:"role_id"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Response payloads

type WorkspaceResponse struct {
	ID             string `json:"id"`
	OwnerProfileID string `json:"owner_profile_id"`
	Name           string `json:"name"`
	Type           string `json:"type" enum:"PRACTICE,COACHING,HOME"`
	CreatedAt      string `json:"created_at" format:"date-time"`
}

type ReferralResponse struct {
	ID               string  `json:"id"`
	WorkspaceID      string  `json:"workspace_id"`
	ClientName       string  `json:"client_name"`
	ClientPhone      string  `json:"client_phone,omitempty"`
	ClientEmail      string  `json:"client_email,omitempty"`
	AssigneeID       *string `json:"assignee_id,omitempty"`
	CreatedByID      string  `json:"created_by_id"`
	Status           string  `json:"status" enum:"NEW,ACKNOWLEDGED,CONTACT_IN_PROGRESS,APPT_SCHEDULED,INTAKE_BLOCKED,INTAKE_READY"`
	AcknowledgeBy    string  `json:"acknowledge_by,omitempty" format:"date"`
	ContactBy        string  `json:"contact_by,omitempty" format:"date"`
	FirstSessionDate *string `json:"first_session_date,omitempty" format:"date"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

type ChecklistResponse struct {
	ReferralID               string  `json:"referral_id"`
	AckDone                  bool    `json:"ack_done"`
	ContactOutcome           *string `json:"contact_outcome,omitempty" enum:"SCHEDULED,PENDING,NO_CONTACT"`
	IntakeAckSignedInEHR     bool    `json:"intake_ack_signed_in_ehr"`
	IntakeMissingPaymentAuth bool    `json:"intake_missing_payment_auth"`
	IntakeMissingConsent     bool    `json:"intake_missing_consent"`
	IntakeMissingPrivacy     bool    `json:"intake_missing_privacy"`
	UpdatedAt                string  `json:"updated_at" format:"date-time"`
}

type StaffResponse struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	FullName    string `json:"full_name"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Role        string `json:"role" enum:"OWNER,THERAPIST,INTERN"`
	Status      string `json:"status" enum:"active,inactive"`
	CreatedAt   string `json:"created_at" format:"date-time"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

type StubTaskResponse struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspace_id"`
	Title       string  `json:"title"`
	Detail      string  `json:"detail,omitempty"`
	Label       string  `json:"label,omitempty"`
	Status      string  `json:"status" enum:"open,done"`
	DueDate     *string `json:"due_date,omitempty" format:"date"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type AnnouncementResponse struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Title       string `json:"title"`
	Body        string `json:"body,omitempty"`
	AuthorID    string `json:"author_id"`
	Pinned      bool   `json:"pinned"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type RadarItemResponse struct {
	ItemID            string  `json:"item_id"`
	ClientName        string  `json:"client_name,omitempty"`
	Title             string  `json:"title,omitempty"`
	Label             string  `json:"label,omitempty"`
	Status            string  `json:"status,omitempty"`
	Deadline          *string `json:"deadline,omitempty" format:"date"`
	AssigneeID        *string `json:"assignee_id,omitempty"`
	ConsequenceClass  string  `json:"consequence_class" enum:"critical,operational,stability,maintenance,personal"`
	ObjectiveWeight   int     `json:"objective_weight"`
	TimeDecay         int     `json:"time_decay"`
	StabilityModifier int     `json:"stability_modifier"`
	CognitiveTension  int     `json:"cognitive_tension"`
	ViewRelief        int     `json:"view_relief"`
	ResponsibilityAdj int     `json:"responsibility_adj"`
	DisplayWeight     int     `json:"display_weight"`
	CanAct            bool    `json:"can_act"`
	WaitingOnStaff    bool    `json:"waiting_on_staff"`
}

type RadarResponse struct {
	WorkspaceID string              `json:"workspace_id"`
	ViewerID    string              `json:"viewer_id"`
	Role        string              `json:"role" enum:"owner,staff"`
	GeneratedAt string              `json:"generated_at" format:"date-time"`
	DoNow       []RadarItemResponse `json:"do_now"`
	Waiting     []RadarItemResponse `json:"waiting"`
	ComingUp    []RadarItemResponse `json:"coming_up"`
}

type EventResponse struct {
	ID          int64          `json:"id"`
	TS          string         `json:"ts" format:"date-time"`
	Type        string         `json:"type"`
	WorkspaceID string         `json:"workspace_id,omitempty"`
	EntityKind  string         `json:"entity_kind"`
	EntityID    string         `json:"entity_id,omitempty"`
	ActorID     string         `json:"actor_id"`
	Payload     map[string]any `json:"payload"`
}

type paginatedReferrals struct {
	Items      []ReferralResponse `json:"items"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Key       string `json:"key,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type WhoAmIResponse struct {
	ActorID     string   `json:"actor_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WorkspaceConfigResponse struct {
	Workspace struct {
		ID   string `json:"id"`
		Type string `json:"type" enum:"PRACTICE,COACHING,HOME"`
	} `json:"workspace"`
	Radar config.RadarConfig `json:"radar"`
}

// Conversion helpers

func workspaceResponse(w domain.Workspace) WorkspaceResponse {
	return WorkspaceResponse(w)
}

func referralResponse(rf domain.Referral) ReferralResponse {
	return ReferralResponse{
		ID:               rf.ID,
		WorkspaceID:      rf.WorkspaceID,
		ClientName:       rf.ClientName,
		ClientPhone:      rf.ClientPhone,
		ClientEmail:      rf.ClientEmail,
		AssigneeID:       rf.AssignedToProfileID,
		CreatedByID:      rf.CreatedByProfileID,
		Status:           rf.Status,
		AcknowledgeBy:    rf.AcknowledgeBy,
		ContactBy:        rf.ContactBy,
		FirstSessionDate: rf.FirstSessionDate,
		CreatedAt:        rf.CreatedAt,
		UpdatedAt:        rf.UpdatedAt,
	}
}

func checklistResponse(c domain.ReferralChecklist) ChecklistResponse {
	return ChecklistResponse(c)
}

func staffResponse(p domain.StaffProfile) StaffResponse {
	return StaffResponse{
		ID:          p.ID,
		WorkspaceID: p.WorkspaceID,
		FullName:    p.FullName,
		Email:       p.Email,
		Phone:       p.Phone,
		Role:        p.Role,
		Status:      p.Status,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func stubTaskResponse(t domain.StubTask) StubTaskResponse {
	return StubTaskResponse{
		ID:          t.ID,
		WorkspaceID: t.WorkspaceID,
		Title:       t.Title,
		Detail:      t.Detail,
		Label:       t.Label,
		Status:      t.Status,
		DueDate:     t.DueDate,
		AssigneeID:  t.AssignedToProfileID,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func announcementResponse(a domain.Announcement) AnnouncementResponse {
	return AnnouncementResponse{
		ID:          a.ID,
		WorkspaceID: a.WorkspaceID,
		Title:       a.Title,
		Body:        a.Body,
		AuthorID:    a.AuthorProfileID,
		Pinned:      a.Pinned,
		CreatedAt:   a.CreatedAt,
	}
}

func radarItemResponse(it radar.Interpreted) RadarItemResponse {
	var deadline *string
	if d := it.Item.Deadline(); d != nil {
		s := d.Format("2006-01-02")
		deadline = &s
	}
	return RadarItemResponse{
		ItemID:            it.Item.ID,
		ClientName:        it.Item.ClientName,
		Title:             it.Item.Title,
		Label:             it.Item.Label,
		Status:            it.Item.Status,
		Deadline:          deadline,
		AssigneeID:        it.Item.AssignedTo,
		ConsequenceClass:  string(it.Class),
		ObjectiveWeight:   it.ObjectiveWeight,
		TimeDecay:         it.TimeDecay,
		StabilityModifier: it.StabilityModifier,
		CognitiveTension:  it.CognitiveTension,
		ViewRelief:        it.ViewRelief,
		ResponsibilityAdj: it.ResponsibilityAdj,
		DisplayWeight:     it.DisplayWeight,
		CanAct:            it.CanAct,
		WaitingOnStaff:    it.WaitingOnStaff,
	}
}

func radarResponse(snap engine.RadarSnapshot) RadarResponse {
	res := RadarResponse{
		WorkspaceID: snap.WorkspaceID,
		ViewerID:    snap.ViewerID,
		Role:        string(snap.Role),
		GeneratedAt: snap.GeneratedAt,
		DoNow:       []RadarItemResponse{},
		Waiting:     []RadarItemResponse{},
		ComingUp:    []RadarItemResponse{},
	}
	for _, it := range snap.DoNow {
		res.DoNow = append(res.DoNow, radarItemResponse(it))
	}
	for _, it := range snap.Waiting {
		res.Waiting = append(res.Waiting, radarItemResponse(it))
	}
	for _, it := range snap.ComingUp {
		res.ComingUp = append(res.ComingUp, radarItemResponse(it))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:          e.ID,
		TS:          e.TS,
		Type:        e.Type,
		WorkspaceID: e.WorkspaceID,
		EntityKind:  e.EntityKind,
		EntityID:    e.EntityID,
		ActorID:     e.ActorID,
		Payload:     decodeJSONMap(strPtr(e.Payload)),
	}
}

func configResponse(cfg *config.Config) WorkspaceConfigResponse {
	var res WorkspaceConfigResponse
	res.Workspace.ID = cfg.Workspace.ID
	res.Workspace.Type = cfg.Workspace.Type
	res.Radar = cfg.Radar
	return res
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtr(in string) *string {
	return &in
}
