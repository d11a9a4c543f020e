// Package web provides HTTP request and response types for the execution API.
package web

import "time"

// ScheduleExecutionRequest represents the request body for scheduling a
// single execution.
type ScheduleExecutionRequest struct {
	CampaignID   string     `json:"campaign_id"   validate:"required"`
	LeadID       string     `json:"lead_id"       validate:"required"`
	TemplateID   string     `json:"template_id"   validate:"required"`
	Channel      string     `json:"channel"       validate:"required,oneof=email sms chat"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// ScheduleSequenceRequest represents the request body for scheduling a full
// template sequence for one lead.
type ScheduleSequenceRequest struct {
	CampaignID  string   `json:"campaign_id"  validate:"required"`
	LeadID      string   `json:"lead_id"      validate:"required"`
	TemplateIDs []string `json:"template_ids" validate:"required,min=1,dive,required"`
	Channel     string   `json:"channel"      validate:"required,oneof=email sms chat"`
}

// EnrollRequest represents the request body for enrolling leads into a
// campaign's configured sequence.
type EnrollRequest struct {
	CampaignID string   `json:"campaign_id" validate:"required"`
	LeadIDs    []string `json:"lead_ids"    validate:"required,min=1,dive,required"`
}

// CreateRecurrenceRequest represents the request body for a recurring
// enrollment.
type CreateRecurrenceRequest struct {
	CampaignID     string   `json:"campaign_id"     validate:"required"`
	LeadIDs        []string `json:"lead_ids"        validate:"required,min=1,dive,required"`
	CronExpression string   `json:"cron_expression" validate:"required"`
}

// BulkCancelRequest represents the request body for bulk-cancelling
// scheduled executions by campaign or lead (OR semantics when both given).
type BulkCancelRequest struct {
	CampaignID string `json:"campaign_id,omitempty"`
	LeadID     string `json:"lead_id,omitempty"`
}
