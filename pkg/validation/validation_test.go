package validation_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/adaptivesql/pooltuner/pkg/models"
	"github.com/adaptivesql/pooltuner/pkg/validation"
)

func validRule() models.AlertRule {
	return models.AlertRule{
		Name:      "high_utilization",
		Category:  models.CategoryPool,
		Severity:  models.AlertWarning,
		Condition: "pool.utilization >= 0.9",
		Window:    5 * time.Minute,
		Actions:   []models.RemediationAction{models.RemediationScaleUp},
	}
}

func TestValidateAlertRule(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*models.AlertRule)
		wantErr string
	}{
		{"valid", func(*models.AlertRule) {}, ""},
		{"blank name", func(r *models.AlertRule) { r.Name = "  " }, "name is required"},
		{"name too long", func(r *models.AlertRule) { r.Name = strings.Repeat("x", 129) }, "128 characters"},
		{"blank condition", func(r *models.AlertRule) { r.Condition = "" }, "condition is required"},
		{"unknown severity", func(r *models.AlertRule) { r.Severity = "fatal" }, "unknown severity"},
		{"empty severity ok", func(r *models.AlertRule) { r.Severity = "" }, ""},
		{"unknown category", func(r *models.AlertRule) { r.Category = "network" }, "unknown category"},
		{"negative violations", func(r *models.AlertRule) { r.ConsecutiveViolations = -1 }, "must not be negative"},
		{"negative cooldown", func(r *models.AlertRule) { r.Cooldown = -time.Second }, "must not be negative"},
		{"window too long", func(r *models.AlertRule) { r.Window = 25 * time.Hour }, "exceeds 24 hours"},
		{"unknown action", func(r *models.AlertRule) { r.Actions = []models.RemediationAction{"reboot"} }, "unknown remediation action"},
		{"auto remediate without actions", func(r *models.AlertRule) {
			r.AutoRemediate = true
			r.Actions = nil
		}, "requires at least one action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := validRule()
			tt.mutate(&rule)
			err := validation.ValidateAlertRule(&rule)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidateScaleRequest(t *testing.T) {
	tests := []struct {
		name           string
		size, overflow int
		wantErr        string
	}{
		{"valid", 10, 5, ""},
		{"at bounds", 20, 10, ""},
		{"zero size", 0, 5, "must be positive"},
		{"negative overflow", 10, -1, "must not be negative"},
		{"size over max", 21, 5, "exceeds maximum"},
		{"overflow over max", 10, 11, "exceeds maximum"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validation.ValidateScaleRequest(tt.size, tt.overflow, 20, 10)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
