// Package validation holds field-level checks for operator-supplied payloads.
// Condition syntax is checked separately when the rule is compiled.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/adaptivesql/pooltuner/pkg/models"
)

var validSeverities = map[models.AlertSeverity]bool{
	models.AlertInfo:     true,
	models.AlertWarning:  true,
	models.AlertCritical: true,
}

var validCategories = map[models.AlertCategory]bool{
	models.CategoryPool:        true,
	models.CategoryLatency:     true,
	models.CategoryErrors:      true,
	models.CategorySSL:         true,
	models.CategoryCertificate: true,
	models.CategoryResource:    true,
}

var validActions = map[models.RemediationAction]bool{
	models.RemediationRetry:           true,
	models.RemediationEngineRefresh:   true,
	models.RemediationForceReconnect:  true,
	models.RemediationEmergencyScale:  true,
	models.RemediationCertValidation:  true,
	models.RemediationScaleUp:         true,
	models.RemediationScaleDown:       true,
	models.RemediationRecycleIdle:     true,
	models.RemediationClearWarmCache:  true,
}

// ValidateAlertRule checks every field of an operator-submitted rule.
func ValidateAlertRule(rule *models.AlertRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("rule name is required")
	}
	if len(rule.Name) > 128 {
		return fmt.Errorf("rule name exceeds 128 characters")
	}
	if strings.TrimSpace(rule.Condition) == "" {
		return fmt.Errorf("rule condition is required")
	}
	if rule.Severity != "" && !validSeverities[rule.Severity] {
		return fmt.Errorf("unknown severity %q", rule.Severity)
	}
	if rule.Category != "" && !validCategories[rule.Category] {
		return fmt.Errorf("unknown category %q", rule.Category)
	}
	if rule.ConsecutiveViolations < 0 {
		return fmt.Errorf("consecutive_violations must not be negative")
	}
	if rule.Window < 0 || rule.Cooldown < 0 {
		return fmt.Errorf("window and cooldown must not be negative")
	}
	if rule.Window > 24*time.Hour {
		return fmt.Errorf("window exceeds 24 hours")
	}
	for _, action := range rule.Actions {
		if !validActions[action] {
			return fmt.Errorf("unknown remediation action %q", action)
		}
	}
	if rule.AutoRemediate && len(rule.Actions) == 0 {
		return fmt.Errorf("auto_remediate requires at least one action")
	}
	return nil
}

// ValidateScaleRequest checks a manual scaling request against the configured
// hard bounds.
func ValidateScaleRequest(targetSize, targetOverflow, maxSize, maxOverflow int) error {
	if targetSize <= 0 {
		return fmt.Errorf("target size must be positive")
	}
	if targetOverflow < 0 {
		return fmt.Errorf("target overflow must not be negative")
	}
	if targetSize > maxSize {
		return fmt.Errorf("target size %d exceeds maximum %d", targetSize, maxSize)
	}
	if targetOverflow > maxOverflow {
		return fmt.Errorf("target overflow %d exceeds maximum %d", targetOverflow, maxOverflow)
	}
	return nil
}
