package health

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/adaptivesql/pooltuner/internal/events"
	"github.com/adaptivesql/pooltuner/internal/logger"
	"github.com/adaptivesql/pooltuner/pkg/config"
	"github.com/adaptivesql/pooltuner/pkg/models"
)

// CertificateChecker fetches the database endpoint's TLS certificate on a
// long interval and tracks expiry. Each warning tier fires once per observed
// certificate; a renewed certificate re-arms both tiers.
type CertificateChecker struct {
	cfg       config.HealthConfig
	publisher *events.Publisher
	addr      string

	// dial is swapped in tests.
	dial func(ctx context.Context, addr string) (*tls.Conn, error)

	mu             sync.Mutex
	current        *models.CertificateInfo
	warnedExpiry   time.Time
	criticalExpiry time.Time
}

func NewCertificateChecker(cfg config.HealthConfig, publisher *events.Publisher, addr string) *CertificateChecker {
	return &CertificateChecker{
		cfg:       cfg,
		publisher: publisher,
		addr:      addr,
		dial:      dialTLS,
	}
}

func dialTLS(ctx context.Context, addr string) (*tls.Conn, error) {
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 10 * time.Second},
		// Expiry inspection must see the certificate even when it no longer
		// verifies.
		Config: &tls.Config{InsecureSkipVerify: true},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn.(*tls.Conn), nil
}

// Check fetches and evaluates the endpoint certificate. Runs on the
// certificate interval and on demand from remediation.
func (c *CertificateChecker) Check(ctx context.Context) {
	conn, err := c.dial(ctx, c.addr)
	if err != nil {
		logger.WithComponent("health").Warnf("Certificate check failed for %s: %v", c.addr, err)
		return
	}
	state := conn.ConnectionState()
	conn.Close()

	if len(state.PeerCertificates) == 0 {
		logger.WithComponent("health").Warnf("No peer certificate presented by %s", c.addr)
		return
	}
	leaf := state.PeerCertificates[0]
	now := time.Now()

	info := &models.CertificateInfo{
		Subject:         leaf.Subject.CommonName,
		Issuer:          leaf.Issuer.CommonName,
		NotAfter:        leaf.NotAfter,
		DaysUntilExpiry: int(time.Until(leaf.NotAfter).Hours() / 24),
		Valid:           now.After(leaf.NotBefore) && now.Before(leaf.NotAfter),
		CheckedAt:       now,
	}

	c.mu.Lock()
	renewed := c.current == nil || !c.current.NotAfter.Equal(info.NotAfter)
	if renewed {
		c.warnedExpiry = time.Time{}
		c.criticalExpiry = time.Time{}
	}
	c.current = info

	fireCritical := info.DaysUntilExpiry <= c.cfg.CertCriticalDays && !c.criticalExpiry.Equal(info.NotAfter)
	fireWarning := !fireCritical && info.DaysUntilExpiry <= c.cfg.CertWarningDays && !c.warnedExpiry.Equal(info.NotAfter)
	if fireCritical {
		c.criticalExpiry = info.NotAfter
	}
	if fireWarning {
		c.warnedExpiry = info.NotAfter
	}
	c.mu.Unlock()

	switch {
	case fireCritical:
		logger.WithComponent("health").Errorf(
			"Certificate for %s expires in %d days (subject %s)", c.addr, info.DaysUntilExpiry, info.Subject,
		)
		c.fireAlert(info, models.AlertCritical)
	case fireWarning:
		logger.WithComponent("health").Warnf(
			"Certificate for %s expires in %d days (subject %s)", c.addr, info.DaysUntilExpiry, info.Subject,
		)
		c.fireAlert(info, models.AlertWarning)
	}
}

func (c *CertificateChecker) fireAlert(info *models.CertificateInfo, severity models.AlertSeverity) {
	if c.publisher == nil {
		return
	}
	alert := &models.Alert{
		ID:           models.NewUUID(),
		RuleName:     "certificate_expiry",
		Severity:     severity,
		TriggeredAt:  time.Now(),
		CurrentValue: float64(info.DaysUntilExpiry),
		Resolution:   models.AlertOpen,
		Message:      "Database server certificate approaching expiry",
	}
	c.publisher.AlertFired(alert)
}

// Current returns the last observed certificate, or nil before the first
// successful check.
func (c *CertificateChecker) Current() *models.CertificateInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	snapshot := *c.current
	return &snapshot
}
