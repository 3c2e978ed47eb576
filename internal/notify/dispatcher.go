package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rankandrent/exchange-intake/internal/leads"
	"github.com/rankandrent/exchange-intake/internal/observability/metrics"
	"github.com/rankandrent/exchange-intake/pkg/logging"
)

// Brand is the site context merged into every notification template.
type Brand struct {
	SiteName string
	SiteURL  string
}

// DispatcherConfig holds notification configuration.
type DispatcherConfig struct {
	CustomerTemplateID string
	InternalTemplateID string
	InternalRecipients []string
}

// Dispatcher sends the customer confirmation and the internal fan-out. Every
// failure is logged and reported to metrics; none of them is fatal to the
// request that triggered the send.
type Dispatcher struct {
	sender             EmailSender
	customerTemplateID string
	internalTemplateID string
	recipients         []string
	logger             *logging.Logger
	metrics            *metrics.IntakeMetrics

	credCheck sync.Once
	credErr   error
}

// NewDispatcher creates a Dispatcher. Recipient addresses are trimmed,
// de-duplicated and emptied entries dropped up front so the fan-out never
// contacts the same inbox twice.
func NewDispatcher(sender EmailSender, cfg DispatcherConfig, m *metrics.IntakeMetrics, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	seen := make(map[string]struct{}, len(cfg.InternalRecipients))
	recipients := make([]string, 0, len(cfg.InternalRecipients))
	for _, addr := range cfg.InternalRecipients {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		key := strings.ToLower(addr)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		recipients = append(recipients, addr)
	}
	return &Dispatcher{
		sender:             sender,
		customerTemplateID: cfg.CustomerTemplateID,
		internalTemplateID: cfg.InternalTemplateID,
		recipients:         recipients,
		logger:             logger,
		metrics:            m,
	}
}

// checkCredentials validates provider wiring once, the first time any send is
// attempted, and fails loudly in logs when it is missing.
func (d *Dispatcher) checkCredentials() error {
	d.credCheck.Do(func() {
		if d.sender == nil {
			d.credErr = errors.New("notify: no email provider configured")
			d.logger.Error("email provider credentials missing, notifications disabled")
		}
	})
	return d.credErr
}

// Dispatch runs the customer confirmation and the internal fan-out
// concurrently and returns once both have settled. Their outcomes are logged,
// never surfaced.
func (d *Dispatcher) Dispatch(ctx context.Context, brand Brand, lead leads.Lead) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := d.SendCustomerConfirmation(ctx, brand, lead); err != nil {
			d.logger.Error("customer confirmation failed", "error", err, "to", lead.Email)
		}
	}()
	go func() {
		defer wg.Done()
		if err := d.SendInternalNotifications(ctx, brand, lead); err != nil {
			d.logger.Error("internal notifications degraded", "error", err)
		}
	}()
	wg.Wait()
}

// SendCustomerConfirmation emails the submitter an acknowledgement populated
// with brand context and their own lead fields.
func (d *Dispatcher) SendCustomerConfirmation(ctx context.Context, brand Brand, lead leads.Lead) error {
	if err := d.checkCredentials(); err != nil {
		d.metrics.ObserveNotification("customer", "skipped")
		return err
	}

	msg := EmailMessage{
		To:           lead.Email,
		ToName:       lead.Name,
		Subject:      fmt.Sprintf("We received your request — %s", brand.SiteName),
		Body:         confirmationBody(brand, lead),
		TemplateID:   d.customerTemplateID,
		TemplateData: templateData(brand, lead),
	}
	if err := d.sender.Send(ctx, msg); err != nil {
		d.metrics.ObserveNotification("customer", "failed")
		return fmt.Errorf("notify: customer confirmation: %w", err)
	}
	d.metrics.ObserveNotification("customer", "sent")
	return nil
}

// SendInternalNotifications fans the lead out to the internal recipient list.
// Recipients are contacted concurrently and independently; one failure never
// blocks delivery to the others.
func (d *Dispatcher) SendInternalNotifications(ctx context.Context, brand Brand, lead leads.Lead) error {
	if err := d.checkCredentials(); err != nil {
		d.metrics.ObserveNotification("internal", "skipped")
		return err
	}
	if len(d.recipients) == 0 {
		d.logger.Warn("no internal recipients configured, skipping fan-out")
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(d.recipients))
	for i, recipient := range d.recipients {
		wg.Add(1)
		go func(i int, recipient string) {
			defer wg.Done()
			msg := EmailMessage{
				To:           recipient,
				Subject:      fmt.Sprintf("New lead: %s (%s)", lead.Name, lead.ProjectType),
				Body:         internalBody(brand, lead),
				TemplateID:   d.internalTemplateID,
				TemplateData: templateData(brand, lead),
			}
			if err := d.sender.Send(ctx, msg); err != nil {
				d.metrics.ObserveNotification("internal", "failed")
				d.logger.Error("internal notification failed", "error", err, "to", recipient)
				errs[i] = fmt.Errorf("notify: send to %s: %w", recipient, err)
				return
			}
			d.metrics.ObserveNotification("internal", "sent")
		}(i, recipient)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Recipients returns the filtered internal recipient list.
func (d *Dispatcher) Recipients() []string {
	return d.recipients
}

func templateData(brand Brand, lead leads.Lead) map[string]any {
	return map[string]any{
		"siteName":            brand.SiteName,
		"siteUrl":             brand.SiteURL,
		"name":                lead.Name,
		"email":               lead.Email,
		"phone":               lead.Phone,
		"company":             lead.Company,
		"propertyDescription": lead.PropertyDescription,
		"estimatedCloseDate":  lead.EstimatedCloseDate,
		"city":                lead.City,
		"timeline":            lead.Timeline,
		"message":             lead.Message,
		"projectType":         lead.ProjectType,
		"source":              lead.Source,
		"submittedAt":         lead.SubmittedAt.Format("January 2, 2006 at 3:04 PM MST"),
	}
}

func confirmationBody(brand Brand, lead leads.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi %s,\n\n", lead.Name)
	fmt.Fprintf(&b, "Thanks for reaching out to %s about %s.\n", brand.SiteName, lead.ProjectType)
	b.WriteString("A member of our team will contact you shortly.\n")
	if brand.SiteURL != "" {
		fmt.Fprintf(&b, "\n%s\n", brand.SiteURL)
	}
	return b.String()
}

func internalBody(brand Brand, lead leads.Lead) string {
	var b strings.Builder
	fmt.Fprintf(&b, "New lead from %s\n\n", brand.SiteName)
	fmt.Fprintf(&b, "Name: %s\nEmail: %s\nPhone: %s\nService: %s\n", lead.Name, lead.Email, lead.Phone, lead.ProjectType)
	if lead.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", lead.Company)
	}
	if lead.City != "" {
		fmt.Fprintf(&b, "City: %s\n", lead.City)
	}
	if lead.Timeline != "" {
		fmt.Fprintf(&b, "Timeline: %s\n", lead.Timeline)
	}
	if lead.EstimatedCloseDate != "" {
		fmt.Fprintf(&b, "Estimated close: %s\n", lead.EstimatedCloseDate)
	}
	if lead.PropertyDescription != "" {
		fmt.Fprintf(&b, "Property: %s\n", lead.PropertyDescription)
	}
	if lead.Message != "" {
		fmt.Fprintf(&b, "\n%s\n", lead.Message)
	}
	fmt.Fprintf(&b, "\nSource: %s\nSubmitted: %s\n", lead.Source, lead.SubmittedAt.Format("2006-01-02 15:04:05 MST"))
	return b.String()
}
