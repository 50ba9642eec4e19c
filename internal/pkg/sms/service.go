package sms

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/rs/zerolog/log"
)

// Sender delivers one text message
type Sender interface {
	Send(ctx context.Context, to, message string) error
}

// Service renders templated messages and sends them from a background queue.
// Queue never blocks the caller; a full queue drops the message.
type Service struct {
	sender    Sender
	templates map[string]*template.Template
	queue     chan *QueuedMessage
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// QueuedMessage is a message waiting in the send queue
type QueuedMessage struct {
	To           string
	TemplateName string
	Data         interface{}
}

const sendTimeout = 15 * time.Second

// NewService creates the SMS service and starts its worker
func NewService(sender Sender) *Service {
	s := &Service{
		sender:    sender,
		templates: make(map[string]*template.Template),
		queue:     make(chan *QueuedMessage, 100),
	}

	s.loadTemplates()

	s.wg.Add(1)
	go s.worker()

	return s
}

func (s *Service) loadTemplates() {
	templates := map[string]string{
		"payment_receipt":   PaymentReceiptTemplate,
		"topup_requested":   TopUpRequestedTemplate,
		"topup_successful":  TopUpSuccessfulTemplate,
		"topup_failed":      TopUpFailedTemplate,
		"transfer_received": TransferReceivedTemplate,
	}

	for name, content := range templates {
		tmpl, err := template.New(name).Parse(content)
		if err != nil {
			log.Error().Err(err).Str("template", name).Msg("Failed to parse sms template")
			continue
		}
		s.templates[name] = tmpl
	}
}

func (s *Service) worker() {
	defer s.wg.Done()

	for msg := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := s.send(ctx, msg); err != nil {
			log.Error().Err(err).
				Str("to", maskPhone(msg.To)).
				Str("template", msg.TemplateName).
				Msg("Failed to send sms")
		}
		cancel()
	}
}

func (s *Service) send(ctx context.Context, msg *QueuedMessage) error {
	text, err := s.Render(msg.TemplateName, msg.Data)
	if err != nil {
		return err
	}
	return s.sender.Send(ctx, msg.To, text)
}

// Render renders a named template
func (s *Service) Render(name string, data interface{}) (string, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return "", &TemplateNotFoundError{Name: name}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Queue adds a message to the async send queue
func (s *Service) Queue(to, templateName string, data interface{}) {
	if strings.TrimSpace(to) == "" {
		return
	}
	select {
	case s.queue <- &QueuedMessage{To: to, TemplateName: templateName, Data: data}:
	default:
		log.Warn().Str("to", maskPhone(to)).Msg("SMS queue full, dropping message")
	}
}

// SendSync renders and sends a message synchronously
func (s *Service) SendSync(ctx context.Context, to, templateName string, data interface{}) error {
	return s.send(ctx, &QueuedMessage{To: to, TemplateName: templateName, Data: data})
}

// Close stops the worker after draining the queue
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

// --- Convenience methods for specific messages ---

// Receipt is the data of a payment receipt
type Receipt struct {
	Amount    int64
	Balance   int64
	Currency  string
	Merchant  string
	Reference string
}

// SendPaymentReceipt queues a receipt after a settled payment
func (s *Service) SendPaymentReceipt(to string, r Receipt) {
	s.Queue(to, "payment_receipt", r)
}

// TopUp is the data of mobile-money top-up messages
type TopUp struct {
	Amount    int64
	Currency  string
	Provider  string
	Reference string
	Reason    string
}

// SendTopUpRequested tells the customer to approve the push prompt
func (s *Service) SendTopUpRequested(to string, t TopUp) {
	s.Queue(to, "topup_requested", t)
}

// SendTopUpSuccessful confirms a credited top-up
func (s *Service) SendTopUpSuccessful(to string, t TopUp) {
	s.Queue(to, "topup_successful", t)
}

// SendTopUpFailed reports a failed top-up
func (s *Service) SendTopUpFailed(to string, t TopUp) {
	s.Queue(to, "topup_failed", t)
}

// SendTransferReceived notifies the recipient of a wallet transfer
func (s *Service) SendTransferReceived(to string, amount int64, currency, reference string) {
	s.Queue(to, "transfer_received", TopUp{Amount: amount, Currency: currency, Reference: reference})
}

type TemplateNotFoundError struct {
	Name string
}

func (e *TemplateNotFoundError) Error() string {
	return "sms template " + e.Name + " not found"
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
