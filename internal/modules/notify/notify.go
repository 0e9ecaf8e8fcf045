// Package notify emails customers when their payment settles.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/mailer"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/customers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
)

type OrderReader interface {
	GetWithItems(ctx context.Context, id string) (orders.Order, error)
}

type CustomerReader interface {
	GetByID(ctx context.Context, id string) (customers.Customer, error)
}

type Config struct {
	From     string
	FromName string
	BaseURL  string
	Timeout  time.Duration
}

// Service implements payments.Notifier. Mail goes out on its own goroutine;
// a failed send is logged and never affects the payment.
type Service struct {
	cfg       Config
	mail      mailer.Service
	orders    OrderReader
	customers CustomerReader
	log       *slog.Logger
	wg        sync.WaitGroup
}

var _ payments.Notifier = (*Service)(nil)

func NewService(cfg Config, mail mailer.Service, o OrderReader, c CustomerReader, log *slog.Logger) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Service{cfg: cfg, mail: mail, orders: o, customers: c, log: log}
}

func (s *Service) PaymentSettled(ctx context.Context, res payments.Result) {
	if res.Payment.Status != payments.StatusSucceeded && !res.Order.AwaitingRetry() {
		s.log.DebugContext(ctx, "no payment email for closed attempt",
			"order_id", res.Order.ID, "payment_status", res.Payment.Status, "order_payment_status", res.Order.PaymentStatus)
		return
	}
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
		if err := s.send(ctx, res); err != nil {
			s.log.ErrorContext(ctx, "payment email failed",
				"order_id", res.Order.ID, "payment_status", res.Payment.Status, "err", err)
		}
	}()
}

// Wait blocks until in-flight mail is done.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) send(ctx context.Context, res payments.Result) error {
	o, err := s.orders.GetWithItems(ctx, res.Order.ID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if res.Payment.Status != payments.StatusSucceeded && !o.AwaitingRetry() {
		// paid or retried since the decline was recorded
		return nil
	}
	cust, err := s.customers.GetByID(ctx, o.CustomerID)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}

	e, err := s.compose(o, cust, res.Payment)
	if err != nil {
		return err
	}
	if err := s.mail.Send(ctx, e); err != nil {
		return err
	}
	s.log.InfoContext(ctx, "payment email sent", "order_id", o.ID, "kind", e.Headers["X-Storefront-Kind"])
	return nil
}

type message struct {
	Name     string
	Number   string
	Items    []line
	Subtotal string
	Shipping string
	Tax      string
	Total    string
	Reason   string
	OrderURL string
}

type line struct {
	Name  string
	Qty   int
	Total string
}

func (s *Service) compose(o orders.Order, c customers.Customer, p payments.Payment) (mailer.Email, error) {
	m := message{
		Name:     c.FirstName,
		Number:   o.OrderNumber,
		Subtotal: o.Subtotal().Format(),
		Shipping: o.Shipping().Format(),
		Tax:      o.Tax().Format(),
		Total:    o.Total().Format(),
	}
	// the order page needs a login or the guest token, which is never mailed
	if c.UserID != nil {
		m.OrderURL = s.cfg.BaseURL + "/orders/" + o.OrderNumber
	}
	if m.Name == "" {
		m.Name = "there"
	}
	for _, it := range o.Items {
		m.Items = append(m.Items, line{Name: it.ProductName, Qty: it.Quantity, Total: it.LineTotal().Format()})
	}

	kind, subject, tpl := "order_confirmed", "Order "+o.OrderNumber+" confirmed", confirmed
	if p.Status != payments.StatusSucceeded {
		kind, subject, tpl = "payment_failed", "Payment for order "+o.OrderNumber+" did not go through", failed
		if p.FailureMessage != nil {
			m.Reason = *p.FailureMessage
		}
	}

	var text, html bytes.Buffer
	if err := tpl.text.Execute(&text, m); err != nil {
		return mailer.Email{}, err
	}
	if err := tpl.html.Execute(&html, m); err != nil {
		return mailer.Email{}, err
	}

	return mailer.Email{
		From:     s.cfg.From,
		FromName: s.cfg.FromName,
		To:       []string{c.Email},
		Subject:  subject,
		TextBody: text.String(),
		HTMLBody: html.String(),
		Headers: map[string]string{
			"X-Order-Number":    o.OrderNumber,
			"X-Storefront-Kind": kind,
		},
	}, nil
}
