package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-api-notify/internal/pkg/validate"
)

// NotificationType is the discriminator of the notification tagged union.
type NotificationType string

const (
	TypeOrderPlaced      NotificationType = "ORDER_PLACED"
	TypeOrderDispatched  NotificationType = "ORDER_DISPATCHED"
	TypeOrderShipped     NotificationType = "ORDER_SHIPPED"
	TypeInquiryReceived  NotificationType = "INQUIRY_RECEIVED"
	TypeNewQuoteReceived NotificationType = "NEW_QUOTE_RECEIVED"
	TypeQuoteAccepted    NotificationType = "QUOTE_ACCEPTED"
	TypeQuoteRejected    NotificationType = "QUOTE_REJECTED"
)

// OrderType distinguishes regular orders from sample orders.
type OrderType string

const (
	OrderTypeRegular OrderType = "REGULAR"
	OrderTypeSample  OrderType = "SAMPLE"
)

// FallbackTitle is used for push/email titles when the type is not registered.
const FallbackTitle = "New Notification From Spot!"

// Payload is the variant-specific part of a Notification.
// The set of implementations is closed to this package.
type Payload interface {
	isPayload()
}

// OrderRef is carried by the ORDER_* variants.
type OrderRef struct {
	OrderID   string    `json:"orderId" validate:"required"`
	OrderType OrderType `json:"orderType" validate:"required,oneof=REGULAR SAMPLE"`
}

// InquiryRef is carried by INQUIRY_RECEIVED.
type InquiryRef struct {
	InquiryID string `json:"inquiryId" validate:"required"`
}

// QuoteRef is carried by the quote variants.
type QuoteRef struct {
	QuoteID   string `json:"quoteId" validate:"required"`
	InquiryID string `json:"inquiryId" validate:"required"`
}

func (OrderRef) isPayload()   {}
func (InquiryRef) isPayload() {}
func (QuoteRef) isPayload()   {}

type payloadKind int

const (
	orderKind payloadKind = iota
	inquiryKind
	quoteKind
)

// variant describes one member of the union: which payload it carries and
// how to title it. Every NotificationType constant must have an entry.
type variant struct {
	kind  payloadKind
	title func(Payload) string
}

var variants = map[NotificationType]variant{
	TypeOrderPlaced:      {kind: orderKind, title: orderTitle("placed")},
	TypeOrderDispatched:  {kind: orderKind, title: orderTitle("dispatched")},
	TypeOrderShipped:     {kind: orderKind, title: orderTitle("shipped")},
	TypeInquiryReceived:  {kind: inquiryKind, title: fixedTitle("Inquiry Received")},
	TypeNewQuoteReceived: {kind: quoteKind, title: fixedTitle("New Quote Received")},
	TypeQuoteAccepted:    {kind: quoteKind, title: fixedTitle("Quote Accepted")},
	TypeQuoteRejected:    {kind: quoteKind, title: fixedTitle("Quote Rejected")},
}

func orderTitle(verb string) func(Payload) string {
	return func(p Payload) string {
		prefix := "Sample"
		if o, ok := p.(OrderRef); ok && o.OrderType == OrderTypeRegular {
			prefix = "Order"
		}
		return prefix + " " + verb
	}
}

func fixedTitle(s string) func(Payload) string {
	return func(Payload) string { return s }
}

// NotificationTypes lists every registered type.
func NotificationTypes() []NotificationType {
	out := make([]NotificationType, 0, len(variants))
	for t := range variants {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is a registered notification type.
func (t NotificationType) Valid() bool {
	_, ok := variants[t]
	return ok
}

// Notification is a persisted, user-owned event.
type Notification struct {
	ID        string
	CreatedAt time.Time
	Message   string
	Read      bool
	UserID    string
	Type      NotificationType
	Payload   Payload
}

// Title derives the push/email title from the type and, for orders, the order type.
func (n Notification) Title() string {
	v, ok := variants[n.Type]
	if !ok {
		return FallbackTitle
	}
	return v.title(n.Payload)
}

// Validate checks the common fields and that the payload matches the type.
func (n Notification) Validate() error {
	if n.ID == "" || n.UserID == "" || n.CreatedAt.IsZero() {
		return fmt.Errorf("notification %q: missing common fields: %w", n.ID, ErrValidation)
	}
	return validatePayload(n.Type, n.Payload)
}

func validatePayload(t NotificationType, p Payload) error {
	v, ok := variants[t]
	if !ok {
		return fmt.Errorf("unknown notification type %q: %w", t, ErrValidation)
	}
	if !v.kind.matches(p) {
		return fmt.Errorf("%s: payload %T does not match type: %w", t, p, ErrValidation)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%s: %v: %w", t, err, ErrValidation)
	}
	return nil
}

func (k payloadKind) matches(p Payload) bool {
	switch p.(type) {
	case OrderRef:
		return k == orderKind
	case InquiryRef:
		return k == inquiryKind
	case QuoteRef:
		return k == quoteKind
	}
	return false
}

// notificationWire is the flat JSON shape shared by the API and the pub/sub channel.
type notificationWire struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"createdAt"`
	Message   string           `json:"message"`
	Read      bool             `json:"read"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	OrderID   string           `json:"orderId,omitempty"`
	OrderType OrderType        `json:"orderType,omitempty"`
	InquiryID string           `json:"inquiryId,omitempty"`
	QuoteID   string           `json:"quoteId,omitempty"`
}

func (n Notification) MarshalJSON() ([]byte, error) {
	w := notificationWire{
		ID:        n.ID,
		CreatedAt: n.CreatedAt,
		Message:   n.Message,
		Read:      n.Read,
		UserID:    n.UserID,
		Type:      n.Type,
	}
	w.OrderID, w.OrderType, w.InquiryID, w.QuoteID = flatten(n.Payload)
	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat shape and rebuilds the typed payload. It does
// not validate; call Validate on the result.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w notificationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*n = Notification{
		ID:        w.ID,
		CreatedAt: w.CreatedAt,
		Message:   w.Message,
		Read:      w.Read,
		UserID:    w.UserID,
		Type:      w.Type,
		Payload:   BuildPayload(w.Type, w.OrderID, w.OrderType, w.InquiryID, w.QuoteID),
	}
	return nil
}

// BuildPayload assembles the payload for t from flat columns. Unknown types yield nil.
func BuildPayload(t NotificationType, orderID string, orderType OrderType, inquiryID, quoteID string) Payload {
	v, ok := variants[t]
	if !ok {
		return nil
	}
	switch v.kind {
	case orderKind:
		return OrderRef{OrderID: orderID, OrderType: orderType}
	case inquiryKind:
		return InquiryRef{InquiryID: inquiryID}
	case quoteKind:
		return QuoteRef{QuoteID: quoteID, InquiryID: inquiryID}
	}
	return nil
}

func flatten(p Payload) (orderID string, orderType OrderType, inquiryID, quoteID string) {
	switch v := p.(type) {
	case OrderRef:
		return v.OrderID, v.OrderType, "", ""
	case InquiryRef:
		return "", "", v.InquiryID, ""
	case QuoteRef:
		return "", "", v.InquiryID, v.QuoteID
	}
	return "", "", "", ""
}

// Columns returns the nullable variant columns for persistence.
func (n Notification) Columns() (orderID, orderType, inquiryID, quoteID *string) {
	oid, ot, iid, qid := flatten(n.Payload)
	return nullable(oid), nullable(string(ot)), nullable(iid), nullable(qid)
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateNotificationRequest is the input of the create operations. The id,
// read flag and creation time are assigned by the store.
type CreateNotificationRequest struct {
	UserID    string           `json:"userId" validate:"required"`
	Type      NotificationType `json:"type" validate:"required"`
	Message   string           `json:"message" validate:"required"`
	OrderID   string           `json:"orderId,omitempty"`
	OrderType OrderType        `json:"orderType,omitempty"`
	InquiryID string           `json:"inquiryId,omitempty"`
	QuoteID   string           `json:"quoteId,omitempty"`
}

// ToNotification validates the request and converts it to a Notification
// without id or timestamp.
func (r CreateNotificationRequest) ToNotification() (Notification, error) {
	if err := validate.Struct(r); err != nil {
		return Notification{}, fmt.Errorf("%v: %w", err, ErrValidation)
	}
	p := BuildPayload(r.Type, r.OrderID, r.OrderType, r.InquiryID, r.QuoteID)
	if err := validatePayload(r.Type, p); err != nil {
		return Notification{}, err
	}
	return Notification{
		UserID:  r.UserID,
		Type:    r.Type,
		Message: r.Message,
		Payload: p,
	}, nil
}
