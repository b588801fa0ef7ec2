package model

import (
	"encoding/json"
	"time"
)

// Order statuses. The lifecycle is strictly forward; an order never re-enters
// an earlier state. Terminal statuses close the order for good.
const (
	StatusDiscovered        = "DISCOVERED"
	StatusValidating        = "VALIDATING"
	StatusRejectedEconomics = "REJECTED_ECONOMICS"
	StatusAwaitingApproval  = "AWAITING_APPROVAL"
	StatusApproved          = "APPROVED"
	StatusRejected          = "REJECTED"
	StatusConnecting        = "CONNECTING"
	StatusConnected         = "CONNECTED"
	StatusConnectFailed     = "CONNECT_FAILED"
	StatusOpening           = "OPENING"
	StatusOpened            = "OPENED"
	StatusOpenFailed        = "OPEN_FAILED"
	StatusAwaitingPayment   = "AWAITING_PAYMENT"
	StatusPaid              = "PAID"
	StatusExpired           = "EXPIRED"
)

// lifecycleEdges holds the allowed forward transitions for an order.
var lifecycleEdges = map[string][]string{
	StatusDiscovered:       {StatusValidating},
	StatusValidating:       {StatusRejectedEconomics, StatusAwaitingApproval},
	StatusAwaitingApproval: {StatusApproved, StatusRejected},
	StatusApproved:         {StatusConnecting},
	StatusConnecting:       {StatusConnected, StatusConnectFailed},
	StatusConnected:        {StatusOpening},
	StatusOpening:          {StatusOpened, StatusOpenFailed},
	StatusOpened:           {StatusAwaitingPayment},
	StatusAwaitingPayment:  {StatusPaid, StatusExpired},
}

// terminalStatuses are the statuses with no outgoing lifecycle edge.
var terminalStatuses = map[string]bool{
	StatusRejectedEconomics: true,
	StatusRejected:          true,
	StatusConnectFailed:     true,
	StatusOpenFailed:        true,
	StatusPaid:              true,
	StatusExpired:           true,
}

// Order represents a channel-sale order from the marketplace. The marketplace
// order id is the identity; records are append-only and never deleted.
type Order struct {
	ID               int64                  `json:"-"`
	OrderID          string                 `json:"order_id"`
	BuyerPubkey      string                 `json:"buyer_pubkey"`
	BuyerAlias       string                 `json:"buyer_alias,omitempty"`
	CapacitySats     int64                  `json:"capacity_sats"`
	PriceSats        int64                  `json:"price_sats"`
	EstimatedFeeSats int64                  `json:"estimated_fee_sats"`
	Status           string                 `json:"status"`
	Reason           string                 `json:"reason,omitempty"`
	InvoiceRHash     string                 `json:"invoice_r_hash,omitempty"`
	PaymentRequest   string                 `json:"payment_request,omitempty"`
	FundingTxID      string                 `json:"funding_tx_id,omitempty"`
	ChannelPoint     string                 `json:"channel_point,omitempty"`
	InvoiceExpiresAt *time.Time             `json:"invoice_expires_at,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	LastTransitionAt time.Time              `json:"last_transition_at"`
	MetaData         map[string]interface{} `json:"meta_data,omitempty"`
}

// StatusTransition is one recorded lifecycle step of an order. Transitions are
// only ever inserted, giving an audit trail of the full status sequence.
type StatusTransition struct {
	OrderID    string    `json:"order_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConnectionAttempt tracks the in-flight retry counter for one order's peer
// connection. It is transient: it lives only for the duration of the tick that
// drives the Connecting stage and is never persisted.
type ConnectionAttempt struct {
	AttemptNumber int
	LastAttemptAt time.Time
}

// EconomicLimits is the read-only economic configuration the validation engine
// judges an order against.
type EconomicLimits struct {
	MaxFeePercentageOfInvoice float64
	ChannelFeeRatePPM         int64
	InvoiceExpirySeconds      int64
	ConnectRetryDelaySeconds  int64
	MaxConnectRetries         int
	PollingIntervalMinutes    int
}

// ValidTransition reports whether the lifecycle permits moving from one status
// to another.
func ValidTransition(from, to string) bool {
	for _, next := range lifecycleEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether a status closes the order.
func IsTerminalStatus(status string) bool {
	return terminalStatuses[status]
}

// IsTerminal reports whether the order has reached a terminal status.
func (order *Order) IsTerminal() bool {
	return IsTerminalStatus(order.Status)
}

func (order *Order) ToJSON() ([]byte, error) {
	return json.Marshal(order)
}
