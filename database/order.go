package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/hodlmetight/magmad/internal/apierror"
	"github.com/hodlmetight/magmad/model"

	_ "github.com/lib/pq"
)

func (d Datasource) UpsertOrder(ctx context.Context, order *model.Order) (bool, error) {
	ctx, span := otel.Tracer("Order pipeline").Start(ctx, "Saving discovered order to db")
	defer span.End()

	metaDataJSON, err := json.Marshal(order.MetaData)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
	}

	result, err := d.Conn.ExecContext(ctx,
		`INSERT INTO orders(order_id,buyer_pubkey,buyer_alias,capacity_sats,price_sats,estimated_fee_sats,status,created_at,last_transition_at,meta_data) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) ON CONFLICT (order_id) DO NOTHING`,
		order.OrderID, order.BuyerPubkey, order.BuyerAlias, order.CapacitySats, order.PriceSats, order.EstimatedFeeSats, order.Status, order.CreatedAt, order.LastTransitionAt, metaDataJSON,
	)

	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record order", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	return rowsAffected == 1, nil
}

func (d Datasource) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	row := d.Conn.QueryRowContext(ctx, `
		SELECT order_id, buyer_pubkey, buyer_alias, capacity_sats, price_sats, estimated_fee_sats, status, reason, invoice_r_hash, payment_request, funding_txid, channel_point, invoice_expires_at, created_at, last_transition_at, meta_data
		FROM orders
		WHERE order_id = $1
	`, orderID)

	order, err := scanOrderRow(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", orderID), err)
		}
		return nil, err
	}

	return order, nil
}

func (d Datasource) ListActiveOrders(ctx context.Context) ([]*model.Order, error) {
	ctx, span := otel.Tracer("Order pipeline").Start(ctx, "Fetching active orders from db")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT order_id, buyer_pubkey, buyer_alias, capacity_sats, price_sats, estimated_fee_sats, status, reason, invoice_r_hash, payment_request, funding_txid, channel_point, invoice_expires_at, created_at, last_transition_at, meta_data
		FROM orders
		WHERE status NOT IN ($1, $2, $3, $4, $5, $6)
		ORDER BY created_at ASC
	`, model.StatusRejectedEconomics, model.StatusRejected, model.StatusConnectFailed, model.StatusOpenFailed, model.StatusPaid, model.StatusExpired)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve active orders", err)
	}
	defer rows.Close()

	return scanOrderRows(rows)
}

func (d Datasource) ListOrders(ctx context.Context, limit, offset int) ([]*model.Order, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT order_id, buyer_pubkey, buyer_alias, capacity_sats, price_sats, estimated_fee_sats, status, reason, invoice_r_hash, payment_request, funding_txid, channel_point, invoice_expires_at, created_at, last_transition_at, meta_data
		FROM orders
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve orders", err)
	}
	defer rows.Close()

	return scanOrderRows(rows)
}

// TransitionOrder moves an order one step through its lifecycle. The current
// status is locked for the duration of the transaction so concurrent writers
// race on the row, not on stale reads. A transition the lifecycle forbids is
// rejected and the order left untouched.
func (d Datasource) TransitionOrder(ctx context.Context, orderID string, toStatus string, reason string) error {
	ctx, span := otel.Tracer("Order pipeline").Start(ctx, "Transitioning order status")
	defer span.End()

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var fromStatus string
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM orders WHERE order_id = $1 FOR UPDATE
	`, orderID).Scan(&fromStatus)
	if err != nil {
		if err == sql.ErrNoRows {
			return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", orderID), err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to lock order for transition", err)
	}

	if !model.ValidTransition(fromStatus, toStatus) {
		return apierror.NewAPIError(apierror.ErrInvalidTransition, fmt.Sprintf("Order '%s' cannot move from %s to %s", orderID, fromStatus, toStatus), nil)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $2, reason = $3, last_transition_at = NOW()
		WHERE order_id = $1
	`, orderID, toStatus, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update order status", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO order_transitions(order_id, from_status, to_status, reason) VALUES ($1, $2, $3, $4)
	`, orderID, fromStatus, toStatus, reason)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record order transition", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit order transition", err)
	}

	return nil
}

func (d Datasource) SetOrderBuyerAlias(ctx context.Context, orderID string, alias string) error {
	return d.updateOrderField(ctx, orderID, `UPDATE orders SET buyer_alias = $2 WHERE order_id = $1`, alias)
}

func (d Datasource) SetOrderFeeEstimate(ctx context.Context, orderID string, feeSats int64) error {
	return d.updateOrderField(ctx, orderID, `UPDATE orders SET estimated_fee_sats = $2 WHERE order_id = $1`, feeSats)
}

func (d Datasource) SetOrderInvoice(ctx context.Context, orderID, rHash, paymentRequest string, exp time.Time) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE orders
		SET invoice_r_hash = $2, payment_request = $3, invoice_expires_at = $4
		WHERE order_id = $1
	`, orderID, rHash, paymentRequest, exp)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to set order invoice", err)
	}
	return checkOrderAffected(result, orderID)
}

func (d Datasource) SetOrderFunding(ctx context.Context, orderID, fundingTxID, channelPoint string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE orders
		SET funding_txid = $2, channel_point = $3
		WHERE order_id = $1
	`, orderID, fundingTxID, channelPoint)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to set order funding", err)
	}
	return checkOrderAffected(result, orderID)
}

func (d Datasource) GetOrderTransitions(ctx context.Context, orderID string) ([]model.StatusTransition, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT order_id, from_status, to_status, reason, created_at
		FROM order_transitions
		WHERE order_id = $1
		ORDER BY id ASC
	`, orderID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve order transitions", err)
	}
	defer rows.Close()

	var transitions []model.StatusTransition

	for rows.Next() {
		transition := model.StatusTransition{}
		var reason sql.NullString
		err = rows.Scan(
			&transition.OrderID,
			&transition.FromStatus,
			&transition.ToStatus,
			&reason,
			&transition.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order transition", err)
		}
		transition.Reason = reason.String

		transitions = append(transitions, transition)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over order transitions", err)
	}

	return transitions, nil
}

func (d Datasource) updateOrderField(ctx context.Context, orderID string, query string, value interface{}) error {
	result, err := d.Conn.ExecContext(ctx, query, orderID, value)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update order", err)
	}
	return checkOrderAffected(result, orderID)
}

func checkOrderAffected(result sql.Result, orderID string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get rows affected", err)
	}

	if rowsAffected == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf("Order with ID '%s' not found", orderID), nil)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrderRow(row rowScanner) (*model.Order, error) {
	order := &model.Order{}
	var metaDataJSON []byte
	var buyerAlias, reason, rHash, paymentRequest, fundingTxID, channelPoint sql.NullString
	var invoiceExpiresAt sql.NullTime

	err := row.Scan(
		&order.OrderID,
		&order.BuyerPubkey,
		&buyerAlias,
		&order.CapacitySats,
		&order.PriceSats,
		&order.EstimatedFeeSats,
		&order.Status,
		&reason,
		&rHash,
		&paymentRequest,
		&fundingTxID,
		&channelPoint,
		&invoiceExpiresAt,
		&order.CreatedAt,
		&order.LastTransitionAt,
		&metaDataJSON,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan order data", err)
	}

	order.BuyerAlias = buyerAlias.String
	order.Reason = reason.String
	order.InvoiceRHash = rHash.String
	order.PaymentRequest = paymentRequest.String
	order.FundingTxID = fundingTxID.String
	order.ChannelPoint = channelPoint.String
	if invoiceExpiresAt.Valid {
		t := invoiceExpiresAt.Time
		order.InvoiceExpiresAt = &t
	}

	if len(metaDataJSON) > 0 {
		err = json.Unmarshal(metaDataJSON, &order.MetaData)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
		}
	}

	return order, nil
}

func scanOrderRows(rows *sql.Rows) ([]*model.Order, error) {
	orders := []*model.Order{}

	for rows.Next() {
		order, err := scanOrderRow(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over orders", err)
	}

	return orders, nil
}
