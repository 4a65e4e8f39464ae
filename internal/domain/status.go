package domain

type OrderStatus string

const (
	OrderPending    OrderStatus = "Pending"
	OrderProcessing OrderStatus = "Processing"
	OrderShipped    OrderStatus = "Shipped"
	OrderDelivered  OrderStatus = "Delivered"
	OrderCancelled  OrderStatus = "Cancelled"
	OrderRefunded   OrderStatus = "Refunded"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentFailed    PaymentStatus = "Failed"
	PaymentRefunded  PaymentStatus = "Refunded"
)

type PurchaseOrderStatus string

const (
	PODraft     PurchaseOrderStatus = "Draft"
	POSubmitted PurchaseOrderStatus = "Submitted"
	POConfirmed PurchaseOrderStatus = "Confirmed"
	POShipped   PurchaseOrderStatus = "Shipped"
	POReceived  PurchaseOrderStatus = "Received"
	POCancelled PurchaseOrderStatus = "Cancelled"
)

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "Pending"
	ShipmentInTransit ShipmentStatus = "In Transit"
	ShipmentDelivered ShipmentStatus = "Delivered"
	ShipmentDelayed   ShipmentStatus = "Delayed"
	ShipmentCancelled ShipmentStatus = "Cancelled"
)

type MembershipTier string

const (
	TierBronze   MembershipTier = "Bronze"
	TierSilver   MembershipTier = "Silver"
	TierGold     MembershipTier = "Gold"
	TierPlatinum MembershipTier = "Platinum"
)

// orderTransitions lists the legal successor states. A status absent from
// the map (or with no successors) is terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled, OrderRefunded},
	OrderProcessing: {OrderShipped, OrderCancelled, OrderRefunded},
	OrderShipped:    {OrderDelivered, OrderCancelled, OrderRefunded},
}

var purchaseOrderTransitions = map[PurchaseOrderStatus][]PurchaseOrderStatus{
	PODraft:     {POSubmitted, POCancelled},
	POSubmitted: {POConfirmed, POCancelled},
	POConfirmed: {POShipped, POCancelled},
	POShipped:   {POReceived, POCancelled},
}

var shipmentTransitions = map[ShipmentStatus][]ShipmentStatus{
	ShipmentPending:   {ShipmentInTransit, ShipmentCancelled},
	ShipmentInTransit: {ShipmentDelivered, ShipmentDelayed, ShipmentCancelled},
	ShipmentDelayed:   {ShipmentInTransit, ShipmentDelivered, ShipmentCancelled},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled, OrderRefunded:
		return true
	}
	return false
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s PurchaseOrderStatus) Valid() bool {
	switch s {
	case PODraft, POSubmitted, POConfirmed, POShipped, POReceived, POCancelled:
		return true
	}
	return false
}

func (s PurchaseOrderStatus) CanTransition(to PurchaseOrderStatus) bool {
	for _, next := range purchaseOrderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s PurchaseOrderStatus) Terminal() bool {
	return len(purchaseOrderTransitions[s]) == 0
}

func (s ShipmentStatus) Valid() bool {
	switch s {
	case ShipmentPending, ShipmentInTransit, ShipmentDelivered, ShipmentDelayed, ShipmentCancelled:
		return true
	}
	return false
}

func (s ShipmentStatus) CanTransition(to ShipmentStatus) bool {
	for _, next := range shipmentTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

func (s ShipmentStatus) Terminal() bool {
	return len(shipmentTransitions[s]) == 0
}
