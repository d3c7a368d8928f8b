package models

import (
	"encoding/json"
	"math"
	"strings"
	"time"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether c is a finite point on the globe.
func (c Coord) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

type VehicleType struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	BaseFare   float64 `json:"baseFare"`
	PricePerKm float64 `json:"pricePerKm"`
}

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusAccepted  OrderStatus = "ACCEPTED"
	StatusArrived   OrderStatus = "ARRIVED"
	StatusInTransit OrderStatus = "IN_TRANSIT"
	StatusCompleted OrderStatus = "COMPLETED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// ParseStatus normalizes backend spellings; DRIVER_ARRIVED is ARRIVED.
func ParseStatus(s string) OrderStatus {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "DRIVER_ARRIVED" {
		return StatusArrived
	}
	return OrderStatus(s)
}

func (s *OrderStatus) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseStatus(raw)
	return nil
}

func (s OrderStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Rank orders statuses along the trip lifecycle. Unknown statuses rank 0.
func (s OrderStatus) Rank() int {
	switch s {
	case StatusPending:
		return 1
	case StatusAccepted:
		return 2
	case StatusArrived:
		return 3
	case StatusInTransit:
		return 4
	case StatusCompleted, StatusCancelled:
		return 5
	default:
		return 0
	}
}

type UserRef struct {
	ID       int64  `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// DriverSnapshot is the driver view embedded in an order once assigned.
type DriverSnapshot struct {
	ID                 int64    `json:"id"`
	Name               string   `json:"name,omitempty"`
	VehiclePlateNumber string   `json:"vehiclePlateNumber,omitempty"`
	CurrentLatitude    float64  `json:"currentLatitude"`
	CurrentLongitude   float64  `json:"currentLongitude"`
	Available          bool     `json:"isAvailable,omitempty"`
	User               *UserRef `json:"user,omitempty"`
}

func (d DriverSnapshot) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.User != nil && d.User.Name != "":
		return d.User.Name
	case d.User != nil && d.User.FullName != "":
		return d.User.FullName
	default:
		return "Driver"
	}
}

func (d DriverSnapshot) Location() Coord {
	return Coord{Lat: d.CurrentLatitude, Lon: d.CurrentLongitude}
}

type Order struct {
	ID             int64           `json:"id"`
	Status         OrderStatus     `json:"status"`
	PickupLocation string          `json:"pickupLocation"`
	DropLocation   string          `json:"dropLocation"`
	PickupLat      float64         `json:"pickupLat,omitempty"`
	PickupLng      float64         `json:"pickupLng,omitempty"`
	DropLat        float64         `json:"dropLat,omitempty"`
	DropLng        float64         `json:"dropLng,omitempty"`
	Distance       float64         `json:"distance"`
	Price          float64         `json:"price"`
	VehicleType    *VehicleType    `json:"vehicleType,omitempty"`
	Driver         *DriverSnapshot `json:"driver,omitempty"`
}

// Clone returns a copy that shares no pointers with o.
func (o Order) Clone() Order {
	if o.Driver != nil {
		d := *o.Driver
		if d.User != nil {
			u := *d.User
			d.User = &u
		}
		o.Driver = &d
	}
	if o.VehicleType != nil {
		vt := *o.VehicleType
		o.VehicleType = &vt
	}
	return o
}

type OrderRequest struct {
	PickupLocation string  `json:"pickupLocation"`
	DropLocation   string  `json:"dropLocation"`
	Distance       float64 `json:"distance"`
	VehicleTypeID  int64   `json:"vehicleTypeId"`
	EstimatedPrice float64 `json:"estimatedPrice"`
	PickupLat      float64 `json:"pickupLat"`
	PickupLng      float64 `json:"pickupLng"`
	DropLat        float64 `json:"dropLat"`
	DropLng        float64 `json:"dropLng"`
}

// LocationUpdate arrives on /topic/tracking/{driverId} and /topic/admin/drivers.
type LocationUpdate struct {
	OrderID   int64   `json:"orderId,omitempty"`
	DriverID  int64   `json:"driverId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OrderStatusUpdate arrives on /topic/order/{orderId}.
type OrderStatusUpdate struct {
	OrderID       int64       `json:"orderId"`
	Status        OrderStatus `json:"status"`
	DriverName    string      `json:"driverName,omitempty"`
	VehicleType   string      `json:"vehicleType,omitempty"`
	VehicleNumber string      `json:"vehicleNumber,omitempty"`
	DriverLat     *float64    `json:"driverLat,omitempty"`
	DriverLng     *float64    `json:"driverLng,omitempty"`
}

// DriverStatusUpdate arrives on /topic/admin/driver-status.
type DriverStatusUpdate struct {
	DriverID  int64 `json:"driverId"`
	Available bool  `json:"available"`
}

type PendingDriver struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	LicenseNumber      string `json:"licenseNumber"`
	VehiclePlateNumber string `json:"vehiclePlateNumber"`
	VehicleType        string `json:"vehicleType"`
}

type DriverWallet struct {
	DriverID       int64   `json:"driverId"`
	DriverName     string  `json:"driverName"`
	Email          string  `json:"email"`
	CurrentBalance float64 `json:"currentBalance"`
}

type Review struct {
	ReviewID     int64  `json:"reviewId"`
	DriverName   string `json:"driverName"`
	CustomerName string `json:"customerName"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
	CreatedAt    string `json:"createdAt"`
}

type Wallet struct {
	ID      int64   `json:"id,omitempty"`
	Balance float64 `json:"balance"`
}

const (
	TxCredit = "CREDIT"
	TxDebit  = "DEBIT"
)

type WalletTransaction struct {
	ID          int64   `json:"id"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Timestamp   string  `json:"timestamp,omitempty"`
	CreatedAt   string  `json:"createdAt,omitempty"`
}

// When is the transaction time as sent, in ISO-8601 local form.
func (t WalletTransaction) When() string {
	if t.CreatedAt != "" {
		return t.CreatedAt
	}
	return t.Timestamp
}

type Profile struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
	Role        string `json:"role"`
}

type ProfileUpdate struct {
	FullName    string `json:"fullName"`
	PhoneNumber string `json:"phoneNumber"`
}

// PricingUpdate leaves a field untouched on the backend when nil.
type PricingUpdate struct {
	BaseFare   *float64 `json:"baseFare,omitempty"`
	PricePerKm *float64 `json:"pricePerKm,omitempty"`
}

type DashboardStats struct {
	TotalUsers   int64   `json:"totalUsers"`
	TotalDrivers int64   `json:"totalDrivers"`
	TotalOrders  int64   `json:"totalOrders"`
	TotalRevenue float64 `json:"totalRevenue"`
	ActiveOrders int64   `json:"activeOrders"`
}

type LoginResponse struct {
	Token string `json:"token"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Tracking event kinds.
const (
	EventLocation = "location"
	EventStatus   = "status"
	EventAttached = "attached"
	EventDetached = "detached"
)

// TrackingEvent is what the tracker publishes to the event stream and what
// the fleet consumer reads back.
type TrackingEvent struct {
	Kind      string      `json:"kind"`
	OrderID   int64       `json:"orderId"`
	DriverID  int64       `json:"driverId,omitempty"`
	Status    OrderStatus `json:"status,omitempty"`
	Latitude  float64     `json:"latitude,omitempty"`
	Longitude float64     `json:"longitude,omitempty"`
	At        time.Time   `json:"at"`
}
