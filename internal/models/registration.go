package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus values, in lifecycle order. Transitions are monotonic:
// a registration never moves back to an earlier status.
const (
	RegistrationStatusPending          = "pending"
	RegistrationStatusProfileCompleted = "profile_completed"
	RegistrationStatusPaymentApproved  = "payment_approved"
	RegistrationStatusCompleted        = "completed"
)

var registrationStatusRank = map[string]int{
	RegistrationStatusPending:          0,
	RegistrationStatusProfileCompleted: 1,
	RegistrationStatusPaymentApproved:  2,
	RegistrationStatusCompleted:        3,
}

// RegistrationStatusRank returns the position of a status in the lifecycle.
// Unknown statuses rank lowest.
func RegistrationStatusRank(status string) int {
	return registrationStatusRank[status]
}

// AdvanceRegistrationStatus returns the later of the two statuses so writes
// never move a registration backwards.
func AdvanceRegistrationStatus(current, next string) string {
	if RegistrationStatusRank(next) > RegistrationStatusRank(current) {
		return next
	}
	return current
}

// PersonalInfo is the user profile core. Email is the registration key.
type PersonalInfo struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
}

// ShippingAddress is where auction winnings ship.
type ShippingAddress struct {
	Address1 string `json:"address1"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	ZipCode  string `json:"zipCode"`
	Country  string `json:"country"`
}

// Agreements are the consent checkboxes from the registration form.
type Agreements struct {
	Shipping bool `json:"shipping"`
	Terms    bool `json:"terms"`
	Privacy  bool `json:"privacy"`
}

// PaymentSummary is the registration's embedded view of its payment.
// PaymentID is "pending" until an approval callback links a real payment.
type PaymentSummary struct {
	PaymentID   string     `json:"paymentId"`
	Amount      float64    `json:"amount"`
	Completed   bool       `json:"completed"`
	ApprovedAt  *time.Time `json:"approvedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// PiUser is the Pi Network identity attached by the browser SDK, when present.
type PiUser struct {
	UID      string `json:"uid,omitempty"`
	Username string `json:"username,omitempty"`
}

// Registration is a user's profile, agreements and payment summary, keyed by
// email. Registrations are never deleted.
type Registration struct {
	ID              uuid.UUID       `json:"id"`
	PersonalInfo    PersonalInfo    `json:"personalInfo"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Agreements      Agreements      `json:"agreements"`
	Payment         PaymentSummary  `json:"payment"`
	PiUser          PiUser          `json:"piUser,omitempty"`
	Status          string          `json:"registrationStatus"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}
