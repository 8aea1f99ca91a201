package models

import "github.com/shopspring/decimal"

type Shop struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
	IsOpen  bool   `json:"isOpen"`
}

type MenuItem struct {
	ID          string          `json:"id"`
	ShopID      string          `json:"shopId"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category"`
}

type Role string

const (
	RoleRequester Role = "WORKER"
	RoleFulfiller Role = "OFFICE_BOY"
)

type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	Role            Role   `json:"role"`
	Password        string `json:"password,omitempty"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	PaymentInfo     string `json:"paymentInfo,omitempty"`
	PreferredRunner string `json:"preferredObId,omitempty"`
	Unit            string `json:"unitKerja,omitempty"`
}

// UserPatch carries a partial profile update. Nil fields are left untouched.
type UserPatch struct {
	Name            *string `json:"name,omitempty"`
	PhoneNumber     *string `json:"phoneNumber,omitempty"`
	PaymentInfo     *string `json:"paymentInfo,omitempty"`
	PreferredRunner *string `json:"preferredObId,omitempty"`
	Unit            *string `json:"unitKerja,omitempty"`
}
