package models

// TransactionType is the closed set of categories a transaction can carry.
type TransactionType string

const (
	TypeTea     TransactionType = "tea"
	TypeCoffee  TransactionType = "coffee"
	TypeSnacks  TransactionType = "snacks"
	TypePayment TransactionType = "payment"
)

// TransactionTypes lists every category in display order.
var TransactionTypes = []TransactionType{TypeTea, TypeCoffee, TypeSnacks, TypePayment}

// Valid reports whether t belongs to the category set.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeTea, TypeCoffee, TypeSnacks, TypePayment:
		return true
	}
	return false
}

// IsPayment reports whether t records money paid in rather than spent.
func (t TransactionType) IsPayment() bool {
	return t == TypePayment
}

// IconMapping maps each category to a Font Awesome icon class.
type IconMapping map[TransactionType]string

// DefaultIconMapping returns a fresh copy of the built-in icon set.
func DefaultIconMapping() IconMapping {
	return IconMapping{
		TypeTea:     "fa-mug-hot",
		TypeCoffee:  "fa-coffee",
		TypeSnacks:  "fa-cookie-bite",
		TypePayment: "fa-wallet",
	}
}
