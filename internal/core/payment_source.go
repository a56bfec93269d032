package core

import (
	"encoding/json"
	"strings"
)

// PaymentSourceSchemaVersion is the version written by Save.
const PaymentSourceSchemaVersion = 2

const (
	BankAccount PaymentSourceKind = "bank_account"
	CreditCard  PaymentSourceKind = "credit_card"
	Cash        PaymentSourceKind = "cash"
)

type PaymentSourceKind string

// PaymentSource is an account or card an occurrence can be settled from.
type PaymentSource struct {
	SchemaVersion       int               `json:"schema_version"`
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	Kind                PaymentSourceKind `json:"kind"`
	IsActive            bool              `json:"is_active"`
	ExcludeFromLeftover bool              `json:"exclude_from_leftover"`
}

func (k PaymentSourceKind) IsValid() bool {
	switch k {
	case BankAccount, CreditCard, Cash:
		return true
	default:
		return false
	}
}

func (p PaymentSource) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return InvalidInput("payment source id cannot be empty")
	}
	if strings.TrimSpace(p.Name) == "" {
		return InvalidInput("payment source name cannot be empty")
	}
	if !p.Kind.IsValid() {
		return InvalidInput("invalid payment source kind %q", p.Kind)
	}
	return nil
}

// paymentSourceV1 is the record shape written before schema_version existed.
type paymentSourceV1 struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsCredit bool   `json:"is_credit"`
}

// UpgradePaymentSource decodes a stored record of any known version into the
// current shape. Records without a schema_version are version 1.
func UpgradePaymentSource(raw json.RawMessage) (PaymentSource, error) {
	var tag struct {
		SchemaVersion int `json:"schema_version"`
	}
	if err := json.Unmarshal(raw, &tag); err != nil {
		return PaymentSource{}, InvalidInput("malformed payment source: %v", err)
	}

	switch tag.SchemaVersion {
	case 0, 1:
		var v1 paymentSourceV1
		if err := json.Unmarshal(raw, &v1); err != nil {
			return PaymentSource{}, InvalidInput("malformed payment source: %v", err)
		}
		kind := BankAccount
		if v1.IsCredit {
			kind = CreditCard
		}
		return PaymentSource{
			SchemaVersion:       PaymentSourceSchemaVersion,
			ID:                  v1.ID,
			Name:                v1.Name,
			Kind:                kind,
			IsActive:            true,
			ExcludeFromLeftover: v1.IsCredit,
		}, nil
	case PaymentSourceSchemaVersion:
		var p PaymentSource
		if err := json.Unmarshal(raw, &p); err != nil {
			return PaymentSource{}, InvalidInput("malformed payment source: %v", err)
		}
		return p, nil
	default:
		return PaymentSource{}, InvalidInput("unsupported payment source schema version %d", tag.SchemaVersion)
	}
}
